package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Source delivers the membership intervals of one simulated day.
type Source interface {
	Day(ctx context.Context, day int) ([]Interval, error)
}

// MemorySource serves intervals held in memory. When Cycle is positive a day
// without intervals of its own replays day ((day-1) mod Cycle)+1, so a single
// recorded week can drive an arbitrarily long run.
type MemorySource struct {
	byDay map[int][]Interval
	cycle int
}

// NewMemorySource indexes intervals by day after validating them.
func NewMemorySource(intervals []Interval, cycle int) (*MemorySource, error) {
	s := &MemorySource{byDay: make(map[int][]Interval), cycle: cycle}
	for n, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return nil, fmt.Errorf("interval %d: %w", n, err)
		}
		if iv.Day < 1 {
			return nil, fmt.Errorf("interval %d: %w: day %d before day 1", n, ErrInvalidInterval, iv.Day)
		}
		s.byDay[iv.Day] = append(s.byDay[iv.Day], iv)
	}
	return s, nil
}

// Days returns the days with recorded intervals, sorted.
func (s *MemorySource) Days() []int {
	out := make([]int, 0, len(s.byDay))
	for d := range s.byDay {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// Day implements Source.
func (s *MemorySource) Day(_ context.Context, day int) ([]Interval, error) {
	if ivs, ok := s.byDay[day]; ok {
		return append([]Interval(nil), ivs...), nil
	}
	if s.cycle > 0 && day > 0 {
		if ivs, ok := s.byDay[(day-1)%s.cycle+1]; ok {
			return append([]Interval(nil), ivs...), nil
		}
	}
	return nil, nil
}

// ReadJSONL decodes one Interval per JSON value from r.
func ReadJSONL(r io.Reader) ([]Interval, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var out []Interval
	for dec.More() {
		var iv Interval
		if err := dec.Decode(&iv); err != nil {
			return nil, fmt.Errorf("decode interval %d: %w", len(out), err)
		}
		out = append(out, iv)
	}
	return out, nil
}

// LoadFile reads a JSONL trace file into a MemorySource.
func LoadFile(path string, cycle int) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	intervals, err := ReadJSONL(f)
	if err != nil {
		return nil, err
	}
	return NewMemorySource(intervals, cycle)
}
