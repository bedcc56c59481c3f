package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Entry points from (run, day) to a stored checkpoint.
type Entry struct {
	RunID     string `json:"run_id"`
	Day       int    `json:"day"`
	Hash      string `json:"hash"`
	EventSeq  uint64 `json:"event_seq"`
	EventHash string `json:"event_hash"`
}

// Index records which checkpoints exist for a run.
type Index interface {
	Record(ctx context.Context, e Entry) error
	// Lookup returns the entry for day, or the latest entry when day is 0.
	Lookup(ctx context.Context, runID string, day int) (Entry, error)
	List(ctx context.Context, runID string) ([]Entry, error)
}

func pick(entries []Entry, runID string, day int) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: run %s", ErrCheckpointNotFound, runID)
	}
	if day == 0 {
		return entries[len(entries)-1], nil
	}
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Day >= day })
	if i == len(entries) || entries[i].Day != day {
		return Entry{}, fmt.Errorf("%w: run %s day %d", ErrCheckpointNotFound, runID, day)
	}
	return entries[i], nil
}

func upsert(entries []Entry, e Entry) []Entry {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Day >= e.Day })
	if i < len(entries) && entries[i].Day == e.Day {
		entries[i] = e
		return entries
	}
	entries = append(entries, Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// MemoryIndex is a process-local index.
type MemoryIndex struct {
	mu   sync.RWMutex
	runs map[string][]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{runs: make(map[string][]Entry)}
}

func (m *MemoryIndex) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[e.RunID] = upsert(m.runs[e.RunID], e)
	return nil
}

func (m *MemoryIndex) Lookup(_ context.Context, runID string, day int) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pick(m.runs[runID], runID, day)
}

func (m *MemoryIndex) List(_ context.Context, runID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.runs[runID]...), nil
}

// FileIndex keeps one JSON document per run under dir.
type FileIndex struct {
	mu  sync.Mutex
	dir string
}

func NewFileIndex(dir string) (*FileIndex, error) {
	//nolint:gosec // G301: shared data directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure index dir: %w", err)
	}
	return &FileIndex{dir: dir}, nil
}

func (f *FileIndex) path(runID string) string {
	return filepath.Join(f.dir, filepath.Base(runID)+".json")
}

func (f *FileIndex) read(runID string) ([]Entry, error) {
	data, err := os.ReadFile(f.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint index for run %s: %w", runID, err)
	}
	return entries, nil
}

func (f *FileIndex) Record(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read(e.RunID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(upsert(entries, e), "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path(e.RunID) + ".tmp"
	//nolint:gosec // G306: index is not secret
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path(e.RunID))
}

func (f *FileIndex) Lookup(_ context.Context, runID string, day int) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read(runID)
	if err != nil {
		return Entry{}, err
	}
	return pick(entries, runID, day)
}

func (f *FileIndex) List(_ context.Context, runID string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(runID)
}

// RedisIndex keeps a sorted set per run, scored by day, with the entries in a hash.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisIndex connects lazily; the first command surfaces connection errors.
func NewRedisIndex(addr, password string, db int) *RedisIndex {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisIndex{client: rdb, prefix: "contagion:checkpoints:"}
}

func (r *RedisIndex) keys(runID string) (days, entries string) {
	return r.prefix + runID + ":days", r.prefix + runID + ":entries"
}

func (r *RedisIndex) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	days, entries := r.keys(e.RunID)
	field := strconv.Itoa(e.Day)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, entries, field, data)
		pipe.ZAdd(ctx, days, redis.Z{Score: float64(e.Day), Member: field})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record checkpoint: %w", err)
	}
	return nil
}

func (r *RedisIndex) Lookup(ctx context.Context, runID string, day int) (Entry, error) {
	days, entries := r.keys(runID)
	field := strconv.Itoa(day)
	if day == 0 {
		latest, err := r.client.ZRevRange(ctx, days, 0, 0).Result()
		if err != nil {
			return Entry{}, fmt.Errorf("redis latest checkpoint: %w", err)
		}
		if len(latest) == 0 {
			return Entry{}, fmt.Errorf("%w: run %s", ErrCheckpointNotFound, runID)
		}
		field = latest[0]
	}
	data, err := r.client.HGet(ctx, entries, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("%w: run %s day %d", ErrCheckpointNotFound, runID, day)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis get checkpoint: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *RedisIndex) List(ctx context.Context, runID string) ([]Entry, error) {
	days, entries := r.keys(runID)
	fields, err := r.client.ZRange(ctx, days, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list checkpoints: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	vals, err := r.client.HMGet(ctx, entries, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list checkpoints: %w", err)
	}
	out := make([]Entry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Ping checks the connection.
func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
