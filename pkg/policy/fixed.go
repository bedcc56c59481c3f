package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/report"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

// Entry sets a context's restriction from Day on. RemainingFractionExpr, when
// set, recomputes remainingFraction every day until a later entry replaces it.
type Entry struct {
	Day                   int
	Context               string
	Restriction           restriction.Restriction
	RemainingFractionExpr *Expression
}

// Window interpolates a context linearly from From at Start to To at End.
type Window struct {
	Context string
	Start   int
	End     int
	From    restriction.Restriction
	To      restriction.Restriction
}

// Timeline is a validated set of entries and windows.
type Timeline struct {
	byContext map[string][]step
	windows   map[string][]Window
}

type step struct {
	day   int
	order int
	r     restriction.Restriction
	expr  *Expression
}

// NewTimeline validates entries and windows. Windows of one context must not overlap;
// adjacent windows may share an endpoint.
func NewTimeline(entries []Entry, windows []Window) (*Timeline, error) {
	t := &Timeline{byContext: make(map[string][]step), windows: make(map[string][]Window)}

	order := 0
	for _, e := range entries {
		if e.Context == "" {
			return nil, fmt.Errorf("%w: entry on day %d has no context", ErrInvalidTimeline, e.Day)
		}
		if e.Day < 0 {
			return nil, fmt.Errorf("%w: %s: negative day %d", ErrInvalidTimeline, e.Context, e.Day)
		}
		if err := e.Restriction.Validate(); err != nil {
			return nil, fmt.Errorf("%s day %d: %w", e.Context, e.Day, err)
		}
		t.byContext[e.Context] = append(t.byContext[e.Context], step{day: e.Day, order: order, r: e.Restriction, expr: e.RemainingFractionExpr})
		order++
	}

	for _, w := range windows {
		if w.Context == "" {
			return nil, fmt.Errorf("%w: window [%d,%d] has no context", ErrInvalidTimeline, w.Start, w.End)
		}
		if w.Start < 0 || w.End <= w.Start {
			return nil, fmt.Errorf("%w: %s: window [%d,%d] is empty or negative", ErrInvalidTimeline, w.Context, w.Start, w.End)
		}
		if err := w.From.Validate(); err != nil {
			return nil, fmt.Errorf("%s window start: %w", w.Context, err)
		}
		if err := w.To.Validate(); err != nil {
			return nil, fmt.Errorf("%s window end: %w", w.Context, err)
		}
		for _, other := range t.windows[w.Context] {
			if w.Start < other.End && other.Start < w.End {
				return nil, fmt.Errorf("%w: %s [%d,%d] and [%d,%d]", ErrOverlappingWindow, w.Context, other.Start, other.End, w.Start, w.End)
			}
		}
		t.windows[w.Context] = append(t.windows[w.Context], w)
		// the endpoint holds after the window closes
		t.byContext[w.Context] = append(t.byContext[w.Context],
			step{day: w.Start, order: order, r: w.From},
			step{day: w.End, order: order + 1, r: w.To},
		)
		order += 2
	}

	for ctx := range t.byContext {
		steps := t.byContext[ctx]
		sort.SliceStable(steps, func(i, j int) bool {
			if steps[i].day != steps[j].day {
				return steps[i].day < steps[j].day
			}
			return steps[i].order < steps[j].order
		})
	}
	for ctx := range t.windows {
		ws := t.windows[ctx]
		sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	}
	return t, nil
}

// Contexts returns every context named by the timeline, sorted.
func (t *Timeline) Contexts() []string {
	out := make([]string, 0, len(t.byContext))
	for ctx := range t.byContext {
		out = append(out, ctx)
	}
	sort.Strings(out)
	return out
}

// At resolves context on day. ok is false when nothing applies yet.
// The returned expression is the one still active on day, if any.
func (t *Timeline) At(context string, day int) (restriction.Restriction, *Expression, bool) {
	steps := t.byContext[context]
	var (
		cur    restriction.Restriction
		expr   *Expression
		active bool
	)
	for _, s := range steps {
		if s.day > day {
			break
		}
		cur = cur.Merge(s.r)
		active = true
		if s.expr != nil {
			expr = s.expr
		} else if _, hasRF := s.r.RemainingFraction(); hasRF {
			expr = nil
		}
	}

	// the latest window containing day wins at a shared endpoint
	ws := t.windows[context]
	for i := len(ws) - 1; i >= 0; i-- {
		w := ws[i]
		if day < w.Start || day > w.End {
			continue
		}
		f := float64(day-w.Start) / float64(w.End-w.Start)
		cur = cur.Merge(restriction.Interpolate(w.From, w.To, f))
		if _, hasRF := w.From.RemainingFraction(); hasRF {
			expr = nil
		}
		active = true
		break
	}
	return cur, expr, active
}

// FixedPolicy replays a timeline. Remaining-fraction expressions see the latest
// observed report.
type FixedPolicy struct {
	timeline  *Timeline
	last      *report.Report
	incidence *report.Incidence
}

// NewFixed creates a fixed policy over timeline.
func NewFixed(timeline *Timeline) *FixedPolicy {
	return &FixedPolicy{timeline: timeline, incidence: report.NewIncidence(report.DefaultWindowDays)}
}

// RestrictionsForDay implements Policy.
func (p *FixedPolicy) RestrictionsForDay(day int) (Snapshot, error) {
	out := make(map[string]restriction.Restriction)
	for _, ctx := range p.timeline.Contexts() {
		r, err := p.resolve(ctx, day)
		if err != nil {
			return Snapshot{}, err
		}
		if r != nil {
			out[ctx] = *r
		}
	}
	return NewSnapshot(day, out), nil
}

func (p *FixedPolicy) resolve(ctx string, day int) (*restriction.Restriction, error) {
	r, expr, ok := p.timeline.At(ctx, day)
	if !ok {
		return nil, nil
	}
	resolved := restriction.None().Merge(r)
	if expr != nil {
		inc, _ := p.incidence.Value(report.TotalKey)
		rf, err := expr.Float(VarsFor(day, p.last, inc, ""))
		if err != nil {
			return nil, fmt.Errorf("%s day %d: %w", ctx, day, err)
		}
		resolved = resolved.WithRemainingFraction(clamp01(rf))
	}
	return &resolved, nil
}

// Observe implements Policy.
func (p *FixedPolicy) Observe(_ int, r *report.Report) error {
	p.last = r
	p.incidence.Observe(r)
	return nil
}

// Timeline returns the underlying timeline.
func (p *FixedPolicy) Timeline() *Timeline { return p.timeline }

// CheckpointState implements Checkpointer.
func (p *FixedPolicy) CheckpointState() State {
	return State{LastReport: p.last, Incidence: p.incidence.State()}
}

// RestoreState implements Checkpointer.
func (p *FixedPolicy) RestoreState(st State) error {
	p.last = st.LastReport
	p.incidence = report.RestoreIncidence(st.Incidence)
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(0, math.Min(1, v))
}
