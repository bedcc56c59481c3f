package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Mindburn-Labs/contagion/pkg/report"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

// DefaultCooldownDays is the minimum number of days between two regime changes.
const DefaultCooldownDays = 14

// Regime is the adaptive mode of a context at a location.
type Regime string

const (
	RegimeInitial    Regime = "initial"
	RegimeOpen       Regime = "open"
	RegimeRestricted Regime = "restricted"
)

// Scope selects whether triggers are evaluated only for the whole population
// or additionally per declared location.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// Trigger holds the incidence thresholds of one context. When Expr is set it
// replaces the LockdownAt comparison.
type Trigger struct {
	Context    string
	OpenAt     float64
	LockdownAt float64
	Expr       *Expression
}

// AdaptiveConfig configures an AdaptivePolicy.
type AdaptiveConfig struct {
	Triggers     []Trigger
	Init         *Timeline
	Open         *Timeline
	Restricted   *Timeline
	StartDay     int
	CooldownDays int
	WindowDays   int
	Scope        Scope
	Locations    []string
}

type regimeState struct {
	regime  Regime
	since   int
	changed bool
}

// AdaptivePolicy switches contexts between open and restricted sub-policies
// based on smoothed incidence, with a sticky cool-down after every change.
type AdaptivePolicy struct {
	cfg       AdaptiveConfig
	triggers  []Trigger
	incidence *report.Incidence
	last      *report.Report
	regimes   map[string]map[string]*regimeState // location -> context
	logger    *slog.Logger
}

// NewAdaptive validates cfg and creates the policy with every context in the initial regime.
func NewAdaptive(cfg AdaptiveConfig) (*AdaptivePolicy, error) {
	if cfg.CooldownDays <= 0 {
		cfg.CooldownDays = DefaultCooldownDays
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeGlobal
	}
	if cfg.Scope != ScopeGlobal && cfg.Scope != ScopeLocal {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidTimeline, cfg.Scope)
	}
	if cfg.Open == nil || cfg.Restricted == nil {
		return nil, fmt.Errorf("%w: adaptive policy needs open and restricted sub-policies", ErrInvalidTimeline)
	}

	triggers := append([]Trigger(nil), cfg.Triggers...)
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].Context < triggers[j].Context })
	seen := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		if t.Context == "" {
			return nil, fmt.Errorf("%w: trigger without context", ErrInvalidTimeline)
		}
		if seen[t.Context] {
			return nil, fmt.Errorf("%w: duplicate trigger for %s", ErrInvalidTimeline, t.Context)
		}
		seen[t.Context] = true
		if t.LockdownAt < t.OpenAt {
			return nil, fmt.Errorf("%w: %s: lockdown_at %v below open_at %v", ErrInvalidTimeline, t.Context, t.LockdownAt, t.OpenAt)
		}
	}

	p := &AdaptivePolicy{
		cfg:       cfg,
		triggers:  triggers,
		incidence: report.NewIncidence(cfg.WindowDays),
		regimes:   make(map[string]map[string]*regimeState),
		logger:    slog.Default().With("component", "adaptive_policy"),
	}
	for _, loc := range p.scopeKeys() {
		p.regimes[loc] = make(map[string]*regimeState)
		for _, ctx := range p.contexts() {
			p.regimes[loc][ctx] = &regimeState{regime: RegimeInitial}
		}
	}
	return p, nil
}

func (p *AdaptivePolicy) scopeKeys() []string {
	keys := []string{report.TotalKey}
	if p.cfg.Scope == ScopeLocal {
		locs := append([]string(nil), p.cfg.Locations...)
		sort.Strings(locs)
		keys = append(keys, locs...)
	}
	return keys
}

func (p *AdaptivePolicy) contexts() []string {
	set := make(map[string]struct{})
	for _, t := range p.triggers {
		set[t.Context] = struct{}{}
	}
	for _, tl := range []*Timeline{p.cfg.Init, p.cfg.Open, p.cfg.Restricted} {
		if tl == nil {
			continue
		}
		for _, ctx := range tl.Contexts() {
			set[ctx] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for ctx := range set {
		out = append(out, ctx)
	}
	sort.Strings(out)
	return out
}

// Regime returns the current regime of context at location (report.TotalKey for global).
func (p *AdaptivePolicy) Regime(location, context string) Regime {
	if st, ok := p.regimes[location][context]; ok {
		return st.regime
	}
	return RegimeInitial
}

// Observe implements Policy. Regimes decided here apply from day+1.
func (p *AdaptivePolicy) Observe(day int, r *report.Report) error {
	p.last = r
	p.incidence.Observe(r)
	if day < p.cfg.StartDay {
		return nil
	}
	for _, loc := range p.scopeKeys() {
		inc, ok := p.incidence.Value(loc)
		if !ok {
			continue
		}
		if err := p.ObserveIncidence(day, loc, inc); err != nil {
			return err
		}
	}
	return nil
}

// ObserveIncidence applies the hysteresis rules for every trigger at location.
func (p *AdaptivePolicy) ObserveIncidence(day int, location string, incidence float64) error {
	states, ok := p.regimes[location]
	if !ok {
		return nil
	}
	for _, t := range p.triggers {
		st := states[t.Context]
		if st.changed && day-st.since < p.cfg.CooldownDays {
			continue
		}

		next := st.regime
		if st.regime == RegimeRestricted {
			if incidence <= t.OpenAt {
				next = RegimeOpen
			}
		} else {
			lockdown := incidence >= t.LockdownAt
			if t.Expr != nil {
				var err error
				lockdown, err = t.Expr.Bool(VarsFor(day, p.last, incidence, scopeLocation(location)))
				if err != nil {
					return fmt.Errorf("trigger %s at %s: %w", t.Context, location, err)
				}
			}
			if lockdown {
				next = RegimeRestricted
			}
		}

		if next != st.regime {
			p.logger.InfoContext(context.Background(), "regime change",
				"day", day, "location", location, "context", t.Context,
				"from", st.regime, "to", next, "incidence", incidence)
			st.regime, st.since, st.changed = next, day, true
		}
	}
	return nil
}

// RestrictionsForDay implements Policy.
func (p *AdaptivePolicy) RestrictionsForDay(day int) (Snapshot, error) {
	out := make(map[string]restriction.Restriction)
	for _, ctx := range p.contexts() {
		base, ok, err := p.resolve(report.TotalKey, ctx, day)
		if err != nil {
			return Snapshot{}, err
		}
		if !ok {
			base = restriction.None()
		}

		if p.cfg.Scope == ScopeLocal {
			for _, loc := range p.scopeKeys()[1:] {
				local, ok, err := p.resolve(loc, ctx, day)
				if err != nil {
					return Snapshot{}, err
				}
				if !ok {
					continue
				}
				if rf, has := local.RemainingFraction(); has {
					base = base.WithLocation(loc, rf)
				}
			}
		}

		if ok || len(base.LocationRF()) > 0 {
			out[ctx] = base
		}
	}
	return NewSnapshot(day, out), nil
}

func (p *AdaptivePolicy) resolve(location, ctx string, day int) (restriction.Restriction, bool, error) {
	var tl *Timeline
	switch p.Regime(location, ctx) {
	case RegimeOpen:
		tl = p.cfg.Open
	case RegimeRestricted:
		tl = p.cfg.Restricted
	default:
		tl = p.cfg.Init
	}
	if tl == nil {
		return restriction.Restriction{}, false, nil
	}
	r, expr, ok := tl.At(ctx, day)
	if !ok {
		return restriction.Restriction{}, false, nil
	}
	resolved := restriction.None().Merge(r)
	if expr != nil {
		inc, _ := p.incidence.Value(location)
		rf, err := expr.Float(VarsFor(day, p.last, inc, scopeLocation(location)))
		if err != nil {
			return restriction.Restriction{}, false, fmt.Errorf("%s at %s day %d: %w", ctx, location, day, err)
		}
		resolved = resolved.WithRemainingFraction(clamp01(rf))
	}
	return resolved, true, nil
}

func scopeLocation(key string) string {
	if key == report.TotalKey {
		return ""
	}
	return key
}

// CheckpointState implements Checkpointer.
func (p *AdaptivePolicy) CheckpointState() State {
	st := State{LastReport: p.last, Incidence: p.incidence.State()}
	for _, loc := range p.scopeKeys() {
		for _, ctx := range p.contexts() {
			r := p.regimes[loc][ctx]
			st.Regimes = append(st.Regimes, RegimeState{
				Location: loc, Context: ctx, Regime: r.regime, Since: r.since, Changed: r.changed,
			})
		}
	}
	return st
}

// RestoreState implements Checkpointer.
func (p *AdaptivePolicy) RestoreState(st State) error {
	p.last = st.LastReport
	p.incidence = report.RestoreIncidence(st.Incidence)
	for _, rs := range st.Regimes {
		states, ok := p.regimes[rs.Location]
		if !ok {
			return fmt.Errorf("restore regime: unknown location %q", rs.Location)
		}
		target, ok := states[rs.Context]
		if !ok {
			return fmt.Errorf("restore regime: unknown context %q", rs.Context)
		}
		target.regime, target.since, target.changed = rs.Regime, rs.Since, rs.Changed
	}
	return nil
}
