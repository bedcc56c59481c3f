package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/contagion/pkg/checkpoint"
	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/events"
	"github.com/Mindburn-Labs/contagion/pkg/exposure"
	"github.com/Mindburn-Labs/contagion/pkg/observability"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/progression"
	"github.com/Mindburn-Labs/contagion/pkg/report"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
	"github.com/Mindburn-Labs/contagion/pkg/trace"
)

// ErrScenarioMismatch is returned when a checkpoint was written by a different scenario.
var ErrScenarioMismatch = errors.New("checkpoint belongs to a different scenario")

// Options are the per-run settings that do not affect results.
type Options struct {
	// RunID defaults to a random UUID for new runs and to the checkpoint's run on restore.
	RunID string
	// Workers bounds the goroutines of each parallel phase; <= 0 means GOMAXPROCS.
	Workers     int
	Sink        events.Sink
	Checkpoints *checkpoint.Manager
	Metrics     *observability.Provider
}

// DayResult summarises one simulated day.
type DayResult struct {
	Day           int
	Containers    int
	Seeded        int
	Infections    int
	StatusChanges int
	Duration      time.Duration
	Report        *report.Report
}

// Result summarises a run.
type Result struct {
	RunID      string         `json:"run_id"`
	FirstDay   int            `json:"first_day"`
	LastDay    int            `json:"last_day"`
	Digest     string         `json:"digest"`
	Events     uint64         `json:"events"`
	Infections int            `json:"infections"`
	Final      *report.Report `json:"final"`
}

// Simulation is one run. It is driven from a single goroutine; the phases of
// a day fan out internally.
type Simulation struct {
	model   Model
	opts    Options
	runID   string
	workers int
	runSeed uint64
	src     *rng.Source
	pop     *disease.Population
	policy  policy.Policy
	log     *events.Log
	last    *report.Report
	day     int
	attrs   []attribute.KeyValue
	logger  *slog.Logger
}

// New starts a run at day 0 from the model's population.
func New(m Model, opts Options) (*Simulation, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	persons := make([]*disease.Person, 0, len(m.Population))
	for _, a := range m.Population {
		persons = append(persons, disease.NewPerson(a))
	}
	pop, err := disease.NewPopulation(persons)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	pol, err := m.NewPolicy()
	if err != nil {
		return nil, fmt.Errorf("sim: build policy: %w", err)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	s := newSimulation(m, opts, pop, pol, m.Seed, m.Algorithm)
	m.Antibodies.Init(pop.Persons(), s.src)
	s.log = events.NewLog(s.runID, opts.Sink)
	s.logger.Info("run created", "population", pop.Len(), "seed", m.Seed, "algorithm", m.Algorithm, "workers", s.workers)
	return s, nil
}

// Restore resumes a run from cp. Events after the checkpoint are dropped from
// the sink and regenerated by the following steps.
func Restore(ctx context.Context, m Model, opts Options, cp *checkpoint.Checkpoint) (*Simulation, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if cp.ScenarioDigest != m.ScenarioDigest {
		return nil, fmt.Errorf("sim: %w: checkpoint %s, scenario %s", ErrScenarioMismatch, cp.ScenarioDigest, m.ScenarioDigest)
	}
	persons := make([]*disease.Person, 0, len(cp.Persons))
	for _, st := range cp.Persons {
		p, err := disease.FromState(st)
		if err != nil {
			return nil, fmt.Errorf("sim: restore: %w", err)
		}
		persons = append(persons, p)
	}
	pop, err := disease.NewPopulation(persons)
	if err != nil {
		return nil, fmt.Errorf("sim: restore: %w", err)
	}
	pol, err := m.NewPolicy()
	if err != nil {
		return nil, fmt.Errorf("sim: build policy: %w", err)
	}
	if c, ok := pol.(policy.Checkpointer); ok {
		if err := c.RestoreState(cp.Policy); err != nil {
			return nil, fmt.Errorf("sim: restore policy: %w", err)
		}
	}
	algorithm, err := rng.ParseAlgorithm(cp.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("sim: restore: %w", err)
	}

	opts.RunID = cp.RunID
	s := newSimulation(m, opts, pop, pol, cp.Seed, algorithm)
	s.last = cp.Report
	s.day = cp.Day
	if opts.Sink != nil {
		if err := opts.Sink.Truncate(ctx, cp.RunID, cp.Events.Seq); err != nil {
			return nil, fmt.Errorf("sim: truncate events: %w", err)
		}
	}
	s.log = events.Resume(s.runID, cp.Events, opts.Sink)
	s.logger.InfoContext(ctx, "run restored", "day", cp.Day, "events", cp.Events.Seq)
	return s, nil
}

func newSimulation(m Model, opts Options, pop *disease.Population, pol policy.Policy, seed uint64, alg rng.Algorithm) *Simulation {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Simulation{
		model:   m,
		opts:    opts,
		runID:   opts.RunID,
		workers: workers,
		runSeed: seed,
		src:     rng.NewSource(seed, alg),
		pop:     pop,
		policy:  pol,
		attrs:   observability.RunAttributes(opts.RunID, workers),
		logger:  slog.Default().With("component", "sim", "run_id", opts.RunID),
	}
}

// RunID returns the run identifier.
func (s *Simulation) RunID() string { return s.runID }

// Day returns the last completed day.
func (s *Simulation) Day() int { return s.day }

// Population returns the simulated persons.
func (s *Simulation) Population() *disease.Population { return s.pop }

// Digest returns the hash over every event produced so far.
func (s *Simulation) Digest() string { return s.log.Hash() }

// Run steps until day last has completed.
func (s *Simulation) Run(ctx context.Context, last int) (Result, error) {
	res := Result{RunID: s.runID, FirstDay: s.day + 1}
	for s.day < last {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d, err := s.Step(ctx)
		if err != nil {
			return res, err
		}
		res.Infections += d.Seeded + d.Infections
		res.Final = d.Report
	}
	res.LastDay = s.day
	res.Digest = s.Digest()
	res.Events = s.log.Head().Seq
	s.logger.InfoContext(ctx, "run finished", "last_day", res.LastDay, "digest", res.Digest, "events", res.Events)
	return res, nil
}

// Step simulates the next day.
func (s *Simulation) Step(ctx context.Context) (DayResult, error) {
	day := s.day + 1
	start := time.Now()
	res := DayResult{Day: day}

	snap, err := s.policy.RestrictionsForDay(day)
	if err != nil {
		return res, fmt.Errorf("day %d: restrictions: %w", day, err)
	}
	if err := s.emit(day, events.TypeRestrictionSnapshot, events.RestrictionSnapshot{Restrictions: restrictionsOf(snap)}); err != nil {
		return res, err
	}

	if err := s.vaccinate(ctx, day); err != nil {
		return res, err
	}
	seeded, err := s.seed(day)
	if err != nil {
		return res, err
	}
	res.Seeded = len(seeded)

	intervals, err := s.model.Trace.Day(ctx, day)
	if err != nil {
		return res, fmt.Errorf("day %d: trace: %w", day, err)
	}
	containers := trace.Group(intervals)
	res.Containers = len(containers)

	candidates, err := s.processContainers(ctx, day, containers, snap)
	if err != nil {
		return res, fmt.Errorf("day %d: %w", day, err)
	}
	applied := s.applyInfections(day, exposure.Resolve(candidates))
	res.Infections = len(applied)

	infections := append(seeded, applied...)
	for _, inf := range infections {
		if err := s.emit(day, events.TypeInfection, inf); err != nil {
			return res, err
		}
		if err := s.emit(day, events.TypeStatusChange, events.StatusChange{
			Person: inf.Person, From: disease.Susceptible, To: disease.InfectedButNotContagious,
		}); err != nil {
			return res, err
		}
	}

	transitions, err := s.progress(ctx, day)
	if err != nil {
		return res, fmt.Errorf("day %d: %w", day, err)
	}
	for _, tr := range transitions {
		if err := s.emit(day, events.TypeStatusChange, events.StatusChange{Person: tr.PersonID, From: tr.From, To: tr.To}); err != nil {
			return res, err
		}
	}
	res.StatusChanges = len(infections) + len(transitions)

	rep := report.Build(day, s.pop.Persons(), s.last)
	if err := s.policy.Observe(day, rep); err != nil {
		return res, fmt.Errorf("day %d: observe: %w", day, err)
	}
	s.last = rep
	s.day = day
	res.Report = rep

	if err := s.log.Flush(ctx); err != nil {
		return res, fmt.Errorf("day %d: %w", day, err)
	}
	res.Duration = time.Since(start)
	s.record(ctx, res, infections, transitions)

	s.logger.InfoContext(ctx, "day complete",
		"day", day,
		"new_infections", len(infections),
		"status_changes", res.StatusChanges,
		"containers", res.Containers,
		"duration", res.Duration,
	)

	if every := s.model.CheckpointEvery; every > 0 && day%every == 0 && s.opts.Checkpoints != nil {
		if _, err := s.opts.Checkpoints.Save(ctx, s.Checkpoint()); err != nil {
			return res, fmt.Errorf("day %d: checkpoint: %w", day, err)
		}
	}
	return res, nil
}

func (s *Simulation) emit(day int, typ events.Type, payload any) error {
	if _, err := s.log.Append(day, typ, payload); err != nil {
		return fmt.Errorf("day %d: %w", day, err)
	}
	return nil
}

func restrictionsOf(snap policy.Snapshot) map[string]restriction.Restriction {
	out := make(map[string]restriction.Restriction)
	for _, ctx := range snap.Contexts() {
		out[ctx] = snap.Lookup(ctx)
	}
	return out
}

// processContainers samples every container in parallel. Person state is read
// only, so the result does not depend on scheduling.
func (s *Simulation) processContainers(ctx context.Context, day int, containers []trace.Container, snap policy.Snapshot) ([]exposure.Candidate, error) {
	results := make([][]exposure.Candidate, len(containers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range containers {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ct := containers[i]
			out, err := s.model.Exposure.ProcessContainer(day, ct, snap, s.pop, s.src.ContainerDay(day, ct.ID))
			if err != nil {
				return fmt.Errorf("container %s: %w", ct.ID, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []exposure.Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	s.logger.DebugContext(ctx, "containers processed", "day", day, "containers", len(containers), "candidates", len(all))
	return all, nil
}

// applyInfections infects the resolved targets in target order.
func (s *Simulation) applyInfections(day int, resolved []exposure.Candidate) []events.Infection {
	out := make([]events.Infection, 0, len(resolved))
	for _, c := range resolved {
		p, ok := s.pop.Get(c.TargetID)
		if !ok || !p.Infect(day, c.Strain) {
			continue
		}
		out = append(out, events.Infection{
			Time:            c.Time,
			Person:          c.TargetID,
			Infector:        c.InfectorID,
			Container:       c.ContainerID,
			Context:         c.TargetContext,
			InfectorContext: c.InfectorContext,
			Strain:          c.Strain,
			Probability:     c.Probability,
			Antibodies:      p.AntibodySnapshot(),
		})
	}
	return out
}

type stepResult struct {
	tr progression.Transition
	ok bool
}

// progress advances every person and then updates antibodies. Persons are
// split into contiguous chunks; each person draws from its own stream.
func (s *Simulation) progress(ctx context.Context, day int) ([]progression.Transition, error) {
	persons := s.pop.Persons()
	results := make([]stepResult, len(persons))

	chunk := (len(persons) + s.workers*4 - 1) / (s.workers * 4)
	if chunk < 1 {
		chunk = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for lo := 0; lo < len(persons); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(persons))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				p := persons[i]
				tr, ok, err := s.model.Progression.Step(p, day, s.src.PersonDay("progression", day, p.ID()))
				if err != nil {
					return err
				}
				results[i] = stepResult{tr: tr, ok: ok}
				s.model.Antibodies.Update(p, day)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []progression.Transition
	for _, r := range results {
		if r.ok {
			out = append(out, r.tr)
		}
	}
	return out, nil
}

func (s *Simulation) record(ctx context.Context, res DayResult, infections []events.Infection, transitions []progression.Transition) {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	stats := observability.DayStats{
		Day:           res.Day,
		Containers:    res.Containers,
		Infections:    make(map[string]int),
		StatusChanges: make(map[string]int),
		Duration:      res.Duration,
	}
	for _, inf := range infections {
		stats.Infections[string(inf.Strain)]++
		stats.StatusChanges[string(disease.InfectedButNotContagious)]++
	}
	for _, tr := range transitions {
		stats.StatusChanges[string(tr.To)]++
	}
	m.RecordDay(ctx, stats, s.attrs...)

	if ap, ok := s.policy.(*policy.AdaptivePolicy); ok {
		for _, r := range ap.CheckpointState().Regimes {
			attrs := append(observability.RegimeAttributes(r.Location, r.Context), s.attrs...)
			m.RecordRegime(ctx, r.Regime == policy.RegimeRestricted, attrs...)
		}
	}
}

// Checkpoint captures the state after the last completed day.
func (s *Simulation) Checkpoint() *checkpoint.Checkpoint {
	cp := &checkpoint.Checkpoint{
		RunID:          s.runID,
		Day:            s.day,
		Seed:           s.runSeed,
		Algorithm:      string(s.src.Algorithm()),
		ScenarioDigest: s.model.ScenarioDigest,
		Persons:        make([]disease.State, 0, s.pop.Len()),
		Report:         s.last,
		Events:         s.log.Head(),
	}
	for _, p := range s.pop.Persons() {
		cp.Persons = append(cp.Persons, p.State())
	}
	if c, ok := s.policy.(policy.Checkpointer); ok {
		cp.Policy = c.CheckpointState()
	}
	return cp
}
