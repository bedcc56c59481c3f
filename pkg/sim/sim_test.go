package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/contagion/pkg/checkpoint"
	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/events"
	"github.com/Mindburn-Labs/contagion/pkg/exposure"
	"github.com/Mindburn-Labs/contagion/pkg/immunity"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/progression"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
	"github.com/Mindburn-Labs/contagion/pkg/trace"
)

const persons = 80

func personID(i int) string { return fmt.Sprintf("p%03d", i) }

// testTrace puts persons into households of 4 every day, and into workplaces of
// 10 on even days (shifted by one on odd days).
func testTrace(t *testing.T) trace.Source {
	t.Helper()
	var ivs []trace.Interval
	for day := 1; day <= 2; day++ {
		for i := 0; i < persons; i++ {
			ivs = append(ivs, trace.Interval{
				Day: day, PersonID: personID(i), ContainerID: fmt.Sprintf("home-%02d", i/4),
				Context: "home", Start: 0, End: 8 * 3600,
			})
			work := ((i + day) / 10) % (persons / 10)
			ivs = append(ivs, trace.Interval{
				Day: day, PersonID: personID(i), ContainerID: fmt.Sprintf("work-%02d", work),
				Context: "work", Start: 9*3600 + (i%3)*600, End: 17 * 3600,
			})
		}
	}
	src, err := trace.NewMemorySource(ivs, 2)
	require.NoError(t, err)
	return src
}

func testModel(t *testing.T) Model {
	t.Helper()
	calc, err := exposure.NewCalculator(exposure.Config{
		Kappa:        4e-6,
		Intensity:    exposure.IntensityTable{"home": 3, "work": 1},
		HomeContexts: []string{"home"},
	})
	require.NoError(t, err)

	factors, err := immunity.New(immunity.KindNonWaning, immunity.DefaultFactorConfig())
	require.NoError(t, err)
	engine, err := progression.NewEngine(progression.Config{
		Strategy: progression.NewDefault(0.05),
		Immunity: factors,
		Dwell:    map[disease.Status]int{disease.InfectedButNotContagious: 2},
	})
	require.NoError(t, err)

	timeline, err := policy.NewTimeline([]policy.Entry{
		{Day: 6, Context: "work", Restriction: restriction.None().WithRemainingFraction(0.5).
			WithMaskUsage(map[restriction.FaceMask]float64{restriction.MaskSurgical: 0.5})},
	}, nil)
	require.NoError(t, err)

	pop := make([]disease.Attributes, persons)
	for i := range pop {
		loc := "north"
		if i%2 == 1 {
			loc = "south"
		}
		pop[i] = disease.Attributes{ID: personID(i), Age: 5 + i, Location: loc}
	}

	return Model{
		Seed:            7,
		Algorithm:       rng.AlgorithmHMACSHA256,
		Days:            20,
		CheckpointEvery: 5,
		ScenarioDigest:  "sha256:test",
		Population:      pop,
		Trace:           testTrace(t),
		Exposure:        calc,
		Progression:     engine,
		Antibodies:      immunity.NewAntibodyModel(immunity.AntibodyConfig{ImmuneResponseSigma: 0.4}, []disease.Strain{disease.DefaultStrain}),
		NewPolicy: func() (policy.Policy, error) {
			return policy.NewFixed(timeline), nil
		},
		Seeds:        []Seed{{Day: 1, PersonID: "p000"}},
		RandomSeeds:  []RandomSeed{{FromDay: 1, ToDay: 2, Count: 3}},
		Vaccinations: []Vaccination{{Day: 3, PersonID: "p010", Type: "mrna"}},
	}
}

func run(t *testing.T, m Model, opts Options, days int) (Result, *events.MemorySink) {
	t.Helper()
	sink := events.NewMemorySink()
	opts.Sink = sink
	s, err := New(m, opts)
	require.NoError(t, err)
	res, err := s.Run(context.Background(), days)
	require.NoError(t, err)
	return res, sink
}

func payloads(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = fmt.Sprintf("%d/%s/%s", ev.Day, ev.Type, ev.Payload)
	}
	return out
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	m := testModel(t)
	one, sinkOne := run(t, m, Options{Workers: 1}, 20)
	four, sinkFour := run(t, m, Options{Workers: 4}, 20)

	require.Greater(t, one.Infections, 4, "the fixture should spread beyond the seeds")
	assert.Equal(t, one.Digest, four.Digest)
	assert.Equal(t, one.Events, four.Events)
	assert.Equal(t, payloads(sinkOne.Events()), payloads(sinkFour.Events()))
	assert.NotEqual(t, one.RunID, four.RunID)
}

func TestRun_SeedChangesOutcome(t *testing.T) {
	m := testModel(t)
	a, _ := run(t, m, Options{Workers: 2}, 10)
	m.Seed = 8
	b, _ := run(t, m, Options{Workers: 2}, 10)
	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestStep_FirstDayEvents(t *testing.T) {
	m := testModel(t)
	sink := events.NewMemorySink()
	s, err := New(m, Options{Workers: 2, Sink: sink})
	require.NoError(t, err)

	d, err := s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Day)
	assert.Equal(t, 4, d.Seeded, "one explicit and three random seeds")
	assert.Equal(t, persons/4+persons/10, d.Containers)

	evs := sink.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, events.TypeRestrictionSnapshot, evs[0].Type)
	assert.Equal(t, d.Seeded+d.Infections, sink.Count(events.TypeInfection))

	p0, ok := s.Population().Get("p000")
	require.True(t, ok)
	assert.Equal(t, disease.InfectedButNotContagious, p0.Status())
	assert.Equal(t, d.Seeded+d.Infections, d.Report.Total.NewInfections)
}

func TestStep_VaccinationBoostsNextDay(t *testing.T) {
	m := testModel(t)
	m.RandomSeeds = nil
	m.Population = append(m.Population, disease.Attributes{ID: "z-remote", Age: 40, Location: "north"})
	m.Vaccinations = []Vaccination{{Day: 3, PersonID: "z-remote", Type: "mrna"}}
	s, err := New(m, Options{Workers: 1})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Step(context.Background())
		require.NoError(t, err)
	}
	p, ok := s.Population().Get("z-remote")
	require.True(t, ok)
	assert.Equal(t, 1, p.NumVaccinations())
	assert.Zero(t, p.Antibodies(disease.DefaultStrain))

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	assert.Positive(t, p.Antibodies(disease.DefaultStrain))
	assert.Equal(t, disease.Susceptible, p.Status())
}

func TestRestore_ReproducesSubsequentEvents(t *testing.T) {
	ctx := context.Background()
	m := testModel(t)
	blobs, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := checkpoint.NewManager(blobs, checkpoint.NewMemoryIndex())

	sink := events.NewMemorySink()
	s, err := New(m, Options{Workers: 3, Sink: sink, Checkpoints: mgr})
	require.NoError(t, err)
	full, err := s.Run(ctx, 20)
	require.NoError(t, err)
	want := payloads(sink.Events())

	entries, err := mgr.List(ctx, full.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	cp, err := mgr.Load(ctx, full.RunID, 10)
	require.NoError(t, err)
	restored, err := Restore(ctx, m, Options{Workers: 1, Sink: sink}, cp)
	require.NoError(t, err)
	assert.Equal(t, 10, restored.Day())
	assert.Equal(t, full.RunID, restored.RunID())

	resumed, err := restored.Run(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, full.Digest, resumed.Digest)
	assert.Equal(t, want, payloads(sink.Events()))
	_, err = events.Verify(events.Head{}, sink.Events())
	require.NoError(t, err)
}

func TestRestore_RejectsOtherScenario(t *testing.T) {
	m := testModel(t)
	s, err := New(m, Options{Workers: 1})
	require.NoError(t, err)
	_, err = s.Step(context.Background())
	require.NoError(t, err)

	cp := s.Checkpoint()
	m.ScenarioDigest = "sha256:other"
	_, err = Restore(context.Background(), m, Options{}, cp)
	require.ErrorIs(t, err, ErrScenarioMismatch)
}

func TestCheckpoint_CarriesRunSeed(t *testing.T) {
	m := testModel(t)
	m.Seed = 42
	s, err := New(m, Options{Workers: 2})
	require.NoError(t, err)
	first, err := s.Step(context.Background())
	require.NoError(t, err)

	cp := s.Checkpoint()
	assert.Equal(t, uint64(42), cp.Seed)
	assert.Equal(t, 1, cp.Day)
	assert.Equal(t, first.Seeded, len(m.Seeds)+m.RandomSeeds[0].Count)

	restored, err := Restore(context.Background(), m, Options{Workers: 1}, cp)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Day())
}

func TestModel_Validate(t *testing.T) {
	err := Model{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace source is required")
	assert.Contains(t, err.Error(), "population is empty")

	m := testModel(t)
	m.RandomSeeds = []RandomSeed{{FromDay: 5, ToDay: 1, Count: 1}}
	require.Error(t, m.Validate())
}

func TestStep_UnknownSeedPersonFails(t *testing.T) {
	m := testModel(t)
	m.Seeds = []Seed{{Day: 1, PersonID: "nobody"}}
	s, err := New(m, Options{Workers: 1})
	require.NoError(t, err)
	_, err = s.Step(context.Background())
	require.Error(t, err)
}
