package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/exposure"
	"github.com/Mindburn-Labs/contagion/pkg/policy"
	"github.com/Mindburn-Labs/contagion/pkg/rng"
	"github.com/Mindburn-Labs/contagion/pkg/sim"
)

func TestLoad_Fixed(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "fixed.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "households", s.Name)
	assert.True(t, strings.HasPrefix(s.Digest, "sha256:"))

	m := s.Model()
	assert.Equal(t, uint64(11), m.Seed)
	assert.Equal(t, rng.AlgorithmChaCha20, m.Algorithm)
	assert.Equal(t, 21, m.Days)
	assert.Equal(t, 7, m.CheckpointEvery)
	assert.Len(t, m.Population, 40)
	assert.Equal(t, []sim.Seed{
		{Day: 1, PersonID: "p00"},
		{Day: 2, PersonID: "p17", Strain: "delta"},
	}, m.Seeds)
	assert.Equal(t, []sim.RandomSeed{{FromDay: 3, ToDay: 4, Count: 1}}, m.RandomSeeds)
	assert.Equal(t, []sim.Vaccination{{Day: 2, PersonID: "p05", Type: "mrna"}}, m.Vaccinations)
	assert.Equal(t, []disease.Strain{"delta", "wild"}, m.Antibodies.Strains())

	pol, err := m.NewPolicy()
	require.NoError(t, err)
	snap, err := pol.RestrictionsForDay(8)
	require.NoError(t, err)
	rf, ok := snap.Lookup("work").RemainingFraction()
	require.True(t, ok, "2020-03-08 is day 8")
	assert.Equal(t, 0.5, rf)

	snap, err = pol.RestrictionsForDay(16)
	require.NoError(t, err)
	rf, _ = snap.Lookup("work").RemainingFraction()
	assert.InDelta(t, 0.75, rf, 1e-9)
}

func TestLoad_FreshPolicyPerRun(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "adaptive.yaml"))
	require.NoError(t, err)
	m := s.Model()

	a, err := m.NewPolicy()
	require.NoError(t, err)
	b, err := m.NewPolicy()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	ap, ok := a.(*policy.AdaptivePolicy)
	require.True(t, ok)
	assert.Equal(t, policy.RegimeInitial, ap.Regime("north", "work"))
}

func TestLoad_DigestCoversReferencedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"fixed.yaml", "persons.jsonl", "trace.jsonl"} {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	first, err := Load(filepath.Join(dir, "fixed.yaml"))
	require.NoError(t, err)
	again, err := Load(filepath.Join(dir, "fixed.yaml"))
	require.NoError(t, err)
	assert.Equal(t, first.Digest, again.Digest)

	f, err := os.OpenFile(filepath.Join(dir, "trace.jsonl"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`{"day":1,"person":"p01","container":"bus","context":"work","start":0,"end":600}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	changed, err := Load(filepath.Join(dir, "fixed.yaml"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, changed.Digest)
}

func TestLoad_RunsEndToEnd(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "adaptive.yaml"))
	require.NoError(t, err)
	run, err := sim.New(s.Model(), sim.Options{Workers: 2})
	require.NoError(t, err)
	res, err := run.Run(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, 14, res.LastDay)
	assert.GreaterOrEqual(t, res.Infections, 2)
}

const minimal = `
schema_version: "1.0.0"
name: minimal
days: 3
kappa: 1.0e-5
contexts:
  work: { intensity: 1 }
population:
  persons:
    - { id: a, age: 30 }
    - { id: b, age: 40 }
trace:
  file: trace.jsonl
`

func writeTrace(t *testing.T, dir string) {
	t.Helper()
	trace := `{"day":1,"person":"a","container":"c","context":"work","start":0,"end":3600}
{"day":1,"person":"b","container":"c","context":"work","start":0,"end":3600}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trace.jsonl"), []byte(trace), 0o644))
}

func parse(t *testing.T, doc string) (*Scenario, error) {
	t.Helper()
	dir := t.TempDir()
	writeTrace(t, dir)
	return Parse([]byte(doc), dir)
}

func TestParse_Minimal(t *testing.T) {
	s, err := parse(t, minimal)
	require.NoError(t, err)
	m := s.Model()
	assert.Equal(t, rng.AlgorithmHMACSHA256, m.Algorithm)
	assert.Len(t, m.Population, 2)

	pol, err := m.NewPolicy()
	require.NoError(t, err)
	_, ok := pol.(*policy.FixedPolicy)
	assert.True(t, ok)
}

func TestParse_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		path string
		is   error
	}{
		{
			name: "missing version",
			doc:  strings.Replace(minimal, `schema_version: "1.0.0"`, "", 1),
			path: "schema_version",
			is:   ErrSchemaVersion,
		},
		{
			name: "future version",
			doc:  strings.Replace(minimal, `"1.0.0"`, `"2.0.0"`, 1),
			path: "schema_version",
			is:   ErrSchemaVersion,
		},
		{
			name: "negative intensity",
			doc:  strings.Replace(minimal, "intensity: 1", "intensity: -1", 1),
			path: "contexts.work.intensity",
			is:   ErrSchemaViolation,
		},
		{
			name: "unknown key",
			doc:  minimal + "colour: blue\n",
			is:   ErrSchemaViolation,
		},
		{
			name: "undeclared policy context",
			doc: minimal + `policy:
  timeline:
    - { at: day-2, context: school, restriction: { remaining_fraction: 0 } }
`,
			path: "policy.timeline[0].context",
			is:   exposure.ErrUnknownContext,
		},
		{
			name: "ci correction above one",
			doc: minimal + `policy:
  timeline:
    - { at: day-2, context: work, restriction: { ci_correction: 5 } }
`,
			path: "policy.timeline[0].restriction.ci_correction",
			is:   ErrSchemaViolation,
		},
		{
			name: "overlapping windows",
			doc: minimal + `policy:
  windows:
    - { context: work, start: day-1, end: day-5, from: { remaining_fraction: 1 }, to: { remaining_fraction: 0.5 } }
    - { context: work, start: day-4, end: day-8, from: { remaining_fraction: 0.5 }, to: { remaining_fraction: 1 } }
`,
			path: "policy",
			is:   policy.ErrOverlappingWindow,
		},
		{
			name: "unknown dwell status",
			doc: minimal + `progression:
  dwell_days: { exposed: 2 }
`,
			path: "progression.dwell_days.exposed",
			is:   disease.ErrUnknownStatus,
		},
		{
			name: "date without start",
			doc: minimal + `seeding:
  infections:
    - { at: 2020-03-01, person: a }
`,
			path: "seeding.infections[0].at",
		},
		{
			name: "unknown seed person",
			doc: minimal + `seeding:
  infections:
    - { at: day-1, person: zed }
`,
			path: "seeding.infections[0].person",
		},
		{
			name: "bad trigger expression",
			doc: minimal + `policy:
  type: adaptive
  adaptive:
    triggers:
      - { context: work, open_at: 1, lockdown_at: 2, trigger: "incidence" }
    open: {}
    restricted: {}
`,
			path: "policy.adaptive.triggers[0].trigger",
		},
		{
			name: "lockdown below open",
			doc: minimal + `policy:
  type: adaptive
  adaptive:
    triggers:
      - { context: work, open_at: 5, lockdown_at: 2 }
    open: {}
    restricted: {}
`,
			path: "policy.adaptive.triggers[0].lockdown_at",
		},
		{
			name: "trace context without intensity",
			doc:  strings.Replace(minimal, "work: { intensity: 1 }", "home: { intensity: 1 }", 1),
			path: "trace.file",
			is:   exposure.ErrUnknownContext,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, tc.doc)
			require.Error(t, err)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			if tc.path != "" {
				assert.Equal(t, tc.path, ce.Path)
			}
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestParse_GeneratedPopulation(t *testing.T) {
	doc := strings.Replace(minimal, `  persons:
    - { id: a, age: 30 }
    - { id: b, age: 40 }`, `  generate: { count: 120, id_prefix: x, locations: [east, west], min_age: 10, max_age: 20 }`, 1)
	a, err := parse(t, doc)
	require.NoError(t, err)
	b, err := parse(t, doc)
	require.NoError(t, err)

	pop := a.Model().Population
	require.Len(t, pop, 120)
	assert.Equal(t, "x000", pop[0].ID)
	assert.Equal(t, "x119", pop[119].ID)
	assert.Equal(t, pop, b.Model().Population)
	for _, p := range pop {
		assert.GreaterOrEqual(t, p.Age, 10)
		assert.LessOrEqual(t, p.Age, 20)
		assert.Contains(t, []string{"east", "west"}, p.Location)
	}
}

func TestDottedPath(t *testing.T) {
	assert.Equal(t, "policy.timeline[2].at", dottedPath("/policy/timeline/2/at"))
	assert.Equal(t, "contexts.a/b", dottedPath("/contexts/a~1b"))
	assert.Equal(t, "", dottedPath(""))
}

func TestReadPersons(t *testing.T) {
	got, err := ReadPersons(strings.NewReader(`{"id":"a","age":3}` + "\n" + `{"id":"b","location":"x"}`))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[1].Location)

	_, err = ReadPersons(strings.NewReader(`{"age":3}`))
	require.Error(t, err)
	_, err = ReadPersons(strings.NewReader(``))
	require.Error(t, err)
}
