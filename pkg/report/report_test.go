package report

import (
	"testing"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_CountsAndCumulative(t *testing.T) {
	a := disease.NewPerson(disease.Attributes{ID: "a", Location: "north"})
	b := disease.NewPerson(disease.Attributes{ID: "b", Location: "north"})
	c := disease.NewPerson(disease.Attributes{ID: "c", Location: "south"})

	a.Infect(1, disease.DefaultStrain)
	a.SetStatus(2, disease.Contagious)
	a.SetStatus(3, disease.ShowingSymptoms)
	c.Infect(3, disease.DefaultStrain)

	persons := []*disease.Person{a, b, c}
	prev := &Report{Day: 2, Total: Counts{CumulativeSymptomatic: 4}, ByLocation: map[string]Counts{"north": {CumulativeSymptomatic: 1}}}
	r := Build(3, persons, prev)

	assert.Equal(t, 3, r.Total.Population)
	assert.Equal(t, 1, r.Total.NewSymptomatic)
	assert.Equal(t, 1, r.Total.NewInfections)
	assert.Equal(t, 5, r.Total.CumulativeSymptomatic)
	assert.Equal(t, 1, r.Total.ByStatus[disease.Susceptible])

	north, ok := r.Location("north")
	require.True(t, ok)
	assert.Equal(t, 2, north.Population)
	assert.Equal(t, 2, north.CumulativeSymptomatic)
	assert.Equal(t, []string{"north", "south"}, r.Locations())

	total, ok := r.Location(TotalKey)
	require.True(t, ok)
	assert.Equal(t, r.Total.Population, total.Population)
}

func TestIncidence_WindowSum(t *testing.T) {
	inc := NewIncidence(3)

	inc.Add(TotalKey, 1, 100_000)
	inc.Add(TotalKey, 2, 100_000)
	_, ok := inc.Value(TotalKey)
	assert.False(t, ok, "window not yet filled")

	inc.Add(TotalKey, 3, 100_000)
	v, ok := inc.Value(TotalKey)
	require.True(t, ok)
	assert.InDelta(t, 6, v, 1e-9)

	inc.Add(TotalKey, 10, 100_000)
	v, _ = inc.Value(TotalKey)
	assert.InDelta(t, 15, v, 1e-9)
}

func TestIncidence_StateRoundTrip(t *testing.T) {
	inc := NewIncidence(2)
	for _, n := range []int{4, 5, 6} {
		inc.Add("north", n, 50_000)
	}

	restored := RestoreIncidence(inc.State())
	want, _ := inc.Value("north")
	got, ok := restored.Value("north")
	require.True(t, ok)
	assert.InDelta(t, want, got, 1e-9)

	inc.Add("north", 1, 50_000)
	restored.Add("north", 1, 50_000)
	want, _ = inc.Value("north")
	got, _ = restored.Value("north")
	assert.InDelta(t, want, got, 1e-9)
}
