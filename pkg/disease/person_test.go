package disease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPerson_Defaults(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1", Age: 40})

	assert.Equal(t, Susceptible, p.Status())
	assert.Equal(t, 1.0, p.Susceptibility())
	assert.Equal(t, 1.0, p.Infectivity())
	assert.Equal(t, 1.0, p.ImmuneResponseMultiplier())
	assert.Equal(t, QuarantineNone, p.Quarantine())
	assert.True(t, p.HadStatus(Susceptible))
	assert.False(t, p.HasAntibodies())
}

func TestPerson_InfectOnlySusceptible(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1", Age: 40})
	p.SetAntibodies("delta", 3)

	require.True(t, p.Infect(5, "delta"))
	assert.Equal(t, InfectedButNotContagious, p.Status())
	assert.Equal(t, Strain("delta"), p.Strain())
	assert.Equal(t, 3.0, p.AntibodiesAtInfection())
	assert.Equal(t, 1, p.NumInfections())

	assert.False(t, p.Infect(6, "omicron"), "second infection on a non-susceptible person must be a no-op")
	assert.Equal(t, Strain("delta"), p.Strain())
	assert.Equal(t, 1, p.NumInfections())
}

func TestPerson_DaysSince(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1"})
	p.Infect(2, DefaultStrain)
	p.SetStatus(3, Contagious)
	p.SetStatus(5, Recovered)

	assert.Equal(t, 8, p.DaysSince(InfectedButNotContagious, 10))
	assert.Equal(t, 5, p.DaysSince(Recovered, 10))
	assert.Equal(t, -1, p.DaysSince(Critical, 10))
	assert.Equal(t, 5, p.DaysInStatus(10))
}

func TestPerson_HadStatusSinceLastInfection(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1"})
	p.SetStatus(0, Critical)
	assert.True(t, p.HadStatusSinceLastInfection(Critical))

	p.SetStatus(1, Recovered)
	p.SetStatus(2, Susceptible)
	require.True(t, p.Infect(3, DefaultStrain))
	assert.False(t, p.HadStatusSinceLastInfection(Critical))
	assert.True(t, p.HadStatus(Critical))
	assert.True(t, p.HadStatusSinceLastInfection(InfectedButNotContagious))

	p.SetStatus(6, Critical)
	assert.True(t, p.HadStatusSinceLastInfection(Critical))
	assert.False(t, p.HadStatusSinceLastInfection(Recovered))
}

func TestPerson_LastImmunityDay(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1"})
	_, ok := p.LastImmunityDay()
	assert.False(t, ok)

	p.Vaccinate(4, "mRNA")
	day, ok := p.LastImmunityDay()
	require.True(t, ok)
	assert.Equal(t, 4, day)

	p.Infect(9, DefaultStrain)
	day, _ = p.LastImmunityDay()
	assert.Equal(t, 9, day)
}

func TestPerson_MaxAntibodiesTracksPeak(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1"})
	p.SetAntibodies("wild", 10)
	p.SetAntibodies("wild", 4)

	assert.Equal(t, 4.0, p.Antibodies("wild"))
	assert.Equal(t, 10.0, p.MaxAntibodies("wild"))
}

func TestPerson_HistoryIsCopied(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1"})
	h := p.History()
	h[0].Status = Deceased

	assert.Equal(t, Susceptible, p.History()[0].Status)
}

func TestStateRoundTrip(t *testing.T) {
	p := NewPerson(Attributes{ID: "p1", Age: 33, Location: "north"})
	p.Vaccinate(1, "mRNA")
	p.SetAntibodies("wild", 2.5)
	p.Infect(3, "wild")

	restored, err := FromState(p.State())
	require.NoError(t, err)
	assert.Equal(t, p.State(), restored.State())
}

func TestFromState_RejectsUnknownStatus(t *testing.T) {
	st := NewPerson(Attributes{ID: "p1"}).State()
	st.Status = "zombie"

	_, err := FromState(st)
	require.Error(t, err)
}

func TestNewPopulation(t *testing.T) {
	pop, err := NewPopulation([]*Person{
		NewPerson(Attributes{ID: "c", Location: "south"}),
		NewPerson(Attributes{ID: "a", Location: "north"}),
		NewPerson(Attributes{ID: "b"}),
	})
	require.NoError(t, err)

	ids := make([]string, 0, pop.Len())
	for _, p := range pop.Persons() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []string{"north", "south"}, pop.Locations())

	_, err = NewPopulation([]*Person{NewPerson(Attributes{ID: "a"}), NewPerson(Attributes{ID: "a"})})
	assert.Error(t, err)
}

func TestAgeTable_At(t *testing.T) {
	tbl := AgeTable{19: 0.45, 20: 1}

	assert.Equal(t, 0.45, tbl.At(5))
	assert.Equal(t, 1.0, tbl.At(70))
	assert.Equal(t, 1.0, AgeTable{}.At(30))

	mid := AgeTable{0: 0, 10: 1}
	assert.InDelta(t, 0.5, mid.At(5), 1e-12)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("showingSymptoms")
	require.NoError(t, err)
	assert.Equal(t, ShowingSymptoms, s)
	assert.True(t, s.CanInfect())

	_, err = ParseStatus("unknown")
	assert.Error(t, err)
}
