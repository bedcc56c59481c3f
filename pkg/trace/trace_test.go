package trace

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_StableOrder(t *testing.T) {
	ivs := []Interval{
		{Day: 1, PersonID: "b", ContainerID: "c2", Context: "work", Start: 0, End: 100},
		{Day: 1, PersonID: "a", ContainerID: "c2", Context: "work", Start: 50, End: 150},
		{Day: 1, PersonID: "a", ContainerID: "c1", Context: "home", Start: 0, End: 10},
		{Day: 1, PersonID: "a", ContainerID: "c2", Context: "work", Start: 200, End: 300},
		{Day: 1, PersonID: "z", ContainerID: "c1", Context: "home", Start: 5, End: 5},
	}
	got := Group(ivs)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)
	require.Len(t, got[0].Members, 1, "zero-length interval dropped")
	require.Len(t, got[1].Members, 2)
	assert.Equal(t, "a", got[1].Members[0].PersonID)
	assert.Len(t, got[1].Members[0].Spans, 2)
}

func TestJoint_SumsOverlapsAndReportsEnd(t *testing.T) {
	c := Group([]Interval{
		{Day: 1, PersonID: "a", ContainerID: "c", Context: "work", Start: 0, End: 100},
		{Day: 1, PersonID: "a", ContainerID: "c", Context: "work", Start: 200, End: 300},
		{Day: 1, PersonID: "b", ContainerID: "c", Context: "work", Start: 50, End: 250},
	})[0]

	e := Joint(c.Members[0], c.Members[1])
	assert.Equal(t, 100.0, e.Seconds)
	assert.Equal(t, 250, e.End)
}

func TestJoint_NoOverlap(t *testing.T) {
	c := Group([]Interval{
		{Day: 1, PersonID: "a", ContainerID: "c", Context: "work", Start: 0, End: 100},
		{Day: 1, PersonID: "b", ContainerID: "c", Context: "work", Start: 100, End: 250},
	})[0]
	assert.Equal(t, Exposure{}, Joint(c.Members[0], c.Members[1]))
}

func TestInterval_Validate(t *testing.T) {
	require.NoError(t, Interval{Day: 1, PersonID: "a", ContainerID: "c", Context: "x", Start: 0, End: SecondsPerDay}.Validate())
	require.ErrorIs(t, Interval{Day: 1, PersonID: "a", ContainerID: "c", Context: "x", Start: 10, End: 5}.Validate(), ErrInvalidInterval)
	require.ErrorIs(t, Interval{Day: 1, ContainerID: "c", Context: "x"}.Validate(), ErrInvalidInterval)
}

func TestReadJSONL_AndCycle(t *testing.T) {
	input := `{"day":1,"person":"a","container":"c","context":"work","start":0,"end":60}
{"day":2,"person":"b","container":"c","context":"work","start":0,"end":60}
`
	ivs, err := ReadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ivs, 2)

	src, err := NewMemorySource(ivs, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, src.Days())

	day3, err := src.Day(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, day3, 1)
	assert.Equal(t, "a", day3[0].PersonID)

	day4, err := src.Day(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "b", day4[0].PersonID)
}

func TestReadJSONL_RejectsUnknownFields(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader(`{"day":1,"who":"a"}`))
	require.Error(t, err)
}
