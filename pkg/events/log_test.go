package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/contagion/pkg/disease"
	"github.com/Mindburn-Labs/contagion/pkg/restriction"
)

func appendDay(t *testing.T, l *Log, day int) {
	t.Helper()
	_, err := l.Append(day, TypeRestrictionSnapshot, RestrictionSnapshot{
		Restrictions: map[string]restriction.Restriction{"work": restriction.None().WithRemainingFraction(0.5)},
	})
	require.NoError(t, err)
	_, err = l.Append(day, TypeInfection, Infection{
		Time: 3600, Person: "p2", Infector: "p1", Container: "c1", Context: "work",
		Strain: disease.DefaultStrain, Probability: 0.0423,
		Antibodies: map[disease.Strain]float64{disease.DefaultStrain: 0},
	})
	require.NoError(t, err)
	_, err = l.Append(day, TypeStatusChange, StatusChange{Person: "p1", From: disease.InfectedButNotContagious, To: disease.Contagious})
	require.NoError(t, err)
}

func TestLog_HashIndependentOfRunID(t *testing.T) {
	a := NewLog("run-a", nil)
	b := NewLog("run-b", nil)
	appendDay(t, a, 1)
	appendDay(t, b, 1)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, uint64(3), a.Head().Seq)
	assert.Contains(t, a.Hash(), "sha256:")
}

func TestLog_HashDependsOnOrderAndContent(t *testing.T) {
	a := NewLog("run", nil)
	appendDay(t, a, 1)

	b := NewLog("run", nil)
	appendDay(t, b, 2)
	assert.NotEqual(t, a.Hash(), b.Hash())

	c := NewLog("run", nil)
	_, err := c.Append(1, TypeStatusChange, StatusChange{Person: "p1", From: disease.InfectedButNotContagious, To: disease.Contagious})
	require.NoError(t, err)
	appendDay(t, c, 1)
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestLog_ResumeContinuesChain(t *testing.T) {
	full := NewLog("run", nil)
	appendDay(t, full, 1)
	head := full.Head()
	appendDay(t, full, 2)

	resumed := Resume("run", head, nil)
	appendDay(t, resumed, 2)
	assert.Equal(t, full.Head(), resumed.Head())
}

func TestLog_FlushAndVerify(t *testing.T) {
	sink := NewMemorySink()
	l := NewLog("run", sink)
	appendDay(t, l, 1)
	assert.Empty(t, sink.Events(), "nothing written before flush")

	require.NoError(t, l.Flush(context.Background()))
	require.NoError(t, l.Flush(context.Background()))
	evs := sink.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, 1, sink.Count(TypeInfection))

	head, err := Verify(Head{}, evs)
	require.NoError(t, err)
	assert.Equal(t, l.Head(), head)

	evs[1].Payload = []byte(`{"person":"p9"}`)
	_, err = Verify(Head{}, evs)
	require.Error(t, err)
}

func TestCanonical_SortsKeys(t *testing.T) {
	b, err := Canonical(map[string]any{"b": 1, "a": []int{2, 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[2,1],"b":1}`, string(b))
}

func TestMemorySink_Truncate(t *testing.T) {
	sink := NewMemorySink()
	l := NewLog("run", sink)
	appendDay(t, l, 1)
	appendDay(t, l, 2)
	require.NoError(t, l.Flush(context.Background()))

	require.NoError(t, sink.Truncate(context.Background(), "run", 3))
	evs := sink.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(3), evs[2].Seq)
}
