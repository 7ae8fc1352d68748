package propagation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/db/dbtest"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/propagation"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

var scope = outcome.Scope{Subject: "science", Year: "2024", Quarter: "1", Class: "6"}

const student = int64(7)

// fixture: AC1 (max 10) -h-> LO1 <-l- AC2 (max 20); LO1 -m-> RO1
type fixture struct {
	store    *outcome.SQLStore
	eng      *propagation.Engine
	ac1, ac2 int64
	lo1, ro1 int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := outcome.NewSQLStore(dbtest.Open(t))
	f := &fixture{store: s, eng: propagation.New(s)}

	mk := func(n outcome.Node) int64 {
		n.Scope = scope
		got, err := s.CreateNode(ctx, n)
		require.NoError(t, err)
		return got.ID
	}
	f.ac1 = mk(outcome.Node{Tier: outcome.TierAC, Name: "AC1", MaxMarks: 10})
	f.ac2 = mk(outcome.Node{Tier: outcome.TierAC, Name: "AC2", MaxMarks: 20})
	f.lo1 = mk(outcome.Node{Tier: outcome.TierLO, Name: "LO1"})
	f.ro1 = mk(outcome.Node{Tier: outcome.TierRO, Name: "RO1"})

	require.NoError(t, s.ReplaceEdges(ctx, outcome.ACToLO, f.lo1, []outcome.Edge{
		{SourceID: f.ac1, Priority: weighting.High},
		{SourceID: f.ac2, Priority: weighting.Low},
	}))
	require.NoError(t, s.ReplaceEdges(ctx, outcome.LOToRO, f.ro1, []outcome.Edge{
		{SourceID: f.lo1, Priority: weighting.Medium},
	}))
	return f
}

func (f *fixture) setAC(t *testing.T, ac int64, obtained, max float64) {
	t.Helper()
	o := obtained
	require.NoError(t, f.store.UpsertScores(context.Background(), outcome.TierAC, []outcome.Score{
		{StudentID: student, NodeID: ac, Value: obtained / max, Obtained: &o},
	}))
}

func (f *fixture) score(t *testing.T, tier outcome.Tier, node int64) (float64, bool) {
	t.Helper()
	got, err := f.store.ListScores(context.Background(), tier, []int64{node}, []int64{student})
	require.NoError(t, err)
	if len(got) == 0 {
		return 0, false
	}
	return got[0].Value, true
}

func TestOnACScores_WeightedSum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)
	f.setAC(t, f.ac2, 10, 20)

	sum := propagation.NewSummary()
	require.NoError(t, f.eng.OnACScores(ctx, f.ac1, []int64{student}, sum))

	lo, ok := f.score(t, outcome.TierLO, f.lo1)
	require.True(t, ok)
	assert.InDelta(t, 5.0/7, lo, 1e-9)

	// RO1 has a single medium edge, so its weight is 1
	ro, ok := f.score(t, outcome.TierRO, f.ro1)
	require.True(t, ok)
	assert.InDelta(t, lo, ro, 1e-12)

	assert.Equal(t, []int64{f.lo1}, sum.RecomputedLOs)
	assert.Equal(t, []int64{f.ro1}, sum.RecomputedROs)
	assert.Equal(t, 2, sum.ScoresWritten)
	assert.Empty(t, sum.Warnings)

	edges, err := f.store.ListEdgesTo(ctx, outcome.ACToLO, f.lo1)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.InDelta(t, 0.5/0.7, *edges[0].Weight, 1e-9)
	assert.InDelta(t, 0.2/0.7, *edges[1].Weight, 1e-9)
}

func TestOnACScores_MissingSourceIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)

	require.NoError(t, f.eng.OnACScores(ctx, f.ac1, []int64{student}, propagation.NewSummary()))

	lo, ok := f.score(t, outcome.TierLO, f.lo1)
	require.True(t, ok)
	assert.InDelta(t, 0.5714, lo, 1e-4)
}

func TestOnLOEdgesChanged_CascadesAfterRescale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)
	f.setAC(t, f.ac2, 10, 20)
	require.NoError(t, f.eng.OnACScores(ctx, f.ac1, []int64{student}, propagation.NewSummary()))
	loBefore, _ := f.score(t, outcome.TierLO, f.lo1)
	roBefore, _ := f.score(t, outcome.TierRO, f.ro1)

	// AC1 max_marks 10 -> 16: the stored 8 marks now mean 0.5
	f.setAC(t, f.ac1, 8, 16)
	sum := propagation.NewSummary()
	require.NoError(t, f.eng.OnLOEdgesChanged(ctx, sum, f.lo1))

	loAfter, _ := f.score(t, outcome.TierLO, f.lo1)
	roAfter, _ := f.score(t, outcome.TierRO, f.ro1)
	assert.InDelta(t, 0.5, loAfter, 1e-9)
	assert.NotEqual(t, loBefore, loAfter)
	assert.NotEqual(t, roBefore, roAfter)
	assert.InDelta(t, loAfter, roAfter, 1e-12)
	assert.Equal(t, []int64{f.ro1}, sum.RecomputedROs)
}

func TestRecompute_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 7, 10)
	f.setAC(t, f.ac2, 13, 20)

	require.NoError(t, f.eng.OnLOEdgesChanged(ctx, propagation.NewSummary(), f.lo1))
	lo1, _ := f.score(t, outcome.TierLO, f.lo1)
	ro1, _ := f.score(t, outcome.TierRO, f.ro1)
	e1, err := f.store.ListEdgesTo(ctx, outcome.ACToLO, f.lo1)
	require.NoError(t, err)

	require.NoError(t, f.eng.OnLOEdgesChanged(ctx, propagation.NewSummary(), f.lo1))
	lo2, _ := f.score(t, outcome.TierLO, f.lo1)
	ro2, _ := f.score(t, outcome.TierRO, f.ro1)
	e2, err := f.store.ListEdgesTo(ctx, outcome.ACToLO, f.lo1)
	require.NoError(t, err)

	assert.Equal(t, lo1, lo2)
	assert.Equal(t, ro1, ro2)
	assert.Equal(t, e1, e2)
}

func TestRecompute_NoPrioritizedEdgesClearsScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)
	require.NoError(t, f.eng.OnACScores(ctx, f.ac1, []int64{student}, propagation.NewSummary()))
	_, ok := f.score(t, outcome.TierLO, f.lo1)
	require.True(t, ok)

	require.NoError(t, f.store.ReplaceEdges(ctx, outcome.ACToLO, f.lo1, []outcome.Edge{
		{SourceID: f.ac1}, {SourceID: f.ac2},
	}))
	sum := propagation.NewSummary()
	require.NoError(t, f.eng.OnLOEdgesChanged(ctx, sum, f.lo1))

	_, ok = f.score(t, outcome.TierLO, f.lo1)
	assert.False(t, ok, "unscoreable LO keeps no score")
	_, ok = f.score(t, outcome.TierRO, f.ro1)
	assert.False(t, ok, "RO built only from that LO loses its score")
	require.NotEmpty(t, sum.Warnings)
	assert.Contains(t, sum.Warnings[0], "no prioritized")

	edges, err := f.store.ListEdgesTo(ctx, outcome.ACToLO, f.lo1)
	require.NoError(t, err)
	for _, e := range edges {
		assert.Nil(t, e.Weight)
	}
}

func TestDeleteNode_LOCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)
	require.NoError(t, f.eng.OnACScores(ctx, f.ac1, []int64{student}, propagation.NewSummary()))
	_, ok := f.score(t, outcome.TierRO, f.ro1)
	require.True(t, ok)

	sum := propagation.NewSummary()
	require.NoError(t, f.eng.DeleteNode(ctx, outcome.TierLO, f.lo1, sum))

	_, err := f.store.GetNode(ctx, outcome.TierLO, f.lo1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	from, err := f.store.ListEdgesFrom(ctx, outcome.ACToLO, f.ac1)
	require.NoError(t, err)
	assert.Empty(t, from)
	to, err := f.store.ListEdgesTo(ctx, outcome.LOToRO, f.ro1)
	require.NoError(t, err)
	assert.Empty(t, to)

	_, ok = f.score(t, outcome.TierLO, f.lo1)
	assert.False(t, ok)
	_, ok = f.score(t, outcome.TierRO, f.ro1)
	assert.False(t, ok, "RO left without children has no score, not a zero")
	assert.Equal(t, []int64{f.ro1}, sum.RecomputedROs)
	assert.Equal(t, 2, sum.ScoresCleared)
}

func TestDeleteNode_ACRecomputesLO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)
	f.setAC(t, f.ac2, 10, 20)
	require.NoError(t, f.eng.OnACScores(ctx, f.ac1, []int64{student}, propagation.NewSummary()))

	require.NoError(t, f.eng.DeleteNode(ctx, outcome.TierAC, f.ac1, propagation.NewSummary()))

	// only AC2 remains, so its weight becomes 1
	lo, ok := f.score(t, outcome.TierLO, f.lo1)
	require.True(t, ok)
	assert.InDelta(t, 0.5, lo, 1e-9)
}

func TestDeleteNode_Missing(t *testing.T) {
	f := newFixture(t)
	err := f.eng.DeleteNode(context.Background(), outcome.TierRO, f.ro1+99, propagation.NewSummary())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

type failingStore struct {
	propagation.Store
	err error
}

func (s failingStore) UpsertScores(ctx context.Context, tier outcome.Tier, scores []outcome.Score) error {
	if tier == outcome.TierRO {
		return s.err
	}
	return s.Store.UpsertScores(ctx, tier, scores)
}

func TestOnACScores_StorageErrorIsReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setAC(t, f.ac1, 8, 10)

	boom := errors.New("disk full")
	eng := propagation.New(failingStore{Store: f.store, err: boom})
	err := eng.OnACScores(ctx, f.ac1, []int64{student}, propagation.NewSummary())
	assert.ErrorIs(t, err, boom)
}
