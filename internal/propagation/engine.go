// Package propagation recomputes derived LO and RO scores whenever an
// upstream score, mapping or node changes.
//
// Scores flow AC -> LO -> RO. For a target node the incoming edges are
// normalized into weights and each student's score is the weighted sum over
// the sources that student has a score for. Missing source scores contribute
// nothing and the remaining weights are not rescaled. A target without any
// prioritized incoming edge has no basis for a score: its scores are deleted,
// never zeroed, and a warning is recorded.
//
// An Engine writes through the Store it was built with. Build it on a
// transaction so a failure anywhere in a cascade rolls the whole request back.
package propagation

import (
	"context"
	"fmt"
	"sort"

	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

// Store is the slice of outcome.Store the engine needs.
type Store interface {
	GetNode(ctx context.Context, tier outcome.Tier, id int64) (outcome.Node, error)
	DeleteNode(ctx context.Context, tier outcome.Tier, id int64) error
	ListEdgesTo(ctx context.Context, kind outcome.EdgeKind, target int64) ([]outcome.Edge, error)
	ListEdgesFrom(ctx context.Context, kind outcome.EdgeKind, source int64) ([]outcome.Edge, error)
	SetEdgeWeights(ctx context.Context, kind outcome.EdgeKind, target int64, w weighting.Weights) error
	DeleteEdgesOf(ctx context.Context, tier outcome.Tier, id int64) error
	UpsertScores(ctx context.Context, tier outcome.Tier, scores []outcome.Score) error
	ListScores(ctx context.Context, tier outcome.Tier, nodes []int64, students []int64) ([]outcome.Score, error)
	DeleteScores(ctx context.Context, tier outcome.Tier, node int64, students []int64) (int, error)
	ScoredStudents(ctx context.Context, tier outcome.Tier, nodes []int64) ([]int64, error)
}

type Engine struct {
	store Store
}

func New(store Store) *Engine { return &Engine{store: store} }

// Summary describes what one request recalculated.
type Summary struct {
	RunID         string   `json:"run_id,omitempty"`
	RecomputedLOs []int64  `json:"recomputed_lo_ids"`
	RecomputedROs []int64  `json:"recomputed_ro_ids"`
	ScoresWritten int      `json:"scores_written"`
	ScoresCleared int      `json:"scores_cleared"`
	Warnings      []string `json:"warnings"`
}

func NewSummary() *Summary {
	return &Summary{RecomputedLOs: []int64{}, RecomputedROs: []int64{}, Warnings: []string{}}
}

func (s *Summary) warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

func (s *Summary) markRecomputed(t outcome.Tier, id int64) {
	list := &s.RecomputedLOs
	if t == outcome.TierRO {
		list = &s.RecomputedROs
	}
	for _, x := range *list {
		if x == id {
			return
		}
	}
	*list = append(*list, id)
}

// RecomputeLO recomputes lo for students; nil students means everyone with a
// relevant score.
func (e *Engine) RecomputeLO(ctx context.Context, lo int64, students []int64, sum *Summary) error {
	return e.recompute(ctx, outcome.ACToLO, lo, students, sum)
}

// RecomputeRO recomputes ro for students; nil students means everyone with a
// relevant score.
func (e *Engine) RecomputeRO(ctx context.Context, ro int64, students []int64, sum *Summary) error {
	return e.recompute(ctx, outcome.LOToRO, ro, students, sum)
}

func (e *Engine) recompute(ctx context.Context, kind outcome.EdgeKind, target int64, students []int64, sum *Summary) error {
	tier := kind.Target()
	sum.markRecomputed(tier, target)

	edges, err := e.store.ListEdgesTo(ctx, kind, target)
	if err != nil {
		return err
	}
	inputs := make([]weighting.Input, 0, len(edges))
	for _, ed := range edges {
		inputs = append(inputs, weighting.Input{SourceID: ed.SourceID, Priority: ed.Priority})
	}
	w := weighting.Normalize(inputs)
	if len(edges) > 0 {
		if err := e.store.SetEdgeWeights(ctx, kind, target, w); err != nil {
			return err
		}
	}

	if w.Empty() {
		n, err := e.store.DeleteScores(ctx, tier, target, students)
		if err != nil {
			return err
		}
		sum.ScoresCleared += n
		if len(edges) == 0 {
			sum.warnf("%s %d has no mapped %s; scores cleared", tier, target, kind.Source())
		} else {
			sum.warnf("%s %d has no prioritized %s; scores cleared", tier, target, kind.Source())
		}
		return nil
	}

	src, err := e.store.ListScores(ctx, kind.Source(), w.Sources(), students)
	if err != nil {
		return err
	}
	byStudent := make(map[int64]map[int64]float64)
	for _, sc := range src {
		m := byStudent[sc.StudentID]
		if m == nil {
			m = make(map[int64]float64)
			byStudent[sc.StudentID] = m
		}
		m[sc.NodeID] = sc.Value
	}

	candidates := students
	if candidates == nil {
		existing, err := e.store.ScoredStudents(ctx, tier, []int64{target})
		if err != nil {
			return err
		}
		candidates = existing
		for id := range byStudent {
			candidates = append(candidates, id)
		}
	}
	candidates = sortedUnique(candidates)

	var (
		writes []outcome.Score
		stale  []int64
	)
	for _, sid := range candidates {
		v, ok := weighting.WeightedSum(w, byStudent[sid])
		if !ok {
			stale = append(stale, sid)
			continue
		}
		writes = append(writes, outcome.Score{StudentID: sid, NodeID: target, Value: v})
	}

	if len(writes) == 0 && len(stale) == 0 {
		sum.warnf("%s %d: no %s scores recorded yet; nothing to compute", tier, target, kind.Source())
		return nil
	}
	if len(writes) > 0 {
		if err := e.store.UpsertScores(ctx, tier, writes); err != nil {
			return err
		}
		sum.ScoresWritten += len(writes)
	}
	if len(stale) > 0 {
		n, err := e.store.DeleteScores(ctx, tier, target, stale)
		if err != nil {
			return err
		}
		sum.ScoresCleared += n
	}
	return nil
}

// OnACScores runs after AC scores were written for students: every LO the
// AC feeds through a prioritized edge is recomputed, then every RO those
// LOs feed.
func (e *Engine) OnACScores(ctx context.Context, ac int64, students []int64, sum *Summary) error {
	los, err := e.targetsOf(ctx, outcome.ACToLO, []int64{ac}, true)
	if err != nil {
		return err
	}
	if len(los) == 0 {
		sum.warnf("%s %d is not mapped to any prioritized %s", outcome.TierAC, ac, outcome.TierLO)
		return nil
	}
	for _, lo := range los {
		if err := e.RecomputeLO(ctx, lo, students, sum); err != nil {
			return err
		}
	}
	ros, err := e.targetsOf(ctx, outcome.LOToRO, los, true)
	if err != nil {
		return err
	}
	for _, ro := range ros {
		if err := e.RecomputeRO(ctx, ro, students, sum); err != nil {
			return err
		}
	}
	return nil
}

// OnLOEdgesChanged fully recomputes los after their AC mapping (or an
// input AC's scale) changed, then cascades to the ROs they feed.
func (e *Engine) OnLOEdgesChanged(ctx context.Context, sum *Summary, los ...int64) error {
	los = sortedUnique(los)
	for _, lo := range los {
		if err := e.RecomputeLO(ctx, lo, nil, sum); err != nil {
			return err
		}
	}
	ros, err := e.targetsOf(ctx, outcome.LOToRO, los, true)
	if err != nil {
		return err
	}
	return e.OnROEdgesChanged(ctx, sum, ros...)
}

// OnROEdgesChanged fully recomputes ros after their LO mapping changed.
func (e *Engine) OnROEdgesChanged(ctx context.Context, sum *Summary, ros ...int64) error {
	for _, ro := range sortedUnique(ros) {
		if err := e.RecomputeRO(ctx, ro, nil, sum); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNode removes a node with its scores and edges, then recomputes the
// surviving neighbours one tier up so none keeps a score built from it.
func (e *Engine) DeleteNode(ctx context.Context, tier outcome.Tier, id int64, sum *Summary) error {
	if _, err := e.store.GetNode(ctx, tier, id); err != nil {
		return err
	}

	var (
		up     []int64
		upKind outcome.EdgeKind
	)
	switch tier {
	case outcome.TierAC, outcome.TierLO:
		upKind = outcome.ACToLO
		if tier == outcome.TierLO {
			upKind = outcome.LOToRO
		}
		ts, err := e.targetsOf(ctx, upKind, []int64{id}, false)
		if err != nil {
			return err
		}
		up = ts
	}

	n, err := e.store.DeleteScores(ctx, tier, id, nil)
	if err != nil {
		return err
	}
	sum.ScoresCleared += n
	if err := e.store.DeleteEdgesOf(ctx, tier, id); err != nil {
		return err
	}
	if err := e.store.DeleteNode(ctx, tier, id); err != nil {
		return err
	}

	switch tier {
	case outcome.TierAC:
		return e.OnLOEdgesChanged(ctx, sum, up...)
	case outcome.TierLO:
		return e.OnROEdgesChanged(ctx, sum, up...)
	}
	return nil
}

// targetsOf lists the distinct targets reached from sources over kind,
// optionally only through prioritized edges.
func (e *Engine) targetsOf(ctx context.Context, kind outcome.EdgeKind, sources []int64, prioritized bool) ([]int64, error) {
	var out []int64
	for _, src := range sources {
		edges, err := e.store.ListEdgesFrom(ctx, kind, src)
		if err != nil {
			return nil, err
		}
		for _, ed := range edges {
			if prioritized && !ed.Priority.IsSet() {
				continue
			}
			out = append(out, ed.TargetID)
		}
	}
	return sortedUnique(out), nil
}

func sortedUnique(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
