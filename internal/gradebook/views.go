package gradebook

import (
	"context"

	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

type NodeRef struct {
	ID       int64               `json:"id"`
	Name     string              `json:"name"`
	Priority *weighting.Priority `json:"priority,omitempty"`
	Weight   *float64            `json:"weight,omitempty"`
}

type ACView struct {
	ID               int64     `json:"ac_id"`
	Name             string    `json:"ac_name"`
	MaxMarks         float64   `json:"max_marks"`
	AverageScore     *float64  `json:"average_score"`
	LearningOutcomes []NodeRef `json:"learning_outcomes"`
}

type LOView struct {
	ID                 int64     `json:"lo_id"`
	Name               string    `json:"lo_name"`
	ReportOutcomes     []NodeRef `json:"report_outcomes"`
	AssessmentCriteria []NodeRef `json:"assessment_criteria"`
}

type ROView struct {
	ID               int64     `json:"ro_id"`
	Name             string    `json:"ro_name"`
	LearningOutcomes []NodeRef `json:"learning_outcomes"`
}

type ScoreView struct {
	StudentID     int64   `json:"student_id"`
	ObtainedMarks float64 `json:"obtained_marks"`
	Value         float64 `json:"value"`
}

// names resolves node names once per request.
type names struct {
	st   outcome.Store
	seen map[outcome.Tier]map[int64]string
}

func newNames(st outcome.Store) *names {
	return &names{st: st, seen: map[outcome.Tier]map[int64]string{}}
}

func (n *names) get(ctx context.Context, tier outcome.Tier, id int64) (string, error) {
	m := n.seen[tier]
	if m == nil {
		m = map[int64]string{}
		n.seen[tier] = m
	}
	if name, ok := m[id]; ok {
		return name, nil
	}
	node, err := n.st.GetNode(ctx, tier, id)
	if err != nil {
		return "", err
	}
	m[id] = node.Name
	return node.Name, nil
}

// refs turns edges into named references on the far side of the edge.
func (n *names) refs(ctx context.Context, edges []outcome.Edge, towardTarget bool, withPriority bool) ([]NodeRef, error) {
	out := make([]NodeRef, 0, len(edges))
	for _, e := range edges {
		tier, id := e.Kind.Source(), e.SourceID
		if towardTarget {
			tier, id = e.Kind.Target(), e.TargetID
		}
		name, err := n.get(ctx, tier, id)
		if err != nil {
			return nil, err
		}
		r := NodeRef{ID: id, Name: name}
		if withPriority {
			p := e.Priority
			r.Priority = &p
			r.Weight = e.Weight
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) ListACs(ctx context.Context, scope outcome.Scope) ([]ACView, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	nodes, err := s.reads.ListNodes(ctx, outcome.TierAC, outcome.FilterFor(scope))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	scores, err := s.reads.ListScores(ctx, outcome.TierAC, ids, nil)
	if err != nil {
		return nil, err
	}
	totals := map[int64][2]float64{}
	for _, sc := range scores {
		t := totals[sc.NodeID]
		totals[sc.NodeID] = [2]float64{t[0] + sc.Value, t[1] + 1}
	}

	nm := newNames(s.reads)
	out := make([]ACView, 0, len(nodes))
	for _, n := range nodes {
		edges, err := s.reads.ListEdgesFrom(ctx, outcome.ACToLO, n.ID)
		if err != nil {
			return nil, err
		}
		los, err := nm.refs(ctx, edges, true, false)
		if err != nil {
			return nil, err
		}
		v := ACView{ID: n.ID, Name: n.Name, MaxMarks: n.MaxMarks, LearningOutcomes: los}
		if t, ok := totals[n.ID]; ok {
			avg := t[0] / t[1]
			v.AverageScore = &avg
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) ListLOs(ctx context.Context, scope outcome.Scope) ([]LOView, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	nodes, err := s.reads.ListNodes(ctx, outcome.TierLO, outcome.FilterFor(scope))
	if err != nil {
		return nil, err
	}
	nm := newNames(s.reads)
	out := make([]LOView, 0, len(nodes))
	for _, n := range nodes {
		up, err := s.reads.ListEdgesFrom(ctx, outcome.LOToRO, n.ID)
		if err != nil {
			return nil, err
		}
		down, err := s.reads.ListEdgesTo(ctx, outcome.ACToLO, n.ID)
		if err != nil {
			return nil, err
		}
		ros, err := nm.refs(ctx, up, true, false)
		if err != nil {
			return nil, err
		}
		acs, err := nm.refs(ctx, down, false, true)
		if err != nil {
			return nil, err
		}
		out = append(out, LOView{ID: n.ID, Name: n.Name, ReportOutcomes: ros, AssessmentCriteria: acs})
	}
	return out, nil
}

func (s *Service) ListROs(ctx context.Context, scope outcome.Scope) ([]ROView, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	nodes, err := s.reads.ListNodes(ctx, outcome.TierRO, outcome.FilterFor(scope))
	if err != nil {
		return nil, err
	}
	nm := newNames(s.reads)
	out := make([]ROView, 0, len(nodes))
	for _, n := range nodes {
		down, err := s.reads.ListEdgesTo(ctx, outcome.LOToRO, n.ID)
		if err != nil {
			return nil, err
		}
		los, err := nm.refs(ctx, down, false, true)
		if err != nil {
			return nil, err
		}
		out = append(out, ROView{ID: n.ID, Name: n.Name, LearningOutcomes: los})
	}
	return out, nil
}

// Mapping returns the incoming edges of an LO or RO with source names.
func (s *Service) Mapping(ctx context.Context, kind outcome.EdgeKind, target int64) ([]NodeRef, error) {
	if _, err := s.reads.GetNode(ctx, kind.Target(), target); err != nil {
		return nil, err
	}
	edges, err := s.reads.ListEdgesTo(ctx, kind, target)
	if err != nil {
		return nil, err
	}
	return newNames(s.reads).refs(ctx, edges, false, true)
}

func (s *Service) ACScores(ctx context.Context, ac int64) ([]ScoreView, error) {
	if _, err := s.reads.GetNode(ctx, outcome.TierAC, ac); err != nil {
		return nil, err
	}
	scores, err := s.reads.ListScores(ctx, outcome.TierAC, []int64{ac}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]ScoreView, 0, len(scores))
	for _, sc := range scores {
		out = append(out, ScoreView{StudentID: sc.StudentID, ObtainedMarks: *sc.Obtained, Value: sc.Value})
	}
	return out, nil
}
