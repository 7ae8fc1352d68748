package report

import (
	"context"
	"strconv"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

type LOScores struct {
	StudentID    int64       `json:"student_id"`
	LOScores     []ScoreLine `json:"lo_scores"`
	AverageScore *float64    `json:"average_score"`
}

// LOScores lists one student's LO scores with their mean. With lo > 0 only
// that LO is read and scope is ignored; otherwise every LO in scope is.
func (s *Service) LOScores(ctx context.Context, student, lo int64, scope outcome.Scope) (LOScores, error) {
	if student <= 0 {
		return LOScores{}, apperr.Validation("student id is required")
	}
	var nodes []outcome.Node
	if lo > 0 {
		n, err := s.st.GetNode(ctx, outcome.TierLO, lo)
		if err != nil {
			return LOScores{}, err
		}
		nodes = []outcome.Node{n}
		scope = n.Scope
	} else if err := scope.Validate(); err != nil {
		return LOScores{}, err
	}

	key := "lo-scores:" + scope.Key() + ":" + strconv.FormatInt(student, 10) + ":" + strconv.FormatInt(lo, 10)
	out, err := cached(ctx, s, partitionsFor(scope.Subject, scope.Year), key, func() (LOScores, error) {
		if nodes == nil {
			var err error
			if nodes, err = s.st.ListNodes(ctx, outcome.TierLO, outcome.FilterFor(scope)); err != nil {
				return LOScores{}, err
			}
		}
		names := make(map[int64]string, len(nodes))
		for _, n := range nodes {
			names[n.ID] = n.Name
		}
		scores, err := s.st.ListScores(ctx, outcome.TierLO, nodeIDs(nodes), []int64{student})
		if err != nil {
			return LOScores{}, err
		}
		res := LOScores{StudentID: student, LOScores: make([]ScoreLine, 0, len(scores))}
		var m mean
		for _, sc := range scores {
			res.LOScores = append(res.LOScores, ScoreLine{ID: sc.NodeID, Name: names[sc.NodeID], Value: sc.Value})
			m.add(sc.Value)
		}
		res.AverageScore = m.value()
		return res, nil
	})
	if err != nil {
		return LOScores{}, err
	}
	if len(out.LOScores) == 0 {
		return LOScores{}, apperr.NotFound("no LO scores for student %d", student)
	}
	return out, nil
}
