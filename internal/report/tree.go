package report

import (
	"context"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

type TreeAC struct {
	ID   int64  `json:"ac_id"`
	Name string `json:"ac_name"`
}

type TreeLO struct {
	ID                 int64    `json:"lo_id"`
	Name               string   `json:"lo_name"`
	AssessmentCriteria []TreeAC `json:"assessment_criteria"`
}

type TreeRO struct {
	ID               int64    `json:"ro_id"`
	Name             string   `json:"ro_name"`
	Quarter          string   `json:"quarter"`
	LearningOutcomes []TreeLO `json:"learning_outcomes"`
}

// MappingTree renders RO -> LO -> AC for a subject and year, optionally one
// class. Edges are listed whether or not they carry a priority.
func (s *Service) MappingTree(ctx context.Context, subject, year, class string) ([]TreeRO, error) {
	if subject == "" || year == "" {
		return nil, apperr.Validation("subject and year are required")
	}
	key := "tree:" + subject + "|" + year + "|" + class
	return cached(ctx, s, []string{partitionsFor(subject, year)[0]}, key, func() ([]TreeRO, error) {
		return s.mappingTree(ctx, outcome.NodeFilter{Subject: subject, Year: year, Class: class})
	})
}

func (s *Service) mappingTree(ctx context.Context, f outcome.NodeFilter) ([]TreeRO, error) {
	ros, err := s.st.ListNodes(ctx, outcome.TierRO, f)
	if err != nil {
		return nil, err
	}
	loNames, err := s.namesOf(ctx, outcome.TierLO, f)
	if err != nil {
		return nil, err
	}
	acNames, err := s.namesOf(ctx, outcome.TierAC, f)
	if err != nil {
		return nil, err
	}

	out := make([]TreeRO, 0, len(ros))
	for _, ro := range ros {
		node := TreeRO{ID: ro.ID, Name: ro.Name, Quarter: ro.Scope.Quarter, LearningOutcomes: []TreeLO{}}
		loEdges, err := s.st.ListEdgesTo(ctx, outcome.LOToRO, ro.ID)
		if err != nil {
			return nil, err
		}
		for _, le := range loEdges {
			lo := TreeLO{ID: le.SourceID, Name: loNames[le.SourceID], AssessmentCriteria: []TreeAC{}}
			acEdges, err := s.st.ListEdgesTo(ctx, outcome.ACToLO, le.SourceID)
			if err != nil {
				return nil, err
			}
			for _, ae := range acEdges {
				lo.AssessmentCriteria = append(lo.AssessmentCriteria, TreeAC{ID: ae.SourceID, Name: acNames[ae.SourceID]})
			}
			node.LearningOutcomes = append(node.LearningOutcomes, lo)
		}
		out = append(out, node)
	}
	return out, nil
}

func (s *Service) namesOf(ctx context.Context, tier outcome.Tier, f outcome.NodeFilter) (map[int64]string, error) {
	nodes, err := s.st.ListNodes(ctx, tier, f)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]string, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n.Name
	}
	return m, nil
}
