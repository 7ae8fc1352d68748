package report

import (
	"context"
	"strconv"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

type StudentRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type BandCounts struct {
	Above  int `json:"above_0_67"`
	Middle int `json:"between_0_35_0_67"`
	Below  int `json:"below_0_35"`
}

type BandRoster struct {
	Above  []StudentRef `json:"above_0_67"`
	Middle []StudentRef `json:"between_0_35_0_67"`
	Below  []StudentRef `json:"below_0_35"`
}

type OutcomeOverview struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	AverageScore  *float64   `json:"average_score"`
	StudentCounts BandCounts `json:"student_counts"`
	Students      BandRoster `json:"students"`
}

type ClassOverview struct {
	Tier     outcome.Tier      `json:"tier"`
	Scope    outcome.Scope     `json:"scope"`
	Outcomes []OutcomeOverview `json:"outcomes"`
}

// ClassOverview reports, per outcome of tier in scope, the mean score of the
// enrolled students who have one and the band each of them falls in.
func (s *Service) ClassOverview(ctx context.Context, scope outcome.Scope, tier outcome.Tier) (ClassOverview, error) {
	if err := scope.Validate(); err != nil {
		return ClassOverview{}, err
	}
	if _, err := outcome.ParseTier(string(tier)); err != nil {
		return ClassOverview{}, err
	}
	key := "overview:" + string(tier) + ":" + scope.Key()
	return cached(ctx, s, partitionsFor(scope.Subject, scope.Year), key, func() (ClassOverview, error) {
		return s.classOverview(ctx, scope, tier)
	})
}

func (s *Service) classOverview(ctx context.Context, scope outcome.Scope, tier outcome.Tier) (ClassOverview, error) {
	nodes, err := s.st.ListNodes(ctx, tier, outcome.FilterFor(scope))
	if err != nil {
		return ClassOverview{}, err
	}
	students, err := s.st.ListEnrolled(ctx, scope.Year, scope.Class, scope.Section)
	if err != nil {
		return ClassOverview{}, err
	}
	names := make(map[int64]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}
	scores, err := s.st.ListScores(ctx, tier, nodeIDs(nodes), studentIDs(students))
	if err != nil {
		return ClassOverview{}, err
	}
	byNode := map[int64][]outcome.Score{}
	for _, sc := range scores {
		byNode[sc.NodeID] = append(byNode[sc.NodeID], sc)
	}

	out := ClassOverview{Tier: tier, Scope: scope, Outcomes: make([]OutcomeOverview, 0, len(nodes))}
	for _, n := range nodes {
		ov := OutcomeOverview{
			ID:       n.ID,
			Name:     n.Name,
			Students: BandRoster{Above: []StudentRef{}, Middle: []StudentRef{}, Below: []StudentRef{}},
		}
		var m mean
		for _, sc := range byNode[n.ID] {
			m.add(sc.Value)
			ref := StudentRef{ID: sc.StudentID, Name: names[sc.StudentID]}
			switch BandOf(sc.Value) {
			case BandAbove:
				ov.StudentCounts.Above++
				ov.Students.Above = append(ov.Students.Above, ref)
			case BandMiddle:
				ov.StudentCounts.Middle++
				ov.Students.Middle = append(ov.Students.Middle, ref)
			default:
				ov.StudentCounts.Below++
				ov.Students.Below = append(ov.Students.Below, ref)
			}
		}
		ov.AverageScore = m.value()
		out.Outcomes = append(out.Outcomes, ov)
	}
	return out, nil
}

type ClassAverages struct {
	Scope outcome.Scope `json:"scope"`
	AC    *float64      `json:"ac_class_average"`
	LO    *float64      `json:"lo_class_average"`
	RO    *float64      `json:"ro_class_average"`
}

// ClassAverages is the dashboard rollup: one mean per tier over every score
// of an enrolled student on an outcome in scope.
func (s *Service) ClassAverages(ctx context.Context, scope outcome.Scope) (ClassAverages, error) {
	if err := scope.Validate(); err != nil {
		return ClassAverages{}, err
	}
	return cached(ctx, s, partitionsFor(scope.Subject, scope.Year), "averages:"+scope.Key(), func() (ClassAverages, error) {
		students, err := s.st.ListEnrolled(ctx, scope.Year, scope.Class, scope.Section)
		if err != nil {
			return ClassAverages{}, err
		}
		ids := studentIDs(students)
		out := ClassAverages{Scope: scope}
		for _, tier := range []outcome.Tier{outcome.TierAC, outcome.TierLO, outcome.TierRO} {
			nodes, err := s.st.ListNodes(ctx, tier, outcome.FilterFor(scope))
			if err != nil {
				return ClassAverages{}, err
			}
			scores, err := s.st.ListScores(ctx, tier, nodeIDs(nodes), ids)
			if err != nil {
				return ClassAverages{}, err
			}
			var m mean
			for _, sc := range scores {
				m.add(sc.Value)
			}
			switch tier {
			case outcome.TierAC:
				out.AC = m.value()
			case outcome.TierLO:
				out.LO = m.value()
			default:
				out.RO = m.value()
			}
		}
		return out, nil
	})
}

type ScoreLine struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type StudentReport struct {
	StudentID int64       `json:"student_id"`
	ACScores  []ScoreLine `json:"ac_scores"`
	LOScores  []ScoreLine `json:"lo_scores"`
	ROScores  []ScoreLine `json:"ro_scores"`
	AvgAC     *float64    `json:"avg_ac"`
	AvgLO     *float64    `json:"avg_lo"`
	AvgRO     *float64    `json:"avg_ro"`
}

// StudentReport lists one student's scores per tier in scope with a mean per tier.
func (s *Service) StudentReport(ctx context.Context, student int64, scope outcome.Scope) (StudentReport, error) {
	if err := scope.Validate(); err != nil {
		return StudentReport{}, err
	}
	if student <= 0 {
		return StudentReport{}, apperr.Validation("student id is required")
	}
	missing, err := s.st.NotEnrolled(ctx, scope.Year, scope.Class, scope.Section, []int64{student})
	if err != nil {
		return StudentReport{}, err
	}
	if len(missing) > 0 {
		return StudentReport{}, apperr.NotFound("student %d is not enrolled in class %s for %s", student, scope.Class, scope.Year)
	}

	key := "student:" + scope.Key() + ":" + strconv.FormatInt(student, 10)
	return cached(ctx, s, partitionsFor(scope.Subject, scope.Year), key, func() (StudentReport, error) {
		out := StudentReport{StudentID: student}
		for _, tier := range []outcome.Tier{outcome.TierAC, outcome.TierLO, outcome.TierRO} {
			nodes, err := s.st.ListNodes(ctx, tier, outcome.FilterFor(scope))
			if err != nil {
				return StudentReport{}, err
			}
			names := make(map[int64]string, len(nodes))
			for _, n := range nodes {
				names[n.ID] = n.Name
			}
			scores, err := s.st.ListScores(ctx, tier, nodeIDs(nodes), []int64{student})
			if err != nil {
				return StudentReport{}, err
			}
			lines := make([]ScoreLine, 0, len(scores))
			var m mean
			for _, sc := range scores {
				lines = append(lines, ScoreLine{ID: sc.NodeID, Name: names[sc.NodeID], Value: sc.Value})
				m.add(sc.Value)
			}
			switch tier {
			case outcome.TierAC:
				out.ACScores, out.AvgAC = lines, m.value()
			case outcome.TierLO:
				out.LOScores, out.AvgLO = lines, m.value()
			default:
				out.ROScores, out.AvgRO = lines, m.value()
			}
		}
		return out, nil
	})
}
