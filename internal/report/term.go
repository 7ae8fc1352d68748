package report

import (
	"context"
	"strconv"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

// quarter weights within a term, oldest first
var termWeights = [3]float64{0.3, 0.3, 0.4}

type TermRow struct {
	StudentID int64     `json:"student_id"`
	Name      string    `json:"name"`
	RollNo    string    `json:"roll_no"`
	Scores    []float64 `json:"scores"`
}

// TermReport has one column per RO name and one row per enrolled student.
// Row scores line up with Outcomes.
type TermReport struct {
	Term     int       `json:"term"`
	Quarters []string  `json:"quarters"`
	Outcomes []string  `json:"outcomes"`
	Rows     []TermRow `json:"rows"`
}

// TermQuarters maps a term-ending quarter to the quarters it covers.
func TermQuarters(term int) ([]string, error) {
	switch term {
	case 3:
		return []string{"1", "2", "3"}, nil
	case 6:
		return []string{"4", "5", "6"}, nil
	}
	return nil, apperr.Validation("term must be 3 or 6, got %d", term)
}

// TermReport combines RO scores across the three quarters of a term as
// 0.3*q1 + 0.3*q2 + 0.4*q3. ROs are matched across quarters by name and a
// quarter without a score counts as 0. scope.Quarter is ignored.
func (s *Service) TermReport(ctx context.Context, scope outcome.Scope, term int) (TermReport, error) {
	quarters, err := TermQuarters(term)
	if err != nil {
		return TermReport{}, err
	}
	scope.Quarter = quarters[len(quarters)-1]
	if err := scope.Validate(); err != nil {
		return TermReport{}, err
	}
	key := "term:" + strconv.Itoa(term) + ":" + scope.Key()
	return cached(ctx, s, partitionsFor(scope.Subject, scope.Year), key, func() (TermReport, error) {
		return s.termReport(ctx, scope, term, quarters)
	})
}

func (s *Service) termReport(ctx context.Context, scope outcome.Scope, term int, quarters []string) (TermReport, error) {
	f := outcome.FilterFor(scope)
	f.Quarters = quarters
	ros, err := s.st.ListNodes(ctx, outcome.TierRO, f)
	if err != nil {
		return TermReport{}, err
	}
	students, err := s.st.ListEnrolled(ctx, scope.Year, scope.Class, scope.Section)
	if err != nil {
		return TermReport{}, err
	}
	scores, err := s.st.ListScores(ctx, outcome.TierRO, nodeIDs(ros), studentIDs(students))
	if err != nil {
		return TermReport{}, err
	}

	slot := make(map[string]int, len(quarters))
	for i, q := range quarters {
		slot[q] = i
	}
	// column and quarter slot for every RO; the first RO of a name in a
	// quarter wins
	type place struct{ col, q int }
	column := map[string]int{}
	placed := map[int64]place{}
	taken := map[place]bool{}
	out := TermReport{Term: term, Quarters: quarters, Outcomes: []string{}, Rows: []TermRow{}}
	for _, ro := range ros {
		col, ok := column[ro.Name]
		if !ok {
			col = len(out.Outcomes)
			column[ro.Name] = col
			out.Outcomes = append(out.Outcomes, ro.Name)
		}
		p := place{col: col, q: slot[ro.Scope.Quarter]}
		if taken[p] {
			continue
		}
		taken[p] = true
		placed[ro.ID] = p
	}

	byStudent := map[int64][][3]float64{}
	for _, sc := range scores {
		p, ok := placed[sc.NodeID]
		if !ok {
			continue
		}
		grid := byStudent[sc.StudentID]
		if grid == nil {
			grid = make([][3]float64, len(out.Outcomes))
			byStudent[sc.StudentID] = grid
		}
		grid[p.col][p.q] = sc.Value
	}

	for _, st := range students {
		row := TermRow{StudentID: st.ID, Name: st.Name, RollNo: st.RollNo, Scores: make([]float64, len(out.Outcomes))}
		for col, qs := range byStudent[st.ID] {
			for i, v := range qs {
				row.Scores[col] += termWeights[i] * v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
