package gradebook

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/cache"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/propagation"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

type MarkInput struct {
	StudentID     int64
	ObtainedMarks float64
}

type MappingInput struct {
	SourceID int64
	Priority weighting.Priority
}

// SetACScores records raw marks for an AC as obtained/max_marks and
// propagates them to the LOs and ROs the AC feeds, for those students only.
func (s *Service) SetACScores(ctx context.Context, ac int64, marks []MarkInput) (*propagation.Summary, error) {
	if len(marks) == 0 {
		return nil, apperr.Validation("scores must not be empty")
	}
	students := make([]int64, 0, len(marks))
	seen := map[int64]struct{}{}
	for _, m := range marks {
		if m.StudentID <= 0 {
			return nil, apperr.Validation("student_id must be positive")
		}
		if _, dup := seen[m.StudentID]; dup {
			return nil, apperr.Validation("duplicate student_id %d", m.StudentID)
		}
		if m.ObtainedMarks < 0 {
			return nil, apperr.Validation("obtained_marks for student %d must not be negative", m.StudentID)
		}
		seen[m.StudentID] = struct{}{}
		students = append(students, m.StudentID)
	}

	return s.write(ctx, "ac.scores", ref(outcome.TierAC, ac), func(u *unit) error {
		node, err := u.store.GetNode(ctx, outcome.TierAC, ac)
		if err != nil {
			return err
		}
		u.touch(node.Scope)

		missing, err := u.store.NotEnrolled(ctx, node.Scope.Year, node.Scope.Class, node.Scope.Section, students)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return apperr.NotFound("students not enrolled in class %s for %s: %v", node.Scope.Class, node.Scope.Year, missing)
		}
		inactive, err := u.store.InactiveStudents(ctx, students)
		if err != nil {
			return err
		}
		if len(inactive) > 0 {
			return apperr.Conflict("students are inactive: %v", inactive)
		}

		scores := make([]outcome.Score, 0, len(marks))
		for _, m := range marks {
			if m.ObtainedMarks > node.MaxMarks {
				return apperr.Validation("obtained_marks %v for student %d exceeds max_marks %v", m.ObtainedMarks, m.StudentID, node.MaxMarks)
			}
			obtained := m.ObtainedMarks
			scores = append(scores, outcome.Score{
				StudentID: m.StudentID,
				NodeID:    ac,
				Value:     weighting.Clamp01(obtained / node.MaxMarks),
				Obtained:  &obtained,
			})
		}
		if err := u.store.UpsertScores(ctx, outcome.TierAC, scores); err != nil {
			return err
		}
		return u.eng.OnACScores(ctx, ac, students, u.sum)
	})
}

// ReplaceLOMapping swaps the full AC edge set of an LO, renormalizes its
// weights and recomputes the LO and the ROs it feeds.
func (s *Service) ReplaceLOMapping(ctx context.Context, lo int64, edges []MappingInput) (*propagation.Summary, error) {
	return s.replaceMapping(ctx, outcome.ACToLO, lo, edges)
}

// ReplaceROMapping swaps the full LO edge set of an RO and recomputes it.
func (s *Service) ReplaceROMapping(ctx context.Context, ro int64, edges []MappingInput) (*propagation.Summary, error) {
	return s.replaceMapping(ctx, outcome.LOToRO, ro, edges)
}

func (s *Service) replaceMapping(ctx context.Context, kind outcome.EdgeKind, target int64, in []MappingInput) (*propagation.Summary, error) {
	ids := make([]int64, 0, len(in))
	for _, e := range in {
		ids = append(ids, e.SourceID)
	}
	if err := checkDistinct(string(kind.Source())+"_id", ids); err != nil {
		return nil, err
	}

	return s.write(ctx, string(kind.Target())+".mapping", ref(kind.Target(), target), func(u *unit) error {
		node, err := u.store.GetNode(ctx, kind.Target(), target)
		if err != nil {
			return err
		}
		u.touch(node.Scope)
		if err := requireNodes(ctx, u.store, kind.Source(), ids, node.Scope); err != nil {
			return err
		}

		edges := make([]outcome.Edge, 0, len(in))
		for _, e := range in {
			edges = append(edges, outcome.Edge{Kind: kind, SourceID: e.SourceID, TargetID: target, Priority: e.Priority})
		}
		if err := u.store.ReplaceEdges(ctx, kind, target, edges); err != nil {
			return err
		}
		return s.afterEdgeChange(ctx, u, kind, target)
	})
}

// SetEdgePriority changes the priority of one existing edge.
func (s *Service) SetEdgePriority(ctx context.Context, kind outcome.EdgeKind, source, target int64, p weighting.Priority) (*propagation.Summary, error) {
	return s.write(ctx, string(kind.Target())+".priority", ref(kind.Target(), target), func(u *unit) error {
		node, err := u.store.GetNode(ctx, kind.Target(), target)
		if err != nil {
			return err
		}
		u.touch(node.Scope)
		if err := u.store.SetEdgePriority(ctx, kind, source, target, p); err != nil {
			return err
		}
		return s.afterEdgeChange(ctx, u, kind, target)
	})
}

func (s *Service) afterEdgeChange(ctx context.Context, u *unit, kind outcome.EdgeKind, target int64) error {
	if kind == outcome.ACToLO {
		return u.eng.OnLOEdgesChanged(ctx, u.sum, target)
	}
	return u.eng.OnROEdgesChanged(ctx, u.sum, target)
}

// RegisterStudent upserts a student and their class placement for a year.
func (s *Service) RegisterStudent(ctx context.Context, st outcome.Student, e outcome.Enrollment) (*propagation.Summary, error) {
	e.StudentID = st.ID
	return s.write(ctx, "student.put", fmt.Sprintf("student:%d", st.ID), func(u *unit) error {
		if err := u.store.PutStudent(ctx, st); err != nil {
			return err
		}
		u.partitions[cache.EnrollmentPartition(e.Year)] = struct{}{}
		return u.store.Enroll(ctx, e)
	})
}

// SetStudentStatus activates or deactivates a student. Inactive students keep
// their scores but take no new marks.
func (s *Service) SetStudentStatus(ctx context.Context, id int64, status outcome.StudentStatus) (*propagation.Summary, error) {
	if id <= 0 {
		return nil, apperr.Validation("student id is required")
	}
	if _, err := outcome.ParseStudentStatus(string(status)); err != nil {
		return nil, err
	}
	return s.write(ctx, "student.status", fmt.Sprintf("student:%d", id), func(u *unit) error {
		return u.store.SetStudentStatus(ctx, id, status)
	})
}

// Roster lists the students of a class, optionally one section and one status.
func (s *Service) Roster(ctx context.Context, year, class, section string, status outcome.StudentStatus) ([]outcome.Student, error) {
	if year == "" || class == "" {
		return nil, apperr.Validation("year and classname are required")
	}
	students, err := s.reads.ListEnrolled(ctx, year, class, section)
	if err != nil {
		return nil, err
	}
	out := make([]outcome.Student, 0, len(students))
	for _, st := range students {
		if status == "" || st.Status == status {
			out = append(out, st)
		}
	}
	return out, nil
}
