package outcome

import (
	"context"

	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

// Store is the outcome and score persistence surface. Implementations run
// against whatever querier they were built with, so a Store built on a
// transaction sees and writes only that transaction's state.
type Store interface {
	// nodes
	CreateNode(ctx context.Context, n Node) (Node, error)
	GetNode(ctx context.Context, tier Tier, id int64) (Node, error)
	UpdateNode(ctx context.Context, n Node) error
	DeleteNode(ctx context.Context, tier Tier, id int64) error
	ListNodes(ctx context.Context, tier Tier, f NodeFilter) ([]Node, error)
	MissingNodes(ctx context.Context, tier Tier, ids []int64) ([]int64, error)

	// edges
	ListEdgesTo(ctx context.Context, kind EdgeKind, target int64) ([]Edge, error)
	ListEdgesFrom(ctx context.Context, kind EdgeKind, source int64) ([]Edge, error)
	AddEdge(ctx context.Context, e Edge) error
	DeleteEdge(ctx context.Context, kind EdgeKind, source, target int64) error
	ReplaceEdges(ctx context.Context, kind EdgeKind, target int64, edges []Edge) error
	SetEdgePriority(ctx context.Context, kind EdgeKind, source, target int64, p weighting.Priority) error
	SetEdgeWeights(ctx context.Context, kind EdgeKind, target int64, w weighting.Weights) error
	DeleteEdgesOf(ctx context.Context, tier Tier, id int64) error

	// scores; a nil students slice means every student
	UpsertScores(ctx context.Context, tier Tier, scores []Score) error
	ListScores(ctx context.Context, tier Tier, nodes []int64, students []int64) ([]Score, error)
	DeleteScores(ctx context.Context, tier Tier, node int64, students []int64) (int, error)
	ScoredStudents(ctx context.Context, tier Tier, nodes []int64) ([]int64, error)

	// students
	PutStudent(ctx context.Context, s Student) error
	Enroll(ctx context.Context, e Enrollment) error
	ListEnrolled(ctx context.Context, year, class, section string) ([]Student, error)
	NotEnrolled(ctx context.Context, year, class, section string, students []int64) ([]int64, error)
	SetStudentStatus(ctx context.Context, id int64, status StudentStatus) error
	InactiveStudents(ctx context.Context, students []int64) ([]int64, error)
}
