package outcome

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/db"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

type SQLStore struct {
	q db.DBTX
}

// NewSQLStore binds a store to q: the pool for reads, a *sql.Tx for a unit of work.
func NewSQLStore(q db.DBTX) *SQLStore { return &SQLStore{q: q} }

var _ Store = (*SQLStore)(nil)

/* ---------------- nodes ---------------- */

func nodeColumns(t Tier) string {
	if t == TierAC {
		return "id, name, subject, year, quarter, class, section, max_marks, created_at"
	}
	return "id, name, subject, year, quarter, class, section, created_at"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(t Tier, r rowScanner) (Node, error) {
	n := Node{Tier: t}
	dest := []any{&n.ID, &n.Name, &n.Scope.Subject, &n.Scope.Year, &n.Scope.Quarter, &n.Scope.Class, &n.Scope.Section}
	if t == TierAC {
		dest = append(dest, &n.MaxMarks)
	}
	dest = append(dest, &n.CreatedAt)
	err := r.Scan(dest...)
	return n, err
}

func (s *SQLStore) CreateNode(ctx context.Context, n Node) (Node, error) {
	if strings.TrimSpace(n.Name) == "" {
		return Node{}, apperr.Validation("name is required")
	}
	if n.Tier == TierAC && n.MaxMarks <= 0 {
		return Node{}, apperr.Validation("max_marks must be positive")
	}
	n.CreatedAt = time.Now().Unix()

	args := []any{n.Name, n.Scope.Subject, n.Scope.Year, n.Scope.Quarter, n.Scope.Class, n.Scope.Section}
	var q string
	if n.Tier == TierAC {
		q = `INSERT INTO assessment_criteria (name, subject, year, quarter, class, section, max_marks, created_at)
		     VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`
		args = append(args, n.MaxMarks, n.CreatedAt)
	} else {
		q = fmt.Sprintf(`INSERT INTO %s (name, subject, year, quarter, class, section, created_at)
		     VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, n.Tier.nodeTable())
		args = append(args, n.CreatedAt)
	}
	if err := s.q.QueryRowContext(ctx, q, args...).Scan(&n.ID); err != nil {
		return Node{}, apperr.Storage("create "+n.Tier.Label(), err)
	}
	return n, nil
}

func (s *SQLStore) GetNode(ctx context.Context, tier Tier, id int64) (Node, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, nodeColumns(tier), tier.nodeTable())
	n, err := scanNode(tier, s.q.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, apperr.NotFound("%s %d not found", tier.Label(), id)
	}
	if err != nil {
		return Node{}, apperr.Storage("get "+tier.Label(), err)
	}
	return n, nil
}

// UpdateNode writes the name and, for ACs, max_marks. Scope is immutable.
func (s *SQLStore) UpdateNode(ctx context.Context, n Node) error {
	if strings.TrimSpace(n.Name) == "" {
		return apperr.Validation("name is required")
	}
	var (
		res sql.Result
		err error
	)
	if n.Tier == TierAC {
		if n.MaxMarks <= 0 {
			return apperr.Validation("max_marks must be positive")
		}
		res, err = s.q.ExecContext(ctx,
			`UPDATE assessment_criteria SET name = $1, max_marks = $2 WHERE id = $3`,
			n.Name, n.MaxMarks, n.ID)
	} else {
		res, err = s.q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET name = $1 WHERE id = $2`, n.Tier.nodeTable()),
			n.Name, n.ID)
	}
	if err != nil {
		return apperr.Storage("update "+n.Tier.Label(), err)
	}
	return mustAffect(res, "%s %d not found", n.Tier.Label(), n.ID)
}

func (s *SQLStore) DeleteNode(ctx context.Context, tier Tier, id int64) error {
	res, err := s.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tier.nodeTable()), id)
	if err != nil {
		return apperr.Storage("delete "+tier.Label(), err)
	}
	return mustAffect(res, "%s %d not found", tier.Label(), id)
}

func (s *SQLStore) ListNodes(ctx context.Context, tier Tier, f NodeFilter) ([]Node, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if f.Year != "" {
		add("year = $%d", f.Year)
	}
	if f.Class != "" {
		add("class = $%d", f.Class)
	}
	if f.Section != "" {
		add("(section = $%d OR section = '')", f.Section)
	}
	if len(f.Quarters) > 0 {
		where = append(where, fmt.Sprintf("quarter IN (%s)", db.Placeholders(len(args)+1, len(f.Quarters))))
		for _, qt := range f.Quarters {
			args = append(args, qt)
		}
	}

	q := fmt.Sprintf(`SELECT %s FROM %s`, nodeColumns(tier), tier.nodeTable())
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Storage("list "+tier.Label(), err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		n, err := scanNode(tier, rows)
		if err != nil {
			return nil, apperr.Storage("scan "+tier.Label(), err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list "+tier.Label(), err)
	}
	return out, nil
}

// MissingNodes returns the ids from ids that do not exist in tier.
func (s *SQLStore) MissingNodes(ctx context.Context, tier Tier, ids []int64) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT id FROM %s WHERE id IN (%s)`, tier.nodeTable(), db.Placeholders(1, len(ids)))
	found, err := s.queryIDs(ctx, q, int64Args(ids)...)
	if err != nil {
		return nil, apperr.Storage("check "+tier.Label(), err)
	}
	return difference(ids, found), nil
}

/* ---------------- edges ---------------- */

func edgeColumns(k EdgeKind) (src, tgt string) {
	return k.Source().idColumn(), k.Target().idColumn()
}

func nullPriority(p weighting.Priority) any {
	if !p.IsSet() {
		return nil
	}
	return p.Tag()
}

func (s *SQLStore) listEdges(ctx context.Context, k EdgeKind, byCol string, id int64, orderCol string) ([]Edge, error) {
	src, tgt := edgeColumns(k)
	q := fmt.Sprintf(`SELECT %s, %s, priority, weight FROM %s WHERE %s = $1 ORDER BY %s`,
		src, tgt, k.table(), byCol, orderCol)
	rows, err := s.q.QueryContext(ctx, q, id)
	if err != nil {
		return nil, apperr.Storage("list "+k.String()+" edges", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var (
			e    = Edge{Kind: k}
			prio sql.NullString
			w    sql.NullFloat64
		)
		if err := rows.Scan(&e.SourceID, &e.TargetID, &prio, &w); err != nil {
			return nil, apperr.Storage("scan edge", err)
		}
		if prio.Valid {
			p, err := weighting.ParsePriority(prio.String)
			if err != nil {
				return nil, apperr.Storage("scan edge", err)
			}
			e.Priority = p
		}
		if w.Valid {
			v := w.Float64
			e.Weight = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list "+k.String()+" edges", err)
	}
	return out, nil
}

// ListEdgesTo returns the incoming edges of target ordered by source id.
func (s *SQLStore) ListEdgesTo(ctx context.Context, k EdgeKind, target int64) ([]Edge, error) {
	src, tgt := edgeColumns(k)
	return s.listEdges(ctx, k, tgt, target, src)
}

// ListEdgesFrom returns the outgoing edges of source ordered by target id.
func (s *SQLStore) ListEdgesFrom(ctx context.Context, k EdgeKind, source int64) ([]Edge, error) {
	src, tgt := edgeColumns(k)
	return s.listEdges(ctx, k, src, source, tgt)
}

// AddEdge inserts an edge; an existing edge is left untouched.
func (s *SQLStore) AddEdge(ctx context.Context, e Edge) error {
	src, tgt := edgeColumns(e.Kind)
	q := fmt.Sprintf(`INSERT INTO %s (%s, %s, priority, weight) VALUES ($1, $2, $3, NULL)
		ON CONFLICT (%s, %s) DO NOTHING`, e.Kind.table(), tgt, src, tgt, src)
	if _, err := s.q.ExecContext(ctx, q, e.TargetID, e.SourceID, nullPriority(e.Priority)); err != nil {
		return apperr.Storage("add "+e.Kind.String()+" edge", err)
	}
	return nil
}

func (s *SQLStore) DeleteEdge(ctx context.Context, k EdgeKind, source, target int64) error {
	src, tgt := edgeColumns(k)
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, k.table(), tgt, src)
	if _, err := s.q.ExecContext(ctx, q, target, source); err != nil {
		return apperr.Storage("delete "+k.String()+" edge", err)
	}
	return nil
}

// ReplaceEdges deletes every incoming edge of target and inserts edges.
// Weights are reset; the caller recomputes them. Atomicity comes from the
// transaction the store was built on.
func (s *SQLStore) ReplaceEdges(ctx context.Context, k EdgeKind, target int64, edges []Edge) error {
	src, tgt := edgeColumns(k)
	if _, err := s.q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, k.table(), tgt), target); err != nil {
		return apperr.Storage("clear "+k.String()+" edges", err)
	}
	ins := fmt.Sprintf(`INSERT INTO %s (%s, %s, priority, weight) VALUES ($1, $2, $3, NULL)
		ON CONFLICT (%s, %s) DO UPDATE SET priority = excluded.priority`, k.table(), tgt, src, tgt, src)
	for _, e := range edges {
		if _, err := s.q.ExecContext(ctx, ins, target, e.SourceID, nullPriority(e.Priority)); err != nil {
			return apperr.Storage("insert "+k.String()+" edge", err)
		}
	}
	return nil
}

func (s *SQLStore) SetEdgePriority(ctx context.Context, k EdgeKind, source, target int64, p weighting.Priority) error {
	src, tgt := edgeColumns(k)
	q := fmt.Sprintf(`UPDATE %s SET priority = $1 WHERE %s = $2 AND %s = $3`, k.table(), tgt, src)
	res, err := s.q.ExecContext(ctx, q, nullPriority(p), target, source)
	if err != nil {
		return apperr.Storage("set "+k.String()+" priority", err)
	}
	return mustAffect(res, "%s edge %d->%d not found", k, source, target)
}

// SetEdgeWeights stores w on the incoming edges of target. Edges absent
// from w get a NULL weight.
func (s *SQLStore) SetEdgeWeights(ctx context.Context, k EdgeKind, target int64, w weighting.Weights) error {
	src, tgt := edgeColumns(k)
	if _, err := s.q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET weight = NULL WHERE %s = $1`, k.table(), tgt), target); err != nil {
		return apperr.Storage("reset "+k.String()+" weights", err)
	}
	q := fmt.Sprintf(`UPDATE %s SET weight = $1 WHERE %s = $2 AND %s = $3`, k.table(), tgt, src)
	for _, id := range w.Sources() {
		if _, err := s.q.ExecContext(ctx, q, w[id], target, id); err != nil {
			return apperr.Storage("set "+k.String()+" weight", err)
		}
	}
	return nil
}

// DeleteEdgesOf removes every edge touching the node, in both directions.
func (s *SQLStore) DeleteEdgesOf(ctx context.Context, tier Tier, id int64) error {
	var stmts []string
	switch tier {
	case TierAC:
		stmts = []string{`DELETE FROM lo_ac_mapping WHERE ac_id = $1`}
	case TierLO:
		stmts = []string{`DELETE FROM lo_ac_mapping WHERE lo_id = $1`, `DELETE FROM ro_lo_mapping WHERE lo_id = $1`}
	case TierRO:
		stmts = []string{`DELETE FROM ro_lo_mapping WHERE ro_id = $1`}
	}
	for _, q := range stmts {
		if _, err := s.q.ExecContext(ctx, q, id); err != nil {
			return apperr.Storage("delete "+tier.Label()+" edges", err)
		}
	}
	return nil
}

/* ---------------- scores ---------------- */

func (s *SQLStore) UpsertScores(ctx context.Context, tier Tier, scores []Score) error {
	col := tier.idColumn()
	var q string
	if tier == TierAC {
		q = `INSERT INTO ac_scores (student_id, ac_id, obtained_marks, value) VALUES ($1, $2, $3, $4)
		     ON CONFLICT (student_id, ac_id) DO UPDATE SET obtained_marks = excluded.obtained_marks, value = excluded.value`
	} else {
		q = fmt.Sprintf(`INSERT INTO %s (student_id, %s, value) VALUES ($1, $2, $3)
		     ON CONFLICT (student_id, %s) DO UPDATE SET value = excluded.value`, tier.scoreTable(), col, col)
	}
	for _, sc := range scores {
		if sc.Value < 0 || sc.Value > 1 {
			return apperr.Validation("score %v for student %d is outside [0,1]", sc.Value, sc.StudentID)
		}
		args := []any{sc.StudentID, sc.NodeID}
		if tier == TierAC {
			if sc.Obtained == nil {
				return apperr.Validation("obtained_marks is required for student %d", sc.StudentID)
			}
			args = append(args, *sc.Obtained)
		}
		args = append(args, sc.Value)
		if _, err := s.q.ExecContext(ctx, q, args...); err != nil {
			return apperr.Storage("upsert "+tier.Label()+" score", err)
		}
	}
	return nil
}

func (s *SQLStore) ListScores(ctx context.Context, tier Tier, nodes []int64, students []int64) ([]Score, error) {
	nodes = uniqueIDs(nodes)
	if len(nodes) == 0 || (students != nil && len(students) == 0) {
		return nil, nil
	}
	col := tier.idColumn()
	cols := "student_id, " + col + ", value"
	if tier == TierAC {
		cols += ", obtained_marks"
	}
	args := int64Args(nodes)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`, cols, tier.scoreTable(), col, db.Placeholders(1, len(nodes)))
	if students != nil {
		students = uniqueIDs(students)
		q += fmt.Sprintf(` AND student_id IN (%s)`, db.Placeholders(len(args)+1, len(students)))
		args = append(args, int64Args(students)...)
	}
	q += " ORDER BY " + col + ", student_id"

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Storage("list "+tier.Label()+" scores", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var sc Score
		dest := []any{&sc.StudentID, &sc.NodeID, &sc.Value}
		var obtained float64
		if tier == TierAC {
			dest = append(dest, &obtained)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperr.Storage("scan score", err)
		}
		if tier == TierAC {
			sc.Obtained = &obtained
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list "+tier.Label()+" scores", err)
	}
	return out, nil
}

// DeleteScores removes scores of node for students (all when nil) and
// reports how many rows went away.
func (s *SQLStore) DeleteScores(ctx context.Context, tier Tier, node int64, students []int64) (int, error) {
	if students != nil && len(students) == 0 {
		return 0, nil
	}
	col := tier.idColumn()
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, tier.scoreTable(), col)
	args := []any{node}
	if students != nil {
		students = uniqueIDs(students)
		q += fmt.Sprintf(` AND student_id IN (%s)`, db.Placeholders(2, len(students)))
		args = append(args, int64Args(students)...)
	}
	res, err := s.q.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, apperr.Storage("delete "+tier.Label()+" scores", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("delete "+tier.Label()+" scores", err)
	}
	return int(n), nil
}

// ScoredStudents lists students holding a score on any of nodes.
func (s *SQLStore) ScoredStudents(ctx context.Context, tier Tier, nodes []int64) ([]int64, error) {
	nodes = uniqueIDs(nodes)
	if len(nodes) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT DISTINCT student_id FROM %s WHERE %s IN (%s) ORDER BY student_id`,
		tier.scoreTable(), tier.idColumn(), db.Placeholders(1, len(nodes)))
	ids, err := s.queryIDs(ctx, q, int64Args(nodes)...)
	if err != nil {
		return nil, apperr.Storage("list scored students", err)
	}
	return ids, nil
}

/* ---------------- students ---------------- */

func (s *SQLStore) PutStudent(ctx context.Context, st Student) error {
	if st.ID <= 0 || strings.TrimSpace(st.Name) == "" {
		return apperr.Validation("student id and name are required")
	}
	if st.Status == "" {
		st.Status = StudentActive
	}
	// re-registering keeps the current status
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO students (id, name, roll_no, status) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, roll_no = excluded.roll_no`,
		st.ID, st.Name, st.RollNo, string(st.Status))
	return apperr.Storage("put student", err)
}

func (s *SQLStore) SetStudentStatus(ctx context.Context, id int64, status StudentStatus) error {
	res, err := s.q.ExecContext(ctx, `UPDATE students SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return apperr.Storage("set student status", err)
	}
	return mustAffect(res, "student %d not found", id)
}

// InactiveStudents returns the students from ids whose status is not active.
func (s *SQLStore) InactiveStudents(ctx context.Context, ids []int64) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT id FROM students WHERE status <> $1 AND id IN (%s) ORDER BY id`, db.Placeholders(2, len(ids)))
	out, err := s.queryIDs(ctx, q, append([]any{string(StudentActive)}, int64Args(ids)...)...)
	if err != nil {
		return nil, apperr.Storage("check student status", err)
	}
	return out, nil
}

// Enroll places a student in a class for a year, replacing any earlier
// placement for that year.
func (s *SQLStore) Enroll(ctx context.Context, e Enrollment) error {
	if e.Year == "" || e.Class == "" {
		return apperr.Validation("enrollment year and class are required")
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO student_enrollments (student_id, year, class, section) VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, year) DO UPDATE SET class = excluded.class, section = excluded.section`,
		e.StudentID, e.Year, e.Class, e.Section)
	return apperr.Storage("enroll student", err)
}

// ListEnrolled lists the students of a class; an empty section means all sections.
func (s *SQLStore) ListEnrolled(ctx context.Context, year, class, section string) ([]Student, error) {
	q := `SELECT s.id, s.name, s.roll_no, s.status
	      FROM students s JOIN student_enrollments e ON e.student_id = s.id
	      WHERE e.year = $1 AND e.class = $2`
	args := []any{year, class}
	if section != "" {
		q += ` AND e.section = $3`
		args = append(args, section)
	}
	q += ` ORDER BY s.id`

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Storage("list enrolled students", err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.RollNo, &st.Status); err != nil {
			return nil, apperr.Storage("scan student", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list enrolled students", err)
	}
	return out, nil
}

// NotEnrolled returns the students from ids that are not enrolled in class
// for year. A non-empty section must match too.
func (s *SQLStore) NotEnrolled(ctx context.Context, year, class, section string, ids []int64) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT student_id FROM student_enrollments WHERE year = $1 AND class = $2`
	args := []any{year, class}
	if section != "" {
		q += ` AND section = $3`
		args = append(args, section)
	}
	q += fmt.Sprintf(` AND student_id IN (%s)`, db.Placeholders(len(args)+1, len(ids)))
	args = append(args, int64Args(ids)...)
	found, err := s.queryIDs(ctx, q, args...)
	if err != nil {
		return nil, apperr.Storage("check enrollment", err)
	}
	return difference(ids, found), nil
}

/* ---------------- helpers ---------------- */

func (s *SQLStore) queryIDs(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func mustAffect(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("rows affected", err)
	}
	if n == 0 {
		return apperr.NotFound(format, args...)
	}
	return nil
}

// uniqueIDs returns ids sorted and deduplicated. nil stays nil.
func uniqueIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
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

func difference(want, have []int64) []int64 {
	got := make(map[int64]struct{}, len(have))
	for _, id := range have {
		got[id] = struct{}{}
	}
	var missing []int64
	for _, id := range want {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
