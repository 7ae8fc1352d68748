package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/mind-engage/mindengage-outcomes/internal/auth/middleware"
	"github.com/mind-engage/mindengage-outcomes/internal/cache"
	"github.com/mind-engage/mindengage-outcomes/internal/db/dbtest"
	"github.com/mind-engage/mindengage-outcomes/internal/gradebook"
	"github.com/mind-engage/mindengage-outcomes/internal/rbac"
	"github.com/mind-engage/mindengage-outcomes/internal/report"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	auth    *auth.AuthService
	ready   error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn := dbtest.Open(t)
	mem := cache.NewMemory()
	ts := &testServer{t: t, auth: auth.NewAuthService("test-secret")}
	ts.handler = NewRouter(RouterConfig{
		Gradebook:       gradebook.NewService(conn, mem, nil),
		Reports:         report.NewService(conn, mem, 0, nil),
		Auth:            ts.auth,
		EnableLocalAuth: true,
		Login:           auth.LoginOptions{DevLogin: true},
		Ready:           func(context.Context) error { return ts.ready },
	})
	return ts
}

func (ts *testServer) token(sub, role string) string {
	tok, err := ts.auth.IssueJWT(sub, role)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("subject", "science")
	req.Header.Set("year", "2024")
	req.Header.Set("quarter", "1")
	req.Header.Set("classname", "6")
	req.Header.Set("section", "A")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (ts *testServer) createID(path, tok string, body any) int64 {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, path, tok, body)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		ID int64 `json:"id"`
	}
	decodeBody(ts.t, rec, &out)
	return out.ID
}

func TestGradebookFlow(t *testing.T) {
	ts := newTestServer(t)
	teacher := ts.token("ms.rao", rbac.RoleTeacher)

	for _, st := range []map[string]any{
		{"id": 1, "name": "Asha", "year": "2024", "classname": "6", "section": "A"},
		{"id": 2, "name": "Ben", "year": "2024", "classname": "6", "section": "A"},
	} {
		rec := ts.do(http.MethodPost, "/students", teacher, st)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	ro := ts.createID("/report-outcome", teacher, map[string]any{"name": "RO1"})
	lo := ts.createID("/learning-outcome", teacher, map[string]any{"name": "LO1", "ro_id": []int64{ro}})
	ac1 := ts.createID("/assessment-criteria", teacher, map[string]any{"name": "AC1", "max_marks": 10, "lo_id": []int64{lo}})
	ac2 := ts.createID("/assessment-criteria", teacher, map[string]any{"name": "AC2", "max_marks": 20, "lo_id": []int64{lo}})

	rec := ts.do(http.MethodPut, fmt.Sprintf("/learning-outcome-mapping?lo_id=%d", lo), teacher, map[string]any{
		"data": []map[string]any{{"ac_id": ac1, "priority": "h"}, {"ac_id": ac2, "priority": "l"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPut, fmt.Sprintf("/report-outcome-mapping?ro_id=%d", ro), teacher, map[string]any{
		"data": []map[string]any{{"lo_id": lo, "priority": "m"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/assessment-criteria-score", teacher, map[string]any{
		"ac_id": ac1, "scores": []map[string]any{{"student_id": 1, "obtained_marks": 10}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/assessment-criteria-score", teacher, map[string]any{
		"ac_id": ac2, "scores": []map[string]any{{"student_id": 1, "obtained_marks": 10}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum struct {
		RunID         string  `json:"run_id"`
		RecomputedLOs []int64 `json:"recomputed_lo_ids"`
		RecomputedROs []int64 `json:"recomputed_ro_ids"`
	}
	decodeBody(t, rec, &sum)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, []int64{lo}, sum.RecomputedLOs)
	assert.Equal(t, []int64{ro}, sum.RecomputedROs)

	rec = ts.do(http.MethodGet, "/class-overview/lo", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ov report.ClassOverview
	decodeBody(t, rec, &ov)
	require.Len(t, ov.Outcomes, 1)
	require.NotNil(t, ov.Outcomes[0].AverageScore)
	assert.InDelta(t, 0.6/0.7, *ov.Outcomes[0].AverageScore, 1e-9)
	assert.Equal(t, 1, ov.Outcomes[0].StudentCounts.Above)

	// students see only their own report
	own := ts.do(http.MethodGet, "/student-report?student_id=1", ts.token("1", rbac.RoleStudent), nil)
	require.Equal(t, http.StatusOK, own.Code, own.Body.String())
	var sr report.StudentReport
	decodeBody(t, own, &sr)
	require.NotNil(t, sr.AvgRO)
	assert.InDelta(t, 0.6/0.7, *sr.AvgRO, 1e-9)
	other := ts.do(http.MethodGet, "/student-report?student_id=2", ts.token("1", rbac.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, other.Code)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/learning-outcome-mapping?lo_id=%d", lo), teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"priority":"h"`)

	rec = ts.do(http.MethodDelete, fmt.Sprintf("/learning-outcome?id=%d", lo), teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodGet, "/class-overview/ro", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &ov)
	require.Len(t, ov.Outcomes, 1)
	assert.Nil(t, ov.Outcomes[0].AverageScore)
}

func TestStudentsAndLOScores(t *testing.T) {
	ts := newTestServer(t)
	teacher := ts.token("ms.rao", rbac.RoleTeacher)
	student := ts.token("1", rbac.RoleStudent)

	for _, st := range []map[string]any{
		{"id": 1, "name": "Asha", "year": "2024", "classname": "6", "section": "A"},
		{"id": 2, "name": "Ben", "year": "2024", "classname": "6", "section": "A"},
	} {
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/students", teacher, st).Code)
	}
	lo := ts.createID("/learning-outcome", teacher, map[string]any{"name": "LO1"})
	ac := ts.createID("/assessment-criteria", teacher, map[string]any{"name": "AC1", "max_marks": 10, "lo_id": []int64{lo}})
	rec := ts.do(http.MethodPut, fmt.Sprintf("/learning-outcome-mapping?lo_id=%d", lo), teacher, map[string]any{
		"data": []map[string]any{{"ac_id": ac, "priority": "h"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/assessment-criteria-score", teacher, map[string]any{
		"ac_id": ac, "scores": []map[string]any{{"student_id": 1, "obtained_marks": 7}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// roster and status
	rec = ts.do(http.MethodGet, "/students", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var roster []struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &roster)
	require.Len(t, roster, 2)
	assert.Equal(t, "active", roster[1].Status)

	rec = ts.do(http.MethodPut, "/students", teacher, map[string]any{"student_id": 2, "status": "inactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodGet, "/students?status=inactive", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &roster)
	require.Len(t, roster, 1)
	assert.Equal(t, int64(2), roster[0].ID)

	rec = ts.do(http.MethodPost, "/assessment-criteria-score", teacher, map[string]any{
		"ac_id": ac, "scores": []map[string]any{{"student_id": 2, "obtained_marks": 5}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest,
		ts.do(http.MethodPut, "/students", teacher, map[string]any{"student_id": 2, "status": "gone"}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/students?status=gone", teacher, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		ts.do(http.MethodPut, "/students", teacher, map[string]any{"student_id": 9, "status": "active"}).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/students", student, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		ts.do(http.MethodPut, "/students", student, map[string]any{"student_id": 1, "status": "active"}).Code)

	// per-student LO scores
	rec = ts.do(http.MethodGet, "/learning-outcome-score?student_id=1", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var los report.LOScores
	decodeBody(t, rec, &los)
	require.Len(t, los.LOScores, 1)
	assert.Equal(t, lo, los.LOScores[0].ID)
	require.NotNil(t, los.AverageScore)
	assert.InDelta(t, 0.7, *los.AverageScore, 1e-9)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/learning-outcome-score?student_id=1&lo_id=%d", lo), student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/learning-outcome-score?student_id=2", student, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/learning-outcome-score?student_id=2", teacher, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/learning-outcome-score?student_id=1&lo_id=x", teacher, nil).Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	teacher := ts.token("ms.rao", rbac.RoleTeacher)

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/assessment-criteria", "", nil).Code)
	assert.Equal(t, http.StatusForbidden,
		ts.do(http.MethodPost, "/report-outcome", ts.token("1", rbac.RoleStudent), map[string]any{"name": "x"}).Code)

	rec := ts.do(http.MethodPost, "/assessment-criteria", teacher, map[string]any{"name": "", "max_marks": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var eb errorBody
	decodeBody(t, rec, &eb)
	assert.Equal(t, "required", eb.Fields["name"])
	assert.Equal(t, "gt", eb.Fields["max_marks"])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/report-outcome", teacher, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodDelete, "/report-outcome?id=abc", teacher, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/report-outcome?id=99", teacher, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/class-overview/xx", teacher, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/term-report?term=5", teacher, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/learning-outcome-mapping?lo_id=1", teacher,
		`{"data":[{"ac_id":1,"priority":"x"}]}`).Code)

	rec = ts.do(http.MethodPost, "/assessment-criteria-score", teacher, map[string]any{
		"ac_id": 42, "scores": []map[string]any{{"student_id": 1, "obtained_marks": 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingScopeHeaders(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/assessment-criteria", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token("ms.rao", rbac.RoleTeacher))
	req.Header.Set("subject", "science")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "classname")
}

func TestHealthAndLogin(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/readyz", "", nil).Code)
	ts.ready = errors.New("db down")
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/readyz", "", nil).Code)

	rec := ts.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "ms.rao", "password": "ms.rao", "role": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	decodeBody(t, rec, &out)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/assessment-criteria", out["access_token"], nil).Code)
}
