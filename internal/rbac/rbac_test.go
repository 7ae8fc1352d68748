package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker_Has(t *testing.T) {
	c := NewChecker(nil)

	assert.True(t, c.Has(RoleAdmin, "anything:at-all"))
	assert.True(t, c.Has(RoleTeacher, "score:write"))
	assert.True(t, c.Has(RoleTeacher, "report:view"))
	assert.True(t, c.Has(RoleTeacher, "report:view-own"))
	assert.True(t, c.Has(RoleTeacher, "student:view"))
	assert.False(t, c.Has(RoleStudent, "student:view"))
	assert.False(t, c.Has(RoleStudent, "score:write"))
	assert.False(t, c.Has(RoleStudent, "report:view"))
	assert.True(t, c.Has(RoleStudent, "report:view-own"))
	assert.False(t, c.Has("guest", "outcome:view"))
}

func serve(h http.Handler, role string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithRole(req.Context(), role))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require("outcome:edit")(ok)

	assert.Equal(t, http.StatusNoContent, serve(h, RoleTeacher))
	assert.Equal(t, http.StatusForbidden, serve(h, RoleStudent))
	assert.Equal(t, http.StatusForbidden, serve(h, ""))
}

func TestRequireOwnerOr(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	owner := RequireOwnerOr("report:view", "report:view-own", func(*http.Request) bool { return true })(ok)
	stranger := RequireOwnerOr("report:view", "report:view-own", func(*http.Request) bool { return false })(ok)

	assert.Equal(t, http.StatusNoContent, serve(owner, RoleStudent))
	assert.Equal(t, http.StatusForbidden, serve(stranger, RoleStudent))
	assert.Equal(t, http.StatusNoContent, serve(stranger, RoleTeacher))
	assert.Equal(t, http.StatusForbidden, serve(owner, ""))
}

func TestRequireOwnerOr_OwnerNeedsOwnPermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireOwnerOr("report:view", "report:view-own", func(*http.Request) bool { return true })(ok)

	old := defaultChecker
	t.Cleanup(func() { defaultChecker = old })
	defaultChecker = NewChecker(map[string][]string{RoleStudent: {"outcome:view"}})

	assert.Equal(t, http.StatusForbidden, serve(h, RoleStudent), "owning the resource is not enough without report:view-own")
}
