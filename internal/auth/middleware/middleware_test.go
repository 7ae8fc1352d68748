package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-outcomes/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("alice", rbac.RoleTeacher)
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Sub)
	assert.Equal(t, rbac.RoleTeacher, c.Role)

	_, err = NewAuthService("other-secret").Parse(tok)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	a := NewAuthService("test-secret")
	a.now = func() time.Time { return time.Now().Add(-2 * tokenTTL) }
	tok, err := a.IssueJWT("alice", rbac.RoleTeacher)
	require.NoError(t, err)

	_, err = NewAuthService("test-secret").Parse(tok)
	assert.Error(t, err)
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("test-secret")
	h := LoginHandler(a, LoginOptions{AdminUser: "admin", AdminPassHash: string(hash), DevLogin: true})

	rec := login(t, h, `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)

	assert.Equal(t, http.StatusUnauthorized, login(t, h, `{"username":"admin","password":"nope"}`).Code)
	assert.Equal(t, http.StatusOK, login(t, h, `{"username":"bob","password":"bob","role":"teacher"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, h, `{"username":"bob","password":"bob","role":"admin"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(t, h, `{`).Code)

	strict := LoginHandler(a, LoginOptions{AdminUser: "admin", AdminPassHash: string(hash)})
	assert.Equal(t, http.StatusUnauthorized, login(t, strict, `{"username":"bob","password":"bob","role":"teacher"}`).Code)
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("test-secret")
	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	tok, err := a.IssueJWT("7", rbac.RoleStudent)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", sub)
	assert.Equal(t, rbac.RoleStudent, role)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
