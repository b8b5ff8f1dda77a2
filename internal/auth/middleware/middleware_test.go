package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-scenarios/internal/rbac"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

func seededStore(t *testing.T) scenario.Store {
	t.Helper()
	st := scenario.NewInMemoryStore()
	require.NoError(t, SeedDevUsers(context.Background(), st))
	return st
}

func login(t *testing.T, h http.Handler, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"username":"` + user + `","password":"` + pass + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rr
}

func TestLoginIssuesTokenForStoredUser(t *testing.T) {
	a := NewAuthService("test-secret", time.Hour)
	h := LoginHandler(a, seededStore(t))

	rr := login(t, h, "student", "student")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "student", out["role"])

	c, err := a.Parse(out["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "student", c.Sub)
	assert.Equal(t, "student", c.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.ExpiresAt.Time, time.Minute)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := LoginHandler(NewAuthService("test-secret", 0), seededStore(t))
	assert.Equal(t, http.StatusUnauthorized, login(t, h, "student", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, h, "nobody", "nobody").Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, h, "", "").Code)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestJWTMiddlewareSetsSubjectAndRole(t *testing.T) {
	a := NewAuthService("test-secret", time.Hour)
	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, role = SubjectFromContext(r.Context()), rbac.RoleFromContext(r.Context())
	}))

	tok, err := a.IssueJWT("u1", "teacher")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", sub)
	assert.Equal(t, "teacher", role)

	for _, hdr := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, hdr)
	}

	other, err := NewAuthService("other-secret", time.Hour).IssueJWT("u1", "admin")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAttachRoleFromStore(t *testing.T) {
	st := seededStore(t)
	var role string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { role = rbac.RoleFromContext(r.Context()) })

	serve := func(fallback bool, sub, claimRole string) int {
		ctx := rbac.WithRole(WithSubject(context.Background(), sub), claimRole)
		rr := httptest.NewRecorder()
		AttachRoleFromStore(st, fallback)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		return rr.Code
	}

	role = ""
	assert.Equal(t, http.StatusOK, serve(false, "student", "admin"))
	assert.Equal(t, "student", role, "stored role must win over the claim")

	assert.Equal(t, http.StatusForbidden, serve(false, "ghost", "teacher"))
	role = ""
	assert.Equal(t, http.StatusOK, serve(true, "ghost", "teacher"))
	assert.Equal(t, "teacher", role)
}

func TestSeedAdminKeepsExistingAccount(t *testing.T) {
	st := scenario.NewInMemoryStore()
	hash, err := bcrypt.GenerateFromPassword([]byte("first"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, SeedAdmin(context.Background(), st, "root", string(hash)))

	u, err := st.GetUser(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)

	require.NoError(t, SeedAdmin(context.Background(), st, "root", "other-hash"))
	u, _ = st.GetUser(context.Background(), "root")
	assert.Equal(t, string(hash), u.PasswordHash)
}
