package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsertUsersJSON(t *testing.T) {
	ts := newTestServer(t)

	rr, out := ts.json(http.MethodPost, "/users/bulk", "tess",
		`[{"id":"cara","name":"Cara","email":"cara@example.com","password":"pw-cara"},{"id":"ann","name":"Ann Lee"}]`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 1, out["inserted"])
	assert.EqualValues(t, 1, out["updated"])

	u, err := ts.store.GetUser(context.Background(), "cara")
	require.NoError(t, err)
	assert.Equal(t, "student", u.Role)
	assert.Equal(t, "cara@example.com", u.Email)

	rr, out = ts.json(http.MethodPost, "/auth/login", "", `{"username":"cara","password":"pw-cara"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, out["access_token"])

	rr, _ = ts.json(http.MethodPost, "/users/bulk", "tess", `[{"id":"dan"}]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "new user without password")
	rr, _ = ts.json(http.MethodPost, "/users/bulk", "tess", `[{"id":"eve","password":"x","role":"wizard"}]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = ts.json(http.MethodPost, "/users/bulk", "ann", `[]`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestBulkUpsertUsersCSV(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "users.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("id,username,name,email,role,password\nfay,fay,Fay,fay@example.com,student,pw\ngus,,Gus,,teacher,pw2\n"))
	require.NoError(t, mw.Close())

	rr := ts.do(http.MethodPost, "/users/bulk", "tess", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	gus, err := ts.store.GetUser(context.Background(), "gus")
	require.NoError(t, err)
	assert.Equal(t, "teacher", gus.Role)
	assert.Equal(t, "gus", gus.Username)
}

func TestChangePassword(t *testing.T) {
	ts := newTestServer(t)
	rr, _ := ts.json(http.MethodPost, "/users/bulk", "tess", `[{"id":"ann","password":"old-pw"}]`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = ts.json(http.MethodPost, "/users/change-password", "ann", `{"old_password":"wrong","new_password":"new-pw"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = ts.json(http.MethodPost, "/users/change-password", "ann", `{"old_password":"old-pw","new_password":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = ts.json(http.MethodPost, "/users/change-password", "ann", `{"old_password":"old-pw","new_password":"new-pw"}`)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr, _ = ts.json(http.MethodPost, "/auth/login", "", `{"username":"ann","password":"new-pw"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}
