package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "scenario:view", true},
		{"student", "scenario:create", false},
		{"student", "attempt:submit", true},
		{"student", "attempt:view-all", false},
		{"teacher", "scenario:create", true},
		{"teacher", "attempt:view-all", true},
		{"admin", "anything:at-all", true},
		{"ghost", "scenario:view", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Fatalf("Has(%s,%s)=%v want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.Any("student", "attempt:view-all", "attempt:view-own") {
		t.Fatalf("Any should match view-own")
	}
}

func TestRequireMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	serve := func(h http.Handler, role string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if role != "" {
			req = req.WithContext(WithRole(req.Context(), role))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := serve(Require("scenario:create")(ok), "teacher"); code != http.StatusOK {
		t.Fatalf("teacher create: %d", code)
	}
	if code := serve(Require("scenario:create")(ok), "student"); code != http.StatusForbidden {
		t.Fatalf("student create: %d", code)
	}
	if code := serve(Require("scenario:view")(ok), ""); code != http.StatusForbidden {
		t.Fatalf("no role: %d", code)
	}
	if code := serve(RequireAny("attempt:view-all", "attempt:view-own")(ok), "student"); code != http.StatusOK {
		t.Fatalf("student any: %d", code)
	}
}

func TestCan(t *testing.T) {
	ctx := WithRole(context.Background(), "student")
	if !Can(ctx, "attempt:view-own") || Can(ctx, "attempt:view-all") {
		t.Fatalf("student permissions wrong")
	}
	if Can(context.Background(), "scenario:view") {
		t.Fatalf("empty role granted")
	}
}
