package auth

import (
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-scenarios/internal/rbac"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

// AttachRoleFromStore replaces the token's role with the stored one so a
// demoted user loses access before the token expires.
// allowClaimFallback=true in dev/offline; false in prod.
func AttachRoleFromStore(users UserLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			u, err := users.GetUser(ctx, SubjectFromContext(ctx))
			switch {
			case err == nil && u.Role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))
			case err == nil, errors.Is(err, scenario.ErrNotFound):
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				// Unknown store error: in dev, be lenient; in prod, deny
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
