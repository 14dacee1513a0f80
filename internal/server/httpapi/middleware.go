package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type ctxKey string

const principalKey ctxKey = "principal"

// principalFrom returns the authenticated principal stored by the
// authenticate middleware, nil when the request carried no valid token.
func principalFrom(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey).(*auth.Principal)
	return p
}

// authenticate validates the bearer token and stores the resulting principal
// in the request context. Requests without a valid token are rejected here;
// what the principal may do is decided per route by the guard chain.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		if header == "" {
			s.writeError(w, r, common.ErrUnauthenticated)
			return
		}
		if !strings.HasPrefix(header, common.BearerPrefix) {
			s.writeError(w, r, common.ErrInvalidToken)
			return
		}

		claims, err := auth.ParseToken(strings.TrimPrefix(header, common.BearerPrefix), s.jwtSecret)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, auth.PrincipalFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// guard evaluates the authorization chain for the given target and rejects
// the request on the first deny.
func (s *Server) guard(target func(r *http.Request) auth.Target) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := auth.DefaultChain.Evaluate(principalFrom(r.Context()), target(r))
			if !d.Allowed() {
				s.writeError(w, r, d.Reason())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireRoles restricts a route to the given roles.
func (s *Server) requireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	return s.guard(func(*http.Request) auth.Target {
		return auth.Target{Roles: roles}
	})
}

// requireOwner restricts a route to the user addressed by the id parameter.
// Admins pass the ownership guard for any id.
func (s *Server) requireOwner(param string) func(http.Handler) http.Handler {
	return s.guard(func(r *http.Request) auth.Target {
		return auth.Target{ResourceID: chi.URLParam(r, param)}
	})
}
