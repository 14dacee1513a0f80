// Package auth implements the security core: password hashing, the access
// token codec, and the authorization guard chain evaluated on every
// protected request.
package auth

import (
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Principal is the authenticated identity of a caller, derived only from a
// token that passed signature and expiry checks. It never carries the
// password or stored hash and lives for a single request.
type Principal struct {
	ID    string
	Email string
	Role  models.Role
}

// PrincipalFromClaims materializes a Principal from validated token claims.
func PrincipalFromClaims(c *Claims) *Principal {
	return &Principal{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// Target describes what a request wants to touch. Empty fields mean the
// corresponding guard does not apply to the route.
type Target struct {
	// Roles is the set of roles allowed on the route; empty means any
	// authenticated caller.
	Roles []models.Role
	// ResourceID is the owner ID of the addressed resource; empty means the
	// route is not resource-scoped.
	ResourceID string
}

// Decision is the outcome of a guard. A deny keeps its reason so the caller
// can map and log it without re-deriving which stage failed.
type Decision struct {
	allowed bool
	reason  error
}

func Allow() Decision            { return Decision{allowed: true} }
func Deny(reason error) Decision { return Decision{reason: reason} }

func (d Decision) Allowed() bool { return d.allowed }

// Reason returns the deny reason, nil for an allow.
func (d Decision) Reason() error { return d.reason }

// Guard is a single predicate stage of the authorization chain.
type Guard func(p *Principal, t Target) Decision

// RequireAuthenticated denies callers without a validated principal.
func RequireAuthenticated(p *Principal, _ Target) Decision {
	if p == nil {
		return Deny(common.ErrUnauthenticated)
	}
	return Allow()
}

// RequireRole denies principals whose role is outside the target's role set.
func RequireRole(p *Principal, t Target) Decision {
	if len(t.Roles) == 0 {
		return Allow()
	}
	if p == nil {
		return Deny(common.ErrUnauthenticated)
	}
	for _, r := range t.Roles {
		if p.Role == r {
			return Allow()
		}
	}
	return Deny(common.ErrForbidden)
}

// RequireOwnership denies principals addressing a resource they do not own.
// Admins own everything.
func RequireOwnership(p *Principal, t Target) Decision {
	if t.ResourceID == "" {
		return Allow()
	}
	if p == nil {
		return Deny(common.ErrUnauthenticated)
	}
	if p.ID == t.ResourceID || p.Role == models.RoleAdmin {
		return Allow()
	}
	return Deny(common.ErrForbidden)
}

// Chain is an ordered list of guards. Evaluation short-circuits on the first
// deny; a deny is terminal for the request.
type Chain []Guard

// DefaultChain evaluates authentication, then role membership, then
// resource ownership.
var DefaultChain = Chain{RequireAuthenticated, RequireRole, RequireOwnership}

// Evaluate runs the guards in order against (p, t).
func (c Chain) Evaluate(p *Principal, t Target) Decision {
	for _, g := range c {
		if d := g(p, t); !d.Allowed() {
			return d
		}
	}
	return Allow()
}
