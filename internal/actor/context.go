// Package actor carries the already-authenticated staff identity through
// request context. Authorization itself happens at the edge; domain code
// only uses the actor to scope queries and stamp audit entries.
package actor

import "context"

// Role names mirror the granted roles of the upstream identity provider.
const (
	RoleAdmin  = "ROLE_ADMIN"
	RoleAudit  = "ROLE_AUDITORIA_GESTION"
	RoleEditor = "ROLE_EDITOR"
	RoleUser   = "ROLE_USER"
)

// Actor is the authenticated staff identity attached to a request.
type Actor struct {
	Username  string
	OficinaID int64
	Roles     []string
}

// HasRole reports whether the actor was granted the named role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SeesAllOffices reports whether list and aggregate queries should span
// every office instead of the actor's own.
func (a Actor) SeesAllOffices() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleAudit)
}

type ctxKey string

const actorKey ctxKey = "turnos.actor"

// WithActor stores the actor in context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// FromContext extracts the actor if present.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok && a.Username != ""
}
