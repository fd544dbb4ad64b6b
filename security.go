package audittrail

import "context"

// ---------- Scopes ----------

// Scope identifies the kind of access being checked on an entity's history.
type Scope string

// ScopeView guards read access to an entity's audit history.
const ScopeView Scope = "view"

// RoleChecker decides whether the caller identified by ctx may access the
// audit history of entity under scope. Host applications inject their own
// implementation; a nil checker grants everything.
type RoleChecker func(ctx context.Context, entity string, scope Scope) bool

// ---------- Viewer identity ----------

type contextKey struct{ name string }

var actorKey = contextKey{"audit-actor"}

// Actor identifies who is reading audit history. Transports attach it to
// the request context; role checkers consult it when deciding per-entity
// access.
type Actor struct {
	ID       string
	Username string
	Roles    []string
	IP       string
}

// WithActor attaches the reading identity to the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the reading identity from ctx. Returns nil if absent.
func ActorFrom(ctx context.Context) *Actor {
	a, ok := ctx.Value(actorKey).(Actor)
	if !ok {
		return nil
	}
	return &a
}
