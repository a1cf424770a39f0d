package middleware

import "context"

type actorKey struct{}

// Actor is the authenticated operator on admin routes.
type Actor struct {
	Subject string
	Role    string
}

// WithActor seeds the context with an authenticated admin.
func WithActor(ctx context.Context, subject, role string) context.Context {
	return context.WithValue(ctx, actorKey{}, Actor{Subject: subject, Role: role})
}

func actorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// ActorFromContext returns the admin subject, or "" on public routes.
func ActorFromContext(ctx context.Context) string {
	a, _ := actorFrom(ctx)
	return a.Subject
}

func RoleFromContext(ctx context.Context) string {
	a, _ := actorFrom(ctx)
	return a.Role
}
