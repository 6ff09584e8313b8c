package lifecycle

import "context"

type actorKey struct{}

// WithActor attributes the activity logs written under ctx to userID
func WithActor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user id carried by ctx, or ""
func ActorFrom(ctx context.Context) string {
	userID, _ := ctx.Value(actorKey{}).(string)
	return userID
}
