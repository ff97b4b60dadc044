package service

import (
	"context"

	"boltline/backend/internal/domain"
)

type actorKey struct{}

// WithActor attaches the authenticated actor to the request context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
