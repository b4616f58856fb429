package actorctx

import (
	"context"

	"github.com/geocoder89/medledger/internal/authz"
)

type ctxKey struct{}

func With(ctx context.Context, actor authz.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func From(ctx context.Context) (authz.Actor, bool) {
	v, ok := ctx.Value(ctxKey{}).(authz.Actor)

	return v, ok && v.ID != 0
}
