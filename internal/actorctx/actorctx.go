package actorctx

import (
	"context"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

type ctxKey struct{}

// WithUser attaches the authenticated caller to ctx.
func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(user.User)
	return u, ok && u.ID != ""
}

func UserIDFrom(ctx context.Context) (string, bool) {
	u, ok := UserFrom(ctx)
	return u.ID, ok
}
