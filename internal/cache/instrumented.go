package cache

import (
	"context"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

type HitObserver interface {
	ObserveCache(hit bool)
}

type instrumented struct {
	Users
	obs HitObserver
}

// Instrument reports every GetUser outcome to obs.
func Instrument(u Users, obs HitObserver) Users {
	if u == nil || obs == nil {
		return u
	}
	return &instrumented{Users: u, obs: obs}
}

func (i *instrumented) GetUser(ctx context.Context, id string) (user.User, bool) {
	u, ok := i.Users.GetUser(ctx, id)
	i.obs.ObserveCache(ok)
	return u, ok
}
