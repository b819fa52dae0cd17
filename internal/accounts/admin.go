package accounts

import (
	"context"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

// AdminActions is the capability for role, status and delete operations.
// It can only be obtained through Service.AsAdmin, so self-service code
// paths holding a *Service and a plain user cannot reach these mutations
// without an admin actor.
type AdminActions struct {
	svc   *Service
	actor user.User
}

func (s *Service) AsAdmin(actor user.User) (*AdminActions, error) {
	if !actor.IsAdmin() || !actor.IsActive {
		return nil, user.ErrForbidden
	}
	return &AdminActions{svc: s, actor: actor}, nil
}

func (a *AdminActions) Actor() user.User {
	return a.actor
}

func (a *AdminActions) List(ctx context.Context, q user.ListQuery) (user.Page, error) {
	return a.svc.List(ctx, q)
}

func (a *AdminActions) Get(ctx context.Context, id string) (user.User, error) {
	return a.svc.store.GetByID(ctx, id)
}

func (a *AdminActions) ChangeRole(ctx context.Context, id string, role user.Role) (user.User, error) {
	if id == a.actor.ID {
		return user.User{}, user.ErrSelfAction
	}
	return a.svc.setRole(ctx, id, role)
}

func (a *AdminActions) SetActive(ctx context.Context, id string, active bool) (user.User, error) {
	if id == a.actor.ID {
		return user.User{}, user.ErrSelfAction
	}
	return a.svc.setActive(ctx, id, active)
}

// Delete removes another user. Deleting the acting admin is rejected
// before any lookup.
func (a *AdminActions) Delete(ctx context.Context, id string) error {
	if id == a.actor.ID {
		return user.ErrSelfAction
	}
	return a.svc.delete(ctx, id)
}
