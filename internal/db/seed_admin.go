package db

import (
	"context"
	"errors"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
)

type AdminCreator interface {
	CreateAdmin(ctx context.Context, name, email, plain string) (user.User, error)
}

// EnsureAdminUser creates the bootstrap admin from config when both
// ADMIN_EMAIL and ADMIN_PASSWORD are set. An existing account with that
// email is left untouched.
func EnsureAdminUser(ctx context.Context, accounts AdminCreator, cfg config.Config) (created bool, err error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	_, err = accounts.CreateAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)

	if errors.Is(err, user.ErrEmailTaken) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
