package db

import (
	"context"
	"errors"

	"github.com/geocoder89/medledger/internal/config"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/security"
)

// AdminStore is the slice of a user store the seeder needs. Both the postgres
// and the memory repos satisfy it.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

// EnsureAdminUser creates the configured admin account once. It is the only
// way an admin comes into existence.
func EnsureAdminUser(ctx context.Context, store AdminStore, hasher security.BcryptHasher, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := store.GetByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return err
	}

	_, err = store.Create(ctx, user.User{
		Name:         cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	})

	if errors.Is(err, user.ErrEmailTaken) {
		// another instance seeded it first
		return nil
	}

	return err
}
