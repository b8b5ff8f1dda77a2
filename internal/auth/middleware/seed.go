package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
)

type UserWriter interface {
	UserLookup
	UpsertUser(ctx context.Context, u scenario.User) error
}

// SeedAdmin makes sure the configured admin account exists. An existing
// account is left alone so a changed password survives restarts.
func SeedAdmin(ctx context.Context, users UserWriter, username, passHash string) error {
	if username == "" || passHash == "" {
		return nil
	}
	if _, err := users.GetUser(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, scenario.ErrNotFound) {
		return err
	}
	return users.UpsertUser(ctx, scenario.User{
		ID: username, Username: username, Name: "Administrator", Role: "admin", PasswordHash: passHash,
	})
}

// SeedDevUsers creates the offline demo accounts "teacher" and "student"
// with the username as password.
func SeedDevUsers(ctx context.Context, users UserWriter) error {
	for _, role := range []string{"teacher", "student"} {
		if _, err := users.GetUser(ctx, role); err == nil {
			continue
		} else if !errors.Is(err, scenario.ErrNotFound) {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(role), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash %s password: %w", role, err)
		}
		if err := users.UpsertUser(ctx, scenario.User{
			ID: role, Username: role, Name: role, Email: role + "@localhost", Role: role, PasswordHash: string(hash),
		}); err != nil {
			return err
		}
	}
	return nil
}
