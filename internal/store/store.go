// Package store is the credential-store boundary: durable user records
// behind a small contract, plus the ephemeral in-memory substitute used
// when the durable backend is down.
package store

import (
	"context"
	"errors"

	"github.com/quantflow/backend/internal/models"
)

var (
	// ErrNotFound means the backend answered and the record is absent.
	ErrNotFound = errors.New("user not found")

	// ErrUnavailable means the backend itself could not answer. It is
	// caught inside the subsystem to trigger fallback paths and never
	// shown raw to callers.
	ErrUnavailable = errors.New("credential store unavailable")

	// ErrDuplicateEmail rejects a create for an already-taken email.
	ErrDuplicateEmail = errors.New("email already registered")
)

type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Save(ctx context.Context, u *models.User) error
}
