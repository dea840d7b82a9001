package store

import (
	"context"
	"errors"

	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/models"
)

// Failover prefers the primary store and retries a call on the fallback
// only when the primary reports ErrUnavailable. NotFound is an answer,
// not an outage, and is never retried. Records written through the
// fallback stay ephemeral.
type Failover struct {
	Primary  Store
	Fallback Store
}

func NewFailover(primary, fallback Store) *Failover {
	return &Failover{Primary: primary, Fallback: fallback}
}

func (f *Failover) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := f.Primary.FindByEmail(ctx, email)
	if errors.Is(err, ErrUnavailable) {
		f.warn(ctx, "find_by_email", err)
		return f.Fallback.FindByEmail(ctx, email)
	}
	return u, err
}

func (f *Failover) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := f.Primary.FindByID(ctx, id)
	if errors.Is(err, ErrUnavailable) {
		f.warn(ctx, "find_by_id", err)
		return f.Fallback.FindByID(ctx, id)
	}
	return u, err
}

func (f *Failover) Create(ctx context.Context, u *models.User) error {
	err := f.Primary.Create(ctx, u)
	if errors.Is(err, ErrUnavailable) {
		f.warn(ctx, "create", err)
		return f.Fallback.Create(ctx, u)
	}
	return err
}

func (f *Failover) Save(ctx context.Context, u *models.User) error {
	err := f.Primary.Save(ctx, u)
	if errors.Is(err, ErrUnavailable) {
		f.warn(ctx, "save", err)
		return f.Fallback.Save(ctx, u)
	}
	return err
}

func (f *Failover) warn(ctx context.Context, op string, err error) {
	logging.FromContext(ctx).Warn("store_failover", "op", op, "error", err)
}
