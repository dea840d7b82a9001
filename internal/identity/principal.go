// Package identity turns raw bearer tokens into authenticated
// principals. A principal can be backed by the durable credential store,
// by the external provider's profile storage, or by nothing but the
// verified claims, and downstream code treats all three the same.
package identity

import (
	"context"
	"time"

	"github.com/quantflow/backend/internal/extidp"
	"github.com/quantflow/backend/internal/models"
	"github.com/quantflow/backend/internal/store"
)

// Principal is the authenticated identity attached to a request. The
// persistence methods write wherever the principal came from, so
// handlers never branch on the backing backend.
type Principal interface {
	ID() string
	Email() string
	DisplayName() string
	Tier() models.Tier
	Active() bool
	ProfileData() map[string]any
	FullProfile() map[string]any

	SetDisplayName(name string)
	SetTier(t models.Tier)
	SetProfileData(p map[string]any)
	Deactivate()

	Save(ctx context.Context) error
	UpdateLastLogin(ctx context.Context) error
	RemoveRefreshToken(ctx context.Context, token string) error
}

// StorePrincipal wraps a durable (or ephemeral-fallback) credential
// record. Persistence goes through the store that produced it.
type StorePrincipal struct {
	User  *models.User
	Store store.Store
}

func (p *StorePrincipal) ID() string                   { return p.User.ID }
func (p *StorePrincipal) Email() string                { return p.User.Email }
func (p *StorePrincipal) DisplayName() string          { return p.User.Name }
func (p *StorePrincipal) Tier() models.Tier            { return p.User.Subscription }
func (p *StorePrincipal) Active() bool                 { return p.User.IsActive }
func (p *StorePrincipal) ProfileData() map[string]any  { return p.User.Profile }
func (p *StorePrincipal) FullProfile() map[string]any  { return p.User.FullProfile() }
func (p *StorePrincipal) SetDisplayName(name string)   { p.User.Name = name }
func (p *StorePrincipal) SetTier(t models.Tier)        { p.User.Subscription = t }
func (p *StorePrincipal) SetProfileData(d map[string]any) { p.User.Profile = d }
func (p *StorePrincipal) Deactivate()                  { p.User.IsActive = false }

func (p *StorePrincipal) Save(ctx context.Context) error {
	return p.Store.Save(ctx, p.User)
}

func (p *StorePrincipal) UpdateLastLogin(ctx context.Context) error {
	p.User.Touch(time.Now())
	return p.Store.Save(ctx, p.User)
}

func (p *StorePrincipal) RemoveRefreshToken(ctx context.Context, token string) error {
	p.User.RemoveRefreshToken(token)
	return p.Store.Save(ctx, p.User)
}

// ExternalPrincipal is backed by the provider-side profile row. It shows
// up when the durable store is unreachable but the provider's own
// storage still works; saves upsert back there.
type ExternalPrincipal struct {
	Row    *extidp.Profile
	Client *extidp.Client
}

func (p *ExternalPrincipal) ID() string          { return p.Row.ID }
func (p *ExternalPrincipal) Email() string       { return p.Row.Email }
func (p *ExternalPrincipal) DisplayName() string { return p.Row.Name }

func (p *ExternalPrincipal) Tier() models.Tier {
	if models.ValidTier(p.Row.Subscription) {
		return models.Tier(p.Row.Subscription)
	}
	return models.TierFree
}

func (p *ExternalPrincipal) Active() bool                { return true }
func (p *ExternalPrincipal) ProfileData() map[string]any { return p.Row.Profile }

func (p *ExternalPrincipal) FullProfile() map[string]any {
	return map[string]any{
		"id":              p.Row.ID,
		"name":            p.Row.Name,
		"email":           p.Row.Email,
		"avatar":          p.Row.Avatar,
		"subscription":    p.Tier(),
		"profile":         p.Row.Profile,
		"isEmailVerified": p.Row.IsEmailVerified,
		"lastLogin":       p.Row.LastLogin,
	}
}

func (p *ExternalPrincipal) SetDisplayName(name string)      { p.Row.Name = name }
func (p *ExternalPrincipal) SetTier(t models.Tier)           { p.Row.Subscription = string(t) }
func (p *ExternalPrincipal) SetProfileData(d map[string]any) { p.Row.Profile = d }

// Deactivate only affects the request-scoped view; the provider row has
// no active flag to flip.
func (p *ExternalPrincipal) Deactivate() {}

func (p *ExternalPrincipal) Save(ctx context.Context) error {
	return p.Client.UpsertProfile(ctx, p.Row)
}

func (p *ExternalPrincipal) UpdateLastLogin(ctx context.Context) error {
	p.Row.LastLogin = time.Now()
	return p.Client.UpsertProfile(ctx, &extidp.Profile{
		ID:        p.Row.ID,
		Email:     p.Row.Email,
		Name:      p.Row.Name,
		LastLogin: p.Row.LastLogin,
	})
}

// RemoveRefreshToken is a no-op: refresh entries live only in credential
// records, which this principal does not have.
func (p *ExternalPrincipal) RemoveRefreshToken(ctx context.Context, token string) error {
	return nil
}

// EphemeralPrincipal is the last resort when neither backend can
// persist: correct for the duration of one request, retained nowhere.
type EphemeralPrincipal struct {
	Row *extidp.Profile
}

func (p *EphemeralPrincipal) ID() string          { return p.Row.ID }
func (p *EphemeralPrincipal) Email() string       { return p.Row.Email }
func (p *EphemeralPrincipal) DisplayName() string { return p.Row.Name }

func (p *EphemeralPrincipal) Tier() models.Tier {
	if models.ValidTier(p.Row.Subscription) {
		return models.Tier(p.Row.Subscription)
	}
	return models.TierFree
}

func (p *EphemeralPrincipal) Active() bool                { return true }
func (p *EphemeralPrincipal) ProfileData() map[string]any { return p.Row.Profile }

func (p *EphemeralPrincipal) FullProfile() map[string]any {
	return map[string]any{
		"id":              p.Row.ID,
		"name":            p.Row.Name,
		"email":           p.Row.Email,
		"avatar":          p.Row.Avatar,
		"subscription":    p.Tier(),
		"profile":         p.Row.Profile,
		"isEmailVerified": p.Row.IsEmailVerified,
		"lastLogin":       p.Row.LastLogin,
	}
}

func (p *EphemeralPrincipal) SetDisplayName(name string)      { p.Row.Name = name }
func (p *EphemeralPrincipal) SetTier(t models.Tier)           { p.Row.Subscription = string(t) }
func (p *EphemeralPrincipal) SetProfileData(d map[string]any) { p.Row.Profile = d }
func (p *EphemeralPrincipal) Deactivate()                     {}

func (p *EphemeralPrincipal) Save(context.Context) error { return nil }

func (p *EphemeralPrincipal) UpdateLastLogin(context.Context) error {
	p.Row.LastLogin = time.Now()
	return nil
}
func (p *EphemeralPrincipal) RemoveRefreshToken(context.Context, string) error {
	return nil
}
