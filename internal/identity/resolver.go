package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quantflow/backend/internal/extidp"
	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/models"
	"github.com/quantflow/backend/internal/store"
	"github.com/quantflow/backend/internal/tokens"
)

var (
	// ErrUnauthenticated means no strategy could resolve the token.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrAccountDeactivated means the identity resolved but the record
	// is soft-disabled. It short-circuits the chain.
	ErrAccountDeactivated = errors.New("account is deactivated")
)

// strategy resolves a bearer token. (nil, nil) means "not applicable,
// try the next one"; a non-nil error stops the chain.
type strategy func(ctx context.Context, token string) (Principal, error)

// Resolver is the decision engine: local signed tokens first, then the
// external verifier, degrading through three levels of persistence.
type Resolver struct {
	Tokens   *tokens.Service
	Store    store.Store
	Verifier *extidp.Client // nil when unconfigured
}

func NewResolver(ts *tokens.Service, st store.Store, verifier *extidp.Client) *Resolver {
	return &Resolver{Tokens: ts, Store: st, Verifier: verifier}
}

// Resolve runs the strategy chain in order, first success wins.
func (r *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	for _, s := range []strategy{r.resolveLocal, r.resolveExternal} {
		p, err := s(ctx, token)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, ErrUnauthenticated
}

// resolveLocal verifies the token against our own access secret and
// looks the subject up in the credential store. A well-formed token
// whose record is missing, or a store outage, falls through: the
// identity may still resolve externally.
func (r *Resolver) resolveLocal(ctx context.Context, token string) (Principal, error) {
	userID, err := r.Tokens.VerifyAccess(token)
	if err != nil {
		return nil, nil
	}

	user, err := r.Store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnavailable) {
			logging.FromContext(ctx).Debug("local_lookup_fallthrough", "user_id", userID, "error", err)
			return nil, nil
		}
		return nil, nil
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	return &StorePrincipal{User: user, Store: r.Store}, nil
}

// resolveExternal submits the raw token to the external verifier and
// materializes a principal from whichever backend is still standing.
// Any verifier fault means "no answer here", never a request failure.
func (r *Resolver) resolveExternal(ctx context.Context, token string) (Principal, error) {
	if r.Verifier == nil {
		return nil, nil
	}

	l := logging.FromContext(ctx)

	ident, err := r.Verifier.VerifyBearerToken(ctx, token)
	if err != nil {
		l.Debug("external_verify_failed", "error", err)
		return nil, nil
	}

	user, err := r.Store.FindByEmail(ctx, ident.Email)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, ErrAccountDeactivated
		}
		return &StorePrincipal{User: user, Store: r.Store}, nil

	case errors.Is(err, store.ErrNotFound):
		created, createErr := r.materializeLocal(ctx, ident)
		if createErr == nil {
			return &StorePrincipal{User: created, Store: r.Store}, nil
		}
		if !errors.Is(createErr, store.ErrUnavailable) {
			l.Warn("external_materialize_failed", "email", ident.Email, "error", createErr)
			return nil, nil
		}
		return r.resolveViaProviderStorage(ctx, ident), nil

	case errors.Is(err, store.ErrUnavailable):
		return r.resolveViaProviderStorage(ctx, ident), nil

	default:
		l.Warn("external_lookup_failed", "error", err)
		return nil, nil
	}
}

// materializeLocal creates a credential record for a first-time external
// identity. The random local password is never used for authentication;
// the external provider stays the source of truth for this record.
func (r *Resolver) materializeLocal(ctx context.Context, ident *extidp.Identity) (*models.User, error) {
	avatar := ident.AvatarURL
	if avatar == "" {
		avatar = models.DefaultAvatar(ident.Name)
	}

	user := &models.User{
		Name:            ident.Name,
		Email:           models.NormalizeEmail(ident.Email),
		Avatar:          avatar,
		Subscription:    models.TierFree,
		Profile:         models.DefaultProfile(),
		IsEmailVerified: ident.EmailVerified,
		IsActive:        true,
		LastLogin:       time.Now(),
	}
	if err := user.SetPassword(uuid.NewString()); err != nil {
		return nil, err
	}
	if err := r.Store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// resolveViaProviderStorage runs the degraded chain: upsert the profile
// row in the provider's own storage, read it back, and as a last resort
// synthesize an in-memory principal from the claims. This path always
// yields a principal.
func (r *Resolver) resolveViaProviderStorage(ctx context.Context, ident *extidp.Identity) Principal {
	l := logging.FromContext(ctx)

	row := profileFromIdentity(ident)
	if err := r.Verifier.UpsertProfile(ctx, row); err != nil {
		l.Debug("profile_upsert_failed", "external_id", ident.ExternalID, "error", err)
		return &EphemeralPrincipal{Row: row}
	}

	if fetched, err := r.Verifier.FetchProfile(ctx, ident.ExternalID); err == nil && fetched != nil {
		fillProfileDefaults(fetched, ident)
		return &ExternalPrincipal{Row: fetched, Client: r.Verifier}
	} else if err != nil {
		l.Debug("profile_fetch_failed", "external_id", ident.ExternalID, "error", err)
	}

	return &ExternalPrincipal{Row: row, Client: r.Verifier}
}

func profileFromIdentity(ident *extidp.Identity) *extidp.Profile {
	avatar := ident.AvatarURL
	if avatar == "" {
		avatar = models.DefaultAvatar(ident.Name)
	}
	return &extidp.Profile{
		ID:              ident.ExternalID,
		Email:           models.NormalizeEmail(ident.Email),
		Name:            ident.Name,
		Avatar:          avatar,
		Subscription:    string(models.TierFree),
		Profile:         models.DefaultProfile(),
		IsEmailVerified: ident.EmailVerified,
		LastLogin:       time.Now(),
	}
}

// fillProfileDefaults papers over sparse rows coming back from the
// provider table.
func fillProfileDefaults(row *extidp.Profile, ident *extidp.Identity) {
	if row.ID == "" {
		row.ID = ident.ExternalID
	}
	if row.Email == "" {
		row.Email = models.NormalizeEmail(ident.Email)
	}
	if row.Name == "" {
		row.Name = ident.Name
	}
	if row.Avatar == "" {
		row.Avatar = models.DefaultAvatar(row.Name)
	}
	if row.Subscription == "" {
		row.Subscription = string(models.TierFree)
	}
	if row.Profile == nil {
		row.Profile = models.DefaultProfile()
	}
}
