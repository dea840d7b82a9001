// Package service orchestrates registration, login, refresh rotation
// and logout across the token service and the credential store.
package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/quantflow/backend/internal/audit"
	"github.com/quantflow/backend/internal/events"
	"github.com/quantflow/backend/internal/identity"
	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/models"
	"github.com/quantflow/backend/internal/store"
	"github.com/quantflow/backend/internal/tokens"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidRefresh is deliberately uniform: a tampered, expired,
	// rotated-away or never-issued refresh token all read the same.
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")
)

type AuthService struct {
	Store  store.Store
	Tokens *tokens.Service
	Events *events.Producer
	Audit  *audit.Recorder

	// rotation is serialized per principal so two concurrent refresh
	// calls cannot both match the same entry and silently drop one
	// writer's rotation. A fixed stripe table keeps the lock set from
	// growing with the user population.
	locks [rotationStripes]sync.Mutex
}

const rotationStripes = 64

type AuthResult struct {
	User *models.User
	Pair *tokens.Pair
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	name = strings.TrimSpace(name)
	email = models.NormalizeEmail(email)
	if name == "" || email == "" || len(password) < 6 {
		return nil, ErrValidation
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Avatar:       models.DefaultAvatar(name),
		Subscription: models.TierFree,
		Profile:      models.DefaultProfile(),
		IsActive:     true,
		LastLogin:    time.Now(),
	}
	if err := user.SetPassword(password); err != nil {
		l.Error("register_failed", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	if err := s.Store.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, err
		}
		l.Error("register_failed", "error", err)
		return nil, err
	}

	pair, err := s.issueAndRecord(ctx, user)
	if err != nil {
		return nil, err
	}

	s.Events.Publish(ctx, events.UserRegistered, user.ID, map[string]any{"email": user.Email})
	s.Audit.Record(ctx, audit.Entry{UserID: user.ID, Email: user.Email, Action: "register", Outcome: "success"})
	l.Info("register_successful", "user_id", user.ID)

	return &AuthResult{User: user, Pair: pair}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")
	email = models.NormalizeEmail(email)

	if email == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.Store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Audit.Record(ctx, audit.Entry{Email: email, Action: "login", Outcome: "invalid_credentials"})
			return nil, ErrInvalidCredentials
		}
		l.Warn("login_failed", "error", err)
		return nil, err
	}

	if !user.CheckPassword(password) {
		s.Audit.Record(ctx, audit.Entry{UserID: user.ID, Email: email, Action: "login", Outcome: "invalid_credentials"})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.Audit.Record(ctx, audit.Entry{UserID: user.ID, Email: email, Action: "login", Outcome: "deactivated"})
		return nil, identity.ErrAccountDeactivated
	}

	user.Touch(time.Now())
	pair, err := s.issueAndRecord(ctx, user)
	if err != nil {
		return nil, err
	}

	s.Events.Publish(ctx, events.UserLoggedIn, user.ID, nil)
	s.Audit.Record(ctx, audit.Entry{UserID: user.ID, Email: email, Action: "login", Outcome: "success"})
	l.Info("login_successful", "user_id", user.ID)

	return &AuthResult{User: user, Pair: pair}, nil
}

// Refresh walks Presented -> Verified -> Matched -> Rotated. Store-side
// revocation wins: a token whose embedded expiry is fine but whose
// entry is gone fails the same as a forged one.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	unlock := s.lockUser(claims.Subject)
	defer unlock()

	user, err := s.Store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		l.Warn("refresh_failed", "error", err)
		return nil, err
	}

	if !user.IsActive {
		return nil, identity.ErrAccountDeactivated
	}

	now := time.Now()
	if !user.HasLiveRefreshToken(refreshToken, now) {
		s.Audit.Record(ctx, audit.Entry{UserID: user.ID, Action: "refresh", Outcome: "revoked_or_unknown"})
		return nil, ErrInvalidRefresh
	}

	user.RemoveRefreshToken(refreshToken)
	user.PruneExpiredTokens(now)

	pair, err := s.issueAndRecord(ctx, user)
	if err != nil {
		return nil, err
	}

	s.Events.Publish(ctx, events.TokenRefreshed, user.ID, nil)
	l.Info("refresh_successful", "user_id", user.ID)

	return &AuthResult{User: user, Pair: pair}, nil
}

// Logout removes the presented refresh entry from wherever the
// principal persists.
func (s *AuthService) Logout(ctx context.Context, p identity.Principal, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken != "" {
		if err := p.RemoveRefreshToken(ctx, refreshToken); err != nil {
			l.Error("logout_failed", "user_id", p.ID(), "error", err)
			return err
		}
	}

	s.Events.Publish(ctx, events.UserLoggedOut, p.ID(), nil)
	s.Audit.Record(ctx, audit.Entry{UserID: p.ID(), Action: "logout", Outcome: "success"})
	return nil
}

// Deactivate is a soft flag flip plus a full refresh-entry clear; the
// record is never physically deleted.
func (s *AuthService) Deactivate(ctx context.Context, p identity.Principal) error {
	p.Deactivate()

	if sp, ok := p.(*identity.StorePrincipal); ok {
		sp.User.RefreshTokens = nil
	}

	if err := p.Save(ctx); err != nil {
		return err
	}

	s.Events.Publish(ctx, events.UserDeactivated, p.ID(), nil)
	s.Audit.Record(ctx, audit.Entry{UserID: p.ID(), Action: "deactivate", Outcome: "success"})
	return nil
}

// issueAndRecord signs a fresh pair and persists the refresh entry on
// the record, subject to the entry cap.
func (s *AuthService) issueAndRecord(ctx context.Context, user *models.User) (*tokens.Pair, error) {
	pair, err := s.Tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}

	user.AddRefreshToken(pair.RefreshToken, time.Now(), s.Tokens.RefreshTTL())
	if err := s.Store.Save(ctx, user); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *AuthService) lockUser(userID string) func() {
	h := fnv.New32a()
	h.Write([]byte(userID))
	mu := &s.locks[h.Sum32()%rotationStripes]
	mu.Lock()
	return mu.Unlock
}
