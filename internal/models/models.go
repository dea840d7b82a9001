package models

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/quantflow/backend/internal/hash"
)

// MaxRefreshTokens bounds the refresh entries kept per user. Inserting
// past the bound evicts the oldest entry by IssuedAt.
const MaxRefreshTokens = 5

type RefreshTokenEntry struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the entry is still usable at the given instant.
func (e RefreshTokenEntry) Live(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

type User struct {
	ID           string `gorm:"primaryKey"          json:"id"`
	Name         string `gorm:"not null"            json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null"            json:"-"`
	Avatar       string `json:"avatar"`

	Subscription Tier `gorm:"default:free" json:"subscription"`

	// Profile holds preferences, bio, trading stats and whatever else the
	// business endpoints attach. The auth subsystem never looks inside.
	Profile map[string]any `gorm:"serializer:json" json:"profile"`

	IsEmailVerified bool `gorm:"default:false" json:"is_email_verified"`
	IsActive        bool `gorm:"default:true"  json:"is_active"`

	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RefreshTokens []RefreshTokenEntry `gorm:"serializer:json" json:"-"`
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
// Every comparison in the subsystem goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultAvatar builds the placeholder avatar URL used when a record is
// created without one.
func DefaultAvatar(name string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=667eea&color=fff", url.QueryEscape(name))
}

// DefaultProfile is the preferences blob a fresh record starts with.
func DefaultProfile() map[string]any {
	return map[string]any{
		"preferences": map[string]any{
			"theme": "dark",
			"notifications": map[string]any{
				"email":   true,
				"push":    true,
				"trading": true,
			},
			"defaultCurrency": "USD",
		},
	}
}

func (u *User) SetPassword(password string) error {
	h, err := hash.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = h
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return hash.CheckPassword(u.PasswordHash, password)
}

// Touch updates the last-login timestamp.
func (u *User) Touch(now time.Time) {
	u.LastLogin = now
}

// AddRefreshToken appends an entry, evicting the oldest by IssuedAt when
// the bound is exceeded.
func (u *User) AddRefreshToken(token string, issuedAt time.Time, ttl time.Duration) {
	u.RefreshTokens = append(u.RefreshTokens, RefreshTokenEntry{
		Token:     token,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	})

	if len(u.RefreshTokens) > MaxRefreshTokens {
		sort.Slice(u.RefreshTokens, func(i, j int) bool {
			return u.RefreshTokens[i].IssuedAt.Before(u.RefreshTokens[j].IssuedAt)
		})
		u.RefreshTokens = u.RefreshTokens[len(u.RefreshTokens)-MaxRefreshTokens:]
	}
}

// RemoveRefreshToken drops the entry with the exact token string, if any.
func (u *User) RemoveRefreshToken(token string) {
	kept := u.RefreshTokens[:0]
	for _, e := range u.RefreshTokens {
		if e.Token != token {
			kept = append(kept, e)
		}
	}
	u.RefreshTokens = kept
}

// HasLiveRefreshToken reports whether an unexpired entry matches the
// exact token string. Entries past ExpiresAt are dead even if present.
func (u *User) HasLiveRefreshToken(token string, now time.Time) bool {
	for _, e := range u.RefreshTokens {
		if e.Token == token && e.Live(now) {
			return true
		}
	}
	return false
}

// PruneExpiredTokens removes logically dead entries.
func (u *User) PruneExpiredTokens(now time.Time) {
	kept := u.RefreshTokens[:0]
	for _, e := range u.RefreshTokens {
		if e.Live(now) {
			kept = append(kept, e)
		}
	}
	u.RefreshTokens = kept
}

// FullProfile is the outward user shape the handlers return. The password
// hash and refresh entries never leave the store layer.
func (u *User) FullProfile() map[string]any {
	return map[string]any{
		"id":              u.ID,
		"name":            u.Name,
		"email":           u.Email,
		"avatar":          u.Avatar,
		"subscription":    u.Subscription,
		"profile":         u.Profile,
		"isEmailVerified": u.IsEmailVerified,
		"createdAt":       u.CreatedAt,
		"lastLogin":       u.LastLogin,
	}
}
