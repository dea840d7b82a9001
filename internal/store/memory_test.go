package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/backend/internal/models"
)

func TestMemory_CreateAndFind(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	u := &models.User{Name: "Ada", Email: "Ada@Example.com", IsActive: true}
	require.NoError(t, m.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	byEmail, err := m.FindByEmail(ctx, "ADA@example.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "ada@example.com", byEmail.Email)

	byID, err := m.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", byID.Name)
}

func TestMemory_NotFound(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	_, err := m.FindByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_DuplicateEmail(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, &models.User{Name: "A", Email: "dup@example.com"}))
	err := m.Create(ctx, &models.User{Name: "B", Email: "DUP@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_SaveIsolatesCallers(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	u := &models.User{
		Name:  "Ada",
		Email: "ada@example.com",
		Profile: map[string]any{
			"bio":         "original",
			"preferences": map[string]any{"theme": "dark"},
		},
	}
	require.NoError(t, m.Create(ctx, u))

	fetched, err := m.FindByID(ctx, u.ID)
	require.NoError(t, err)

	// Mutating a fetched copy must not leak into the store. The profile
	// blob is the interesting case: handlers merge into it in place, so
	// the nested maps must be copies too.
	fetched.Name = "changed"
	fetched.RefreshTokens = append(fetched.RefreshTokens, models.RefreshTokenEntry{Token: "x", ExpiresAt: time.Now().Add(time.Hour)})
	fetched.Profile["bio"] = "edited"
	fetched.Profile["preferences"].(map[string]any)["theme"] = "light"

	again, err := m.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
	assert.Empty(t, again.RefreshTokens)
	assert.Equal(t, "original", again.Profile["bio"])
	assert.Equal(t, "dark", again.Profile["preferences"].(map[string]any)["theme"])

	// Save persists explicitly.
	fetched.Name = "Saved"
	require.NoError(t, m.Save(ctx, fetched))
	saved, err := m.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Saved", saved.Name)
}
