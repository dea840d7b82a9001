package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantflow/backend/internal/models"
)

// Memory is the ephemeral fallback store: a process-lifetime map that
// keeps requests flowing while the durable store is down. Its contents
// are never reconciled with the durable store. It is constructed and
// injected explicitly, never a package-level singleton.
type Memory struct {
	mu      sync.RWMutex
	users   map[string]*models.User // keyed by id
	byEmail map[string]string       // normalized email -> id
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(m.users[id]), nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *Memory) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Email = models.NormalizeEmail(u.Email)
	if _, exists := m.byEmail[u.Email]; exists {
		return ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	m.users[u.ID] = copyUser(u)
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *Memory) Save(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.byEmail, prev.Email)
	}
	u.UpdatedAt = time.Now()
	m.users[u.ID] = copyUser(u)
	m.byEmail[models.NormalizeEmail(u.Email)] = u.ID
	return nil
}

// Len is for tests and diagnostics.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// copyUser keeps callers from mutating shared map state in place. The
// profile blob is copied depth-first: handlers merge into it before
// Save, and a shared nested map would leak those writes into the store.
func copyUser(u *models.User) *models.User {
	cp := *u
	cp.RefreshTokens = append([]models.RefreshTokenEntry(nil), u.RefreshTokens...)
	cp.Profile = copyBlob(u.Profile)
	return &cp
}

func copyBlob(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = copyValue(v)
	}
	return cp
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyBlob(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = copyValue(e)
		}
		return cp
	default:
		return v
	}
}
