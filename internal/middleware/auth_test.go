package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/backend/internal/identity"
	"github.com/quantflow/backend/internal/models"
	"github.com/quantflow/backend/internal/store"
	"github.com/quantflow/backend/internal/tokens"
)

// countingStore wraps the memory store, tracking backend invocations.
type countingStore struct {
	*store.Memory
	calls int
}

func (s *countingStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.calls++
	return s.Memory.FindByEmail(ctx, email)
}

func (s *countingStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.calls++
	return s.Memory.FindByID(ctx, id)
}

type mwEnv struct {
	E       *echo.Echo
	Auth    *SessionAuth
	Tokens  *tokens.Service
	Store   *countingStore
}

func newMWEnv(t *testing.T) *mwEnv {
	t.Helper()

	ts, err := tokens.NewService([]byte("acc"), []byte("ref"), time.Hour, 24*time.Hour)
	require.NoError(t, err)

	st := &countingStore{Memory: store.NewMemory()}

	return &mwEnv{
		E:      echo.New(),
		Auth:   NewSessionAuth(identity.NewResolver(ts, st, nil)),
		Tokens: ts,
		Store:  st,
	}
}

func (env *mwEnv) seedUser(t *testing.T, tier models.Tier, active bool) (*models.User, string) {
	t.Helper()

	u := &models.User{Name: "Ada", Email: "ada@example.com", Subscription: tier, IsActive: active}
	require.NoError(t, u.SetPassword("secret-pass"))
	require.NoError(t, env.Store.Create(context.Background(), u))

	pair, err := env.Tokens.IssuePair(u.ID)
	require.NoError(t, err)
	return u, pair.AccessToken
}

func (env *mwEnv) do(t *testing.T, handler echo.HandlerFunc, mws []echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, error) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)

	h := handler
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return rec, h(c)
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestAuthenticate_AttachesPrincipal(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)
	u, token := env.seedUser(t, models.TierFree, true)

	var gotID string
	handler := func(c echo.Context) error {
		gotID = PrincipalFrom(c).ID()
		return c.NoContent(http.StatusOK)
	}

	_, err := env.do(t, handler, []echo.MiddlewareFunc{env.Auth.Authenticate}, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, gotID)
}

func TestAuthenticate_MissingHeaderSkipsBackends(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)

	_, err := env.do(t, okHandler, []echo.MiddlewareFunc{env.Auth.Authenticate}, "")
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, 0, env.Store.calls)
}

func TestAuthenticate_BearerPrefixIsCaseSensitive(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)
	_, token := env.seedUser(t, models.TierFree, true)

	_, err := env.do(t, okHandler, []echo.MiddlewareFunc{env.Auth.Authenticate}, "bearer "+token)
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAuthenticate_DeactivatedAccount(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)
	_, token := env.seedUser(t, models.TierFree, false)

	_, err := env.do(t, okHandler, []echo.MiddlewareFunc{env.Auth.Authenticate}, "Bearer "+token)
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, "Account is deactivated", httpErr.Message)
}

func TestAuthenticateOptional_ProceedsAnonymously(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)

	var sawPrincipal bool
	handler := func(c echo.Context) error {
		sawPrincipal = PrincipalFrom(c) != nil
		return c.NoContent(http.StatusOK)
	}

	for _, header := range []string{"", "Bearer invalid-token"} {
		_, err := env.do(t, handler, []echo.MiddlewareFunc{env.Auth.AuthenticateOptional}, header)
		require.NoError(t, err)
		assert.False(t, sawPrincipal)
	}
}

func TestAuthenticateOptional_AttachesWhenValid(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)
	u, token := env.seedUser(t, models.TierPro, true)

	var gotID string
	handler := func(c echo.Context) error {
		if p := PrincipalFrom(c); p != nil {
			gotID = p.ID()
		}
		return c.NoContent(http.StatusOK)
	}

	_, err := env.do(t, handler, []echo.MiddlewareFunc{env.Auth.AuthenticateOptional}, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, gotID)
}

func TestRequireTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier     models.Tier
		min      models.Tier
		wantCode int
	}{
		{models.TierFree, models.TierPro, http.StatusForbidden},
		{models.TierPro, models.TierPro, http.StatusOK},
		{models.TierEnterprise, models.TierPro, http.StatusOK},
		{models.TierFree, models.TierFree, http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.tier)+"_needs_"+string(tt.min), func(t *testing.T) {
			t.Parallel()

			env := newMWEnv(t)
			_, token := env.seedUser(t, tt.tier, true)

			rec, err := env.do(t, okHandler,
				[]echo.MiddlewareFunc{env.Auth.Authenticate, RequireTier(tt.min)},
				"Bearer "+token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireTier_ForbiddenBodyCarriesBothTiers(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)
	_, token := env.seedUser(t, models.TierFree, true)

	rec, err := env.do(t, okHandler,
		[]echo.MiddlewareFunc{env.Auth.Authenticate, RequireTier(models.TierEnterprise)},
		"Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "free", body["currentSubscription"])
	assert.Equal(t, "enterprise", body["requiredSubscription"])
	assert.Equal(t, false, body["success"])
}

func TestRequireTier_NoPrincipal(t *testing.T) {
	t.Parallel()

	env := newMWEnv(t)

	_, err := env.do(t, okHandler, []echo.MiddlewareFunc{RequireTier(models.TierFree)}, "")
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}
