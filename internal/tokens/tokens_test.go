package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService([]byte("test-access-secret"), []byte("test-refresh-secret"), 24*time.Hour, 7*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestNewService_MissingSecret(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, []byte("r"), time.Hour, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewService([]byte("a"), nil, time.Hour, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestIssuePair_FreshSignup(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	pair, err := svc.IssuePair("u1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	sub, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)

	claims, err := svc.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestVerifyAccess_RejectsRefreshToken(t *testing.T) {
	t.Parallel()

	// Distinct secrets: a refresh token never verifies as access.
	svc := newTestService(t)
	pair, err := svc.IssuePair("u1")
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRefresh_RejectsAccessToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	pair, err := svc.IssuePair("u1")
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRefresh_TamperedSignatureSameErrorAsExpired(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	pair, err := svc.IssuePair("u1")
	require.NoError(t, err)

	parts := strings.Split(pair.RefreshToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]
	_, tamperErr := svc.VerifyRefresh(tampered)
	require.Error(t, tamperErr)

	expiredSvc, err := NewService([]byte("test-access-secret"), []byte("test-refresh-secret"), -time.Hour, -time.Hour)
	require.NoError(t, err)
	expired, err := expiredSvc.IssuePair("u1")
	require.NoError(t, err)
	_, expErr := svc.VerifyRefresh(expired.RefreshToken)
	require.Error(t, expErr)

	// No signature-vs-expiry distinction leaks.
	assert.Equal(t, tamperErr, expErr)
	assert.ErrorIs(t, tamperErr, ErrInvalidToken)
}

func TestVerifyAccess_Expired(t *testing.T) {
	t.Parallel()

	expiredSvc, err := NewService([]byte("test-access-secret"), []byte("test-refresh-secret"), -time.Minute, -time.Minute)
	require.NoError(t, err)
	pair, err := expiredSvc.IssuePair("u1")
	require.NoError(t, err)

	_, err = expiredSvc.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccess_Garbage(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.VerifyAccess(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}
