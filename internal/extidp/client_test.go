package extidp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyBearerToken_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))
		require.Equal(t, "service-key", r.Header.Get("apikey"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":                 "ext-1",
			"email":              "Ada@Example.com",
			"email_confirmed_at": "2026-01-02T03:04:05Z",
			"user_metadata":      map[string]any{"name": "Ada", "avatar": "https://img/a.png"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "service-key")
	ident, err := c.VerifyBearerToken(context.Background(), "the-token")
	require.NoError(t, err)

	assert.Equal(t, "ext-1", ident.ExternalID)
	assert.Equal(t, "ada@example.com", ident.Email)
	assert.Equal(t, "Ada", ident.Name)
	assert.Equal(t, "https://img/a.png", ident.AvatarURL)
	assert.True(t, ident.EmailVerified)
}

func TestVerifyBearerToken_NameFallsBackToEmailLocalPart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "ext-2",
			"email": "grace@example.com",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	ident, err := c.VerifyBearerToken(context.Background(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "grace", ident.Name)
	assert.False(t, ident.EmailVerified)
}

func TestVerifyBearerToken_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not-json"))
		}},
		{"incomplete identity", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"id": "ext-3"})
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, "k")
			_, err := c.VerifyBearerToken(context.Background(), "tok")
			assert.ErrorIs(t, err, ErrVerificationFailed)
		})
	}
}

func TestVerifyBearerToken_ServerUnreachable(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", "k")
	_, err := c.VerifyBearerToken(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestProfileRoundTrip(t *testing.T) {
	t.Parallel()

	var stored *Profile
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/profiles":
			require.Equal(t, "resolution=merge-duplicates", r.Header.Get("Prefer"))
			var p Profile
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			stored = &p
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/profiles":
			rows := []Profile{}
			if stored != nil && r.URL.Query().Get("id") == "eq."+stored.ID {
				rows = append(rows, *stored)
			}
			json.NewEncoder(w).Encode(rows)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	ctx := context.Background()

	p := &Profile{ID: "ext-1", Email: "ada@example.com", Name: "Ada", LastLogin: time.Now()}
	require.NoError(t, c.UpsertProfile(ctx, p))

	got, err := c.FetchProfile(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.Name)

	missing, err := c.FetchProfile(ctx, "ext-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
