// Package extidp wraps the external identity provider: bearer-token
// verification plus the provider-side profile table used when the
// durable credential store is unreachable.
package extidp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrVerificationFailed covers every way the provider can decline or
// misbehave: bad token, non-200, malformed body, network fault. Callers
// treat them all as "the verifier had no answer".
var ErrVerificationFailed = errors.New("external identity verification failed")

// Identity is the claim set the provider returns for a valid token.
type Identity struct {
	ExternalID    string
	Email         string
	Name          string
	AvatarURL     string
	EmailVerified bool
}

// Profile is a row of the provider-side profiles table.
type Profile struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	Name            string         `json:"name"`
	Avatar          string         `json:"avatar,omitempty"`
	Subscription    string         `json:"subscription,omitempty"`
	Profile         map[string]any `json:"profile,omitempty"`
	IsEmailVerified bool           `json:"is_email_verified"`
	LastLogin       time.Time      `json:"last_login"`
}

type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// VerifyBearerToken asks the provider who the token belongs to.
func (c *Client) VerifyBearerToken(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrVerificationFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrVerificationFailed, resp.StatusCode)
	}

	var body struct {
		ID               string `json:"id"`
		Email            string `json:"email"`
		EmailConfirmedAt string `json:"email_confirmed_at"`
		UserMetadata     struct {
			Name   string `json:"name"`
			Avatar string `json:"avatar"`
		} `json:"user_metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrVerificationFailed, err)
	}
	if body.ID == "" || body.Email == "" {
		return nil, fmt.Errorf("%w: incomplete identity", ErrVerificationFailed)
	}

	name := body.UserMetadata.Name
	if name == "" {
		name = strings.SplitN(body.Email, "@", 2)[0]
	}

	return &Identity{
		ExternalID:    body.ID,
		Email:         strings.ToLower(body.Email),
		Name:          name,
		AvatarURL:     body.UserMetadata.Avatar,
		EmailVerified: body.EmailConfirmedAt != "",
	}, nil
}

// UpsertProfile writes a profile row into the provider-side table.
func (c *Client) UpsertProfile(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/profiles", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setServiceHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("profile upsert failed with status: %d", resp.StatusCode)
	}
	return nil
}

// FetchProfile reads a profile row by external id. Returns nil without
// error when the row does not exist.
func (c *Client) FetchProfile(ctx context.Context, id string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/profiles?id=eq."+id, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setServiceHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status: %d", resp.StatusCode)
	}

	var rows []Profile
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) setServiceHeaders(req *http.Request) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
}
