package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrMissingAccessToken = errors.New("access token is required")

// SupabaseAuthClient proxies auth lifecycle calls that must reach the Supabase
// GoTrue API directly, such as revoking a session's refresh tokens on sign-out.
type SupabaseAuthClient interface {
	SignOut(ctx context.Context, accessToken string) error
}

type supabaseAuthClient struct {
	client  *http.Client
	baseURL string
	anonKey string
}

func NewSupabaseAuthClient(baseURL, anonKey string) SupabaseAuthClient {
	return &supabaseAuthClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		anonKey: anonKey,
	}
}

// SignOut revokes the refresh tokens behind the given access token. The access
// token itself stays valid until it expires, so callers should also discard it.
func (c *supabaseAuthClient) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrMissingAccessToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create sign-out request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sign-out request failed: %d %s - %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}

	return nil
}
