package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/diskwatch-io/diskwatch/internal/agent/config"
	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
)

// TokenResponse is the token endpoint's answer to a client credentials
// grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// storedToken is the on-disk cache shape, with the relative expiry
// resolved to an absolute unix timestamp.
type storedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	Scope       string `json:"scope,omitempty"`
}

// TokenError is a non-2xx answer from the token endpoint.
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token request failed with status %d: %s", e.StatusCode, e.Body)
}

// Manager mints access tokens via the client credentials flow and
// caches them on disk so agent restarts reuse unexpired tokens.
type Manager struct {
	httpClient    *http.Client
	clientID      string
	clientSecret  string
	tokenEndpoint string
	scope         string
	cachePath     string
}

// NewManager builds a token manager from the agent config. The config
// must carry an oauth block.
func NewManager(cfg *config.Config) (*Manager, error) {
	oc := cfg.API.OAuth
	if oc == nil {
		return nil, fmt.Errorf("oauth is not configured")
	}

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine cache directory: %w", err)
	}

	return &Manager{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		clientID:      oc.ClientID,
		clientSecret:  oc.ClientSecret,
		tokenEndpoint: oc.TokenEndpoint,
		scope:         oc.Scope,
		cachePath:     filepath.Join(cacheDir, "diskwatch", "agent", "oauth_token.json"),
	}, nil
}

// AccessToken returns a valid token, reusing the cached one while it
// has not expired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if token, err := m.loadCachedToken(); err == nil && !expired(token) {
		return token.AccessToken, nil
	}

	token, err := m.requestToken(ctx)
	if err != nil {
		return "", err
	}

	if err := m.cacheToken(token); err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

func (m *Manager) requestToken(ctx context.Context) (*TokenResponse, error) {
	// 1. Build the client credentials form
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)
	if m.scope != "" {
		form.Set("scope", m.scope)
	}

	appLogger.Debug("Requesting access token from %s", m.tokenEndpoint)

	// 2. POST it to the token endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "DiskwatchAgent/1.0")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting token from %s: %w", m.tokenEndpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		respBody = []byte("Unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TokenError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// 3. Decode the token
	var token TokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, fmt.Errorf("error parsing token response: %w", err)
	}

	return &token, nil
}

func (m *Manager) loadCachedToken() (*storedToken, error) {
	content, err := os.ReadFile(m.cachePath)
	if err != nil {
		return nil, fmt.Errorf("no cached token: %w", err)
	}

	var token storedToken
	if err := json.Unmarshal(content, &token); err != nil {
		return nil, fmt.Errorf("error parsing cached token: %w", err)
	}

	return &token, nil
}

func (m *Manager) cacheToken(token *TokenResponse) error {
	if err := os.MkdirAll(filepath.Dir(m.cachePath), 0o755); err != nil {
		return fmt.Errorf("error creating token cache directory: %w", err)
	}

	// expire one minute early so a token is never used at the wire just
	// as it runs out
	stored := storedToken{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   time.Now().Unix() + token.ExpiresIn - 60,
		Scope:       token.Scope,
	}

	content, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing token: %w", err)
	}

	// token cache is owner-only
	if err := os.WriteFile(m.cachePath, content, 0o600); err != nil {
		return fmt.Errorf("error writing token cache: %w", err)
	}

	return nil
}

// ClearCache drops the cached token so the next request mints a fresh
// one.
func (m *Manager) ClearCache() error {
	if err := os.Remove(m.cachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error removing token cache: %w", err)
	}
	return nil
}

func expired(token *storedToken) bool {
	return time.Now().Unix() >= token.ExpiresAt
}
