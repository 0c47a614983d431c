package ichiba

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// tokenManager handles JWT token acquisition and refresh.
// It is safe for concurrent use.
type tokenManager struct {
	baseURL string
	apiKey  string
	client  *http.Client
	margin  time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		margin:  30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		return tm.token, nil
	}

	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (tm *tokenManager) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/v1/auth/token", nil)
	if err != nil {
		return fmt.Errorf("ichiba: create auth request: %w", err)
	}
	req.Header.Set("X-API-Key", tm.apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("ichiba: auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ichiba: read auth response: %w", err)
	}

	// Bad credentials come back as the API's standard error envelope, so
	// IsUnauthorized works on the returned error.
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	var payload authResponse
	if err := decodeEnvelope(bodyBytes, &payload); err != nil {
		return fmt.Errorf("ichiba: decode auth response: %w", err)
	}

	tm.token = payload.Token
	tm.expiresAt = payload.ExpiresAt
	return nil
}
