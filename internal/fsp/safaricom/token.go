package safaricom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsp-disbursement/internal/config"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	// tokens are refreshed this long before Safaricom expires them
	tokenExpiryMargin = time.Minute
)

// tokenSource caches the OAuth client-credentials token until shortly before it expires
type tokenSource struct {
	cfg        config.SafaricomConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(cfg config.SafaricomConfig, httpClient *http.Client) *tokenSource {
	return &tokenSource{cfg: cfg, httpClient: httpClient, now: time.Now}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.cfg.BaseURL, "/")+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response has no access token")
	}

	lifetime := time.Hour
	if seconds, err := strconv.Atoi(body.ExpiresIn); err == nil && seconds > 0 {
		lifetime = time.Duration(seconds) * time.Second
	}
	s.token = body.AccessToken
	s.expiresAt = s.now().Add(lifetime - tokenExpiryMargin)
	return s.token, nil
}
