package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mediamigrate/internal/core/domain"
	"mediamigrate/internal/utils/errs"
	"mediamigrate/internal/utils/logger"
)

// HTTPDoer describes the HTTP client used by the auth adapters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager implements ports.TokenSource against an OAuth-style
// client-credentials endpoint. Refreshes are coalesced: many workers
// observing an expired token produce exactly one credential request.
type Manager struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       HTTPDoer

	group singleflight.Group

	mu     sync.Mutex
	cached *domain.Token
}

// NewManager creates a Manager for the given credential endpoint.
func NewManager(tokenURL, clientID, clientSecret string, client HTTPDoer) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
	}
}

// Token returns the cached credential, fetching one if none is held.
func (m *Manager) Token(ctx context.Context) (domain.Token, error) {
	m.mu.Lock()
	if m.cached != nil {
		tok := *m.cached
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("token", func() (any, error) {
		tok, err := m.fetch(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cached = &tok
		m.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return domain.Token{}, err
	}
	return v.(domain.Token), nil
}

// Invalidate drops the cached credential so the next Token call fetches a
// fresh one.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

func (m *Manager) fetch(ctx context.Context) (domain.Token, error) {
	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, body)
	if err != nil {
		return domain.Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(m.clientID, m.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return domain.Token{}, fmt.Errorf("%w: %v", errs.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Token{}, fmt.Errorf("%w: status %d, body: %s", errs.ErrAuth, resp.StatusCode, string(snippet))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Token{}, fmt.Errorf("%w: decode response: %v", errs.ErrAuth, err)
	}
	if payload.AccessToken == "" {
		return domain.Token{}, fmt.Errorf("%w: empty access_token in response", errs.ErrAuth)
	}

	logger.Debug("fetched fresh credential",
		zap.Int("expires_in", payload.ExpiresIn),
	)

	return domain.Token{Value: payload.AccessToken, ExpiresIn: payload.ExpiresIn}, nil
}
