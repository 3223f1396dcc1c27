package sourceapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediamigrate/internal/adapters/authapi"
	"mediamigrate/internal/core/domain"
	"mediamigrate/internal/core/ports"
	"mediamigrate/internal/utils/errs"
	"mediamigrate/internal/utils/logger"
	"mediamigrate/internal/utils/retry"
)

const canonicalContainer = "MP4"

// Resolver implements ports.Resolver against the source metadata API.
type Resolver struct {
	baseURL     string
	tokens      ports.TokenSource
	client      authapi.HTTPDoer
	maxAttempts int
	backoffStep time.Duration
}

// Option tweaks a Resolver.
type Option func(*Resolver)

// WithMaxAttempts overrides the connection-failure attempt budget.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) { r.maxAttempts = n }
}

// WithBackoffStep overrides the linear backoff step (default 2s).
func WithBackoffStep(d time.Duration) Option {
	return func(r *Resolver) { r.backoffStep = d }
}

// NewResolver creates a Resolver. Defaults: 3 attempts, 2s backoff step.
func NewResolver(baseURL string, tokens ports.TokenSource, client authapi.HTTPDoer, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		client:      client,
		maxAttempts: 3,
		backoffStep: 2 * time.Second,
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: 60 * time.Second}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the item's renditions and applies the selection policy.
// Connection-level failures are retried with linear backoff; exhausting the
// budget surfaces errs.ErrTransient. An item with no usable rendition
// returns errs.ErrNoEligibleSource, which is terminal, not retried.
func (r *Resolver) Resolve(ctx context.Context, id string) (domain.Item, error) {
	var item domain.Item

	policy := retry.Policy{
		MaxAttempts: r.maxAttempts,
		Backoff:     &retry.Linear{Step: r.backoffStep},
		Retryable: func(err error) bool {
			return errors.Is(err, errs.ErrTransient)
		},
	}

	err := retry.Do(ctx, policy, func() error {
		resolved, err := r.fetch(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrTransient) {
				logger.Warn("resolve attempt failed, will retry",
					zap.String("item_id", id),
					zap.Error(err),
				)
			}
			return err
		}
		item = resolved
		return nil
	})
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

func (r *Resolver) fetch(ctx context.Context, id string) (domain.Item, error) {
	var renditions []domain.Rendition

	err := authapi.WithFreshToken(ctx, r.tokens, func(token string) error {
		url := fmt.Sprintf("%s/videos/%s/sources", r.baseURL, id)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build sources request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrTransient, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: sources request returned 401", errs.ErrUnauthorized)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: video %s not found", errs.ErrNoEligibleSource, id)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("sources request for %s returned %d: %s", id, resp.StatusCode, string(snippet))
		}

		if err := json.NewDecoder(resp.Body).Decode(&renditions); err != nil {
			return fmt.Errorf("decode sources response for %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return domain.Item{}, err
	}

	best, ok := selectRendition(renditions)
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: video %s has %d renditions, none eligible", errs.ErrNoEligibleSource, id, len(renditions))
	}

	return domain.Item{
		ID:          id,
		ResolvedURL: best.Src,
		Descriptor:  fmt.Sprintf("%s %dx%d", best.Container, best.Width, best.Height),
	}, nil
}

// selectRendition filters to https MP4 entries and picks the tallest one.
// Ties keep the earliest entry, preserving the API's ordering.
func selectRendition(renditions []domain.Rendition) (domain.Rendition, bool) {
	var (
		best  domain.Rendition
		found bool
	)
	for _, r := range renditions {
		if !strings.EqualFold(r.Container, canonicalContainer) {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(r.Src), "https://") {
			continue
		}
		if !found || r.Height > best.Height {
			best = r
			found = true
		}
	}
	return best, found
}
