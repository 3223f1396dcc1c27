package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediamigrate/internal/adapters/authapi"
	"mediamigrate/internal/core/ports"
	"mediamigrate/internal/utils/errs"
	"mediamigrate/internal/utils/logger"
)

// Error classifies a failed transfer. NeedsFreshURL means the source URL
// itself is no longer valid and retrying it is pointless; the caller must
// re-resolve the item instead.
type Error struct {
	Status        int
	Msg           string
	NeedsFreshURL bool
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transfer failed with status %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("transfer failed: %s", e.Msg)
}

func (e *Error) Unwrap() error {
	if e.NeedsFreshURL {
		return errs.ErrURLExpired
	}
	return nil
}

// NeedsFreshURL reports whether err indicates an expired or unauthorized
// source URL.
func NeedsFreshURL(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.NeedsFreshURL
	}
	return errors.Is(err, errs.ErrURLExpired)
}

// Transferer implements ports.Transferer: a streaming GET against the
// pre-authorized source URL piped into the destination store. No auth
// header is sent; the URL carries its own time-limited authorization.
type Transferer struct {
	client      authapi.HTTPDoer
	store       ports.ObjectStore
	contentType string
}

// NewTransferer creates a Transferer writing objects with the given content
// type (e.g. "video/mp4").
func NewTransferer(store ports.ObjectStore, contentType string, client authapi.HTTPDoer) *Transferer {
	if client == nil {
		// Payloads can be large.
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Transferer{
		client:      client,
		store:       store,
		contentType: contentType,
	}
}

// Transfer streams sourceURL into the store under key and returns the byte
// count. On failure no object is committed under key.
func (t *Transferer) Transfer(ctx context.Context, sourceURL, key string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build source request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch source: %v", errs.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(snippet))
		return 0, &Error{
			Status:        resp.StatusCode,
			Msg:           msg,
			NeedsFreshURL: resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || expiredMessage(msg),
		}
	}

	n, err := t.store.Put(ctx, key, t.contentType, resp.Body)
	if err != nil {
		if expiredMessage(err.Error()) {
			return 0, &Error{Msg: err.Error(), NeedsFreshURL: true}
		}
		return 0, fmt.Errorf("%w: store write for %s: %v", errs.ErrTransient, key, err)
	}

	logger.Debug("object written",
		zap.String("key", key),
		zap.Int64("bytes", n),
	)
	return n, nil
}

func expiredMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "expired") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "access denied")
}
