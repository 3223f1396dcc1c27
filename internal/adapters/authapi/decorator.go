package authapi

import (
	"context"
	"errors"

	"mediamigrate/internal/core/ports"
	"mediamigrate/internal/utils/errs"
	"mediamigrate/internal/utils/logger"
)

// WithFreshToken runs call with the current bearer token. On the first
// authorization failure it invalidates the token, fetches a fresh one and
// retries call exactly once. Every authenticated call site shares this
// path instead of rolling its own refresh logic.
func WithFreshToken(ctx context.Context, tokens ports.TokenSource, call func(token string) error) error {
	tok, err := tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = call(tok.Value)
	if err == nil || !errors.Is(err, errs.ErrUnauthorized) {
		return err
	}

	logger.Debug("authorization failed, refreshing credential")
	tokens.Invalidate()
	tok, terr := tokens.Token(ctx)
	if terr != nil {
		return terr
	}
	return call(tok.Value)
}
