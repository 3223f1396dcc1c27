package ports

import (
	"context"
	"io"

	"mediamigrate/internal/core/domain"
)

// TokenSource hands out the current bearer credential. Invalidate drops the
// cached value so the next Token call fetches a fresh one; concurrent
// callers of Token share a single in-flight fetch.
type TokenSource interface {
	Token(ctx context.Context) (domain.Token, error)
	Invalidate()
}

// Resolver turns an item ID into a transfer URL plus descriptive metadata.
// Returns errs.ErrNoEligibleSource when the item has no usable rendition.
type Resolver interface {
	Resolve(ctx context.Context, id string) (domain.Item, error)
}

// Transferer streams the payload at sourceURL into the destination store
// under key and reports the number of bytes written.
type Transferer interface {
	Transfer(ctx context.Context, sourceURL, key string) (int64, error)
}

// ObjectStore persists one object from a stream. Implementations must not
// buffer the whole payload in memory.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error)
}

// CheckpointStore persists the set of completed item IDs. Load returns an
// empty set when no checkpoint exists yet. Save always receives the
// complete set, never a delta.
type CheckpointStore interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Save(ctx context.Context, completed map[string]struct{}) error
}

// ErrorSink persists per-item failure records at the end of a run.
type ErrorSink interface {
	Flush(ctx context.Context, records []domain.ErrorRecord) error
}
