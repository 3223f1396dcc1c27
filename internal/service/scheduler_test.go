package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediamigrate/internal/adapters/transfer"
	"mediamigrate/internal/core/domain"
	"mediamigrate/internal/utils/errs"
	"mediamigrate/internal/utils/logger"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	m.Run()
}

type fakeResolver struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(id string) (domain.Item, error)
}

func newFakeResolver(fn func(id string) (domain.Item, error)) *fakeResolver {
	if fn == nil {
		fn = func(id string) (domain.Item, error) {
			return domain.Item{ID: id, ResolvedURL: "https://cdn.example.com/" + id + ".mp4"}, nil
		}
	}
	return &fakeResolver{calls: map[string]int{}, fn: fn}
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (domain.Item, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()
	return f.fn(id)
}

func (f *fakeResolver) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fakeTransferer struct {
	fn func(ctx context.Context, url, key string) (int64, error)
}

func (f *fakeTransferer) Transfer(ctx context.Context, url, key string) (int64, error) {
	if f.fn == nil {
		return 100, nil
	}
	return f.fn(ctx, url, key)
}

type memCheckpoint struct {
	mu        sync.Mutex
	completed map[string]struct{}
	saves     [][]string
	saveErrAt int // 1-based save index that fails; 0 never fails
	loadErr   error
}

func newMemCheckpoint(ids ...string) *memCheckpoint {
	completed := map[string]struct{}{}
	for _, id := range ids {
		completed[id] = struct{}{}
	}
	return &memCheckpoint{completed: completed}
}

func (c *memCheckpoint) Load(ctx context.Context) (map[string]struct{}, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct{}, len(c.completed))
	for id := range c.completed {
		out[id] = struct{}{}
	}
	return out, nil
}

func (c *memCheckpoint) Save(ctx context.Context, completed map[string]struct{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErrAt > 0 && len(c.saves)+1 == c.saveErrAt {
		return errors.New("disk full")
	}
	snapshot := make([]string, 0, len(completed))
	for id := range completed {
		snapshot = append(snapshot, id)
	}
	c.saves = append(c.saves, snapshot)
	c.completed = make(map[string]struct{}, len(completed))
	for id := range completed {
		c.completed[id] = struct{}{}
	}
	return nil
}

type memSink struct {
	mu      sync.Mutex
	flushes int
	records []domain.ErrorRecord
}

func (s *memSink) Flush(ctx context.Context, records []domain.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	s.records = append([]domain.ErrorRecord{}, records...)
	return nil
}

func TestScheduler_IdempotentResume(t *testing.T) {
	resolver := newFakeResolver(nil)
	checkpoints := newMemCheckpoint("A", "B")
	sink := &memSink{}

	s := NewScheduler(resolver, &fakeTransferer{}, checkpoints, sink, Options{})

	summary, err := s.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, resolver.callCount("A"))
	assert.Zero(t, resolver.callCount("B"))
	assert.Equal(t, 1, resolver.callCount("C"))

	// Immediately re-running processes nothing.
	summary, err = s.Run(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, 1, resolver.callCount("C"))
}

func TestScheduler_BoundedConcurrency(t *testing.T) {
	var active, peak atomic.Int64

	tr := &fakeTransferer{fn: func(ctx context.Context, url, key string) (int64, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return 1, nil
	}}

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("vid-%02d", i)
	}

	s := NewScheduler(newFakeResolver(nil), tr, newMemCheckpoint(), &memSink{}, Options{BatchSize: 5})

	summary, err := s.Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int64(5))
	assert.Greater(t, peak.Load(), int64(1), "batch items must actually run concurrently")
}

func TestScheduler_ExpiredURLRetryCeiling(t *testing.T) {
	resolver := newFakeResolver(nil)
	tr := &fakeTransferer{fn: func(ctx context.Context, url, key string) (int64, error) {
		return 0, &transfer.Error{Status: 403, Msg: "URL has expired", NeedsFreshURL: true}
	}}
	sink := &memSink{}

	s := NewScheduler(resolver, tr, newMemCheckpoint(), sink, Options{RetryBudget: 2})

	summary, err := s.Run(context.Background(), []string{"vid-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	// Initial resolve plus exactly two re-resolutions.
	assert.Equal(t, 3, resolver.callCount("vid-1"))
	require.Len(t, sink.records, 1)
	assert.Equal(t, "vid-1", sink.records[0].ID)
	assert.Contains(t, sink.records[0].Message, "expired")
}

func TestScheduler_NoEligibleSourceIsTerminal(t *testing.T) {
	resolver := newFakeResolver(func(id string) (domain.Item, error) {
		return domain.Item{}, fmt.Errorf("%w: video %s", errs.ErrNoEligibleSource, id)
	})
	sink := &memSink{}

	s := NewScheduler(resolver, &fakeTransferer{}, newMemCheckpoint(), sink, Options{})

	summary, err := s.Run(context.Background(), []string{"vid-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, resolver.callCount("vid-1"), "NotFound is never retried")
	require.Len(t, sink.records, 1)
	assert.Contains(t, sink.records[0].Message, "no eligible source")
}

func TestScheduler_CheckpointPerBatch(t *testing.T) {
	checkpoints := newMemCheckpoint()

	s := NewScheduler(newFakeResolver(nil), &fakeTransferer{}, checkpoints, &memSink{}, Options{BatchSize: 3})

	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	_, err := s.Run(context.Background(), ids)
	require.NoError(t, err)

	require.Len(t, checkpoints.saves, 3)
	assert.Len(t, checkpoints.saves[0], 3)
	assert.Len(t, checkpoints.saves[1], 6)
	assert.Len(t, checkpoints.saves[2], 7)
}

func TestScheduler_CheckpointWriteFailureAborts(t *testing.T) {
	checkpoints := newMemCheckpoint()
	checkpoints.saveErrAt = 2

	s := NewScheduler(newFakeResolver(nil), &fakeTransferer{}, checkpoints, &memSink{}, Options{BatchSize: 2})

	_, err := s.Run(context.Background(), []string{"a", "b", "c", "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save checkpoint")

	// First batch's progress is durable.
	require.Len(t, checkpoints.saves, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, checkpoints.saves[0])
}

func TestScheduler_FailuresDoNotAbortBatch(t *testing.T) {
	tr := &fakeTransferer{fn: func(ctx context.Context, url, key string) (int64, error) {
		if key == "bad.mp4" {
			return 0, errors.New("stream reset")
		}
		return 50, nil
	}}
	checkpoints := newMemCheckpoint()
	sink := &memSink{}

	s := NewScheduler(newFakeResolver(nil), tr, checkpoints, sink, Options{BatchSize: 3})

	summary, err := s.Run(context.Background(), []string{"good1", "bad", "good2"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(100), summary.Bytes)

	loaded, err := checkpoints.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, loaded, "good1")
	assert.Contains(t, loaded, "good2")
	assert.NotContains(t, loaded, "bad", "failed item never enters the checkpoint")

	require.Len(t, sink.records, 1)
	assert.Equal(t, "bad", sink.records[0].ID)
}

func TestScheduler_CorruptCheckpointIsFatal(t *testing.T) {
	checkpoints := newMemCheckpoint()
	checkpoints.loadErr = fmt.Errorf("%w: checkpoint.json", errs.ErrCheckpointCorrupt)

	s := NewScheduler(newFakeResolver(nil), &fakeTransferer{}, checkpoints, &memSink{}, Options{})

	_, err := s.Run(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrCheckpointCorrupt)
}

func TestScheduler_DuplicateInputProcessedOnce(t *testing.T) {
	resolver := newFakeResolver(nil)

	s := NewScheduler(resolver, &fakeTransferer{}, newMemCheckpoint(), &memSink{}, Options{})

	summary, err := s.Run(context.Background(), []string{"a", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, resolver.totalCalls())
}

func TestScheduler_RateOmittedForShortRuns(t *testing.T) {
	s := NewScheduler(newFakeResolver(nil), &fakeTransferer{}, newMemCheckpoint(), &memSink{}, Options{})

	summary, err := s.Run(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Nil(t, summary.ItemsPerMinute, "rate is undefined until one second has elapsed")
}

func TestScheduler_CancelledRunKeepsSettledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var transfers atomic.Int64
	tr := &fakeTransferer{fn: func(ctx context.Context, url, key string) (int64, error) {
		transfers.Add(1)
		return 10, nil
	}}
	checkpoints := newMemCheckpoint()

	s := NewScheduler(newFakeResolver(func(id string) (domain.Item, error) {
		if id == "c" {
			// Interrupt arrives while the second batch is pending.
			cancel()
		}
		return domain.Item{ID: id, ResolvedURL: "https://cdn.example.com/" + id}, nil
	}), tr, checkpoints, &memSink{}, Options{BatchSize: 2})

	_, err := s.Run(ctx, []string{"a", "b", "c", "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The first batch settled and was checkpointed before the abort.
	require.NotEmpty(t, checkpoints.saves)
	assert.ElementsMatch(t, []string{"a", "b"}, checkpoints.saves[0])
}
