package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediamigrate/internal/adapters/transfer"
	"mediamigrate/internal/core/domain"
	"mediamigrate/internal/core/ports"
	"mediamigrate/internal/utils/errs"
	"mediamigrate/internal/utils/logger"
)

// Scheduler drives a bounded-concurrency migration run: it computes the
// pending set from the checkpoint, processes it in fixed-size batches, and
// checkpoints each batch before starting the next. A batch is the unit of
// durable progress; a crash loses at most one batch.
type Scheduler struct {
	resolver    ports.Resolver
	transferer  ports.Transferer
	checkpoints ports.CheckpointStore
	errorSink   ports.ErrorSink

	keyPrefix   string
	keyExt      string
	batchSize   int
	retryBudget int
}

// Options tunes a Scheduler. Zero values fall back to defaults.
type Options struct {
	KeyPrefix   string
	KeyExt      string // default ".mp4"
	BatchSize   int    // default 5
	RetryBudget int    // re-resolutions per item on URL expiry, default 2
}

// NewScheduler wires a Scheduler from its collaborators.
func NewScheduler(
	resolver ports.Resolver,
	transferer ports.Transferer,
	checkpoints ports.CheckpointStore,
	errorSink ports.ErrorSink,
	opts Options,
) *Scheduler {
	if opts.KeyExt == "" {
		opts.KeyExt = ".mp4"
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 5
	}
	if opts.RetryBudget < 0 {
		opts.RetryBudget = 2
	}
	return &Scheduler{
		resolver:    resolver,
		transferer:  transferer,
		checkpoints: checkpoints,
		errorSink:   errorSink,
		keyPrefix:   opts.KeyPrefix,
		keyExt:      opts.KeyExt,
		batchSize:   opts.BatchSize,
		retryBudget: opts.RetryBudget,
	}
}

type itemResult struct {
	id    string
	bytes int64
	err   error
}

// Run processes ids, skipping anything already checkpointed. Per-item
// failures are collected, never fatal; the returned error is non-nil only
// for run-level faults (unreadable checkpoint, failed checkpoint write,
// cancellation).
func (s *Scheduler) Run(ctx context.Context, ids []string) (domain.RunSummary, error) {
	start := time.Now()
	summary := domain.RunSummary{RunID: uuid.New().String(), Total: len(ids)}

	completed, err := s.checkpoints.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load checkpoint: %w", err)
	}

	pending := pendingIDs(ids, completed)
	summary.Skipped = len(ids) - len(pending)

	logger.Info("run starting",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("already_completed", summary.Skipped),
		zap.Int("pending", len(pending)),
		zap.Int("batch_size", s.batchSize),
	)

	var errRecords []domain.ErrorRecord

	for offset := 0; offset < len(pending); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[offset:end]

		results := s.runBatch(ctx, batch)

		// Fold settled outcomes before surfacing any cancellation, so the
		// batch's successes still reach the checkpoint.
		for _, res := range results {
			switch {
			case res.err == nil:
				completed[res.id] = struct{}{}
				summary.Succeeded++
				summary.Bytes += res.bytes
			case errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded):
				// Interrupted, not failed; the item stays pending.
			default:
				summary.Failed++
				errRecords = append(errRecords, domain.ErrorRecord{ID: res.id, Message: res.err.Error()})
				logger.Warn("item failed",
					zap.String("run_id", summary.RunID),
					zap.String("item_id", res.id),
					zap.Error(res.err),
				)
			}
		}

		if err := s.checkpoints.Save(ctx, completed); err != nil {
			return s.finish(ctx, summary, errRecords, start), fmt.Errorf("save checkpoint: %w", err)
		}
		logger.Info("batch checkpointed",
			zap.String("run_id", summary.RunID),
			zap.Int("batch_start", offset),
			zap.Int("batch_len", len(batch)),
			zap.Int("completed_total", len(completed)),
		)

		if ctx.Err() != nil {
			return s.finish(ctx, summary, errRecords, start), fmt.Errorf("run interrupted: %w", ctx.Err())
		}
	}

	return s.finish(ctx, summary, errRecords, start), nil
}

// runBatch executes one batch concurrently and waits for every item to
// settle. Per-item errors are carried in the results, not through the
// group, so one failure never cancels its siblings.
func (s *Scheduler) runBatch(ctx context.Context, batch []string) []itemResult {
	results := make([]itemResult, len(batch))

	var g errgroup.Group
	for i, id := range batch {
		g.Go(func() error {
			bytes, err := s.processItem(ctx, id)
			results[i] = itemResult{id: id, bytes: bytes, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// processItem is the per-item workflow: resolve, transfer, and on an
// expired URL re-resolve up to the retry budget. A stale URL is never
// retried as-is.
func (s *Scheduler) processItem(ctx context.Context, id string) (int64, error) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		item, err := s.resolver.Resolve(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrNoEligibleSource) {
				return 0, fmt.Errorf("no eligible source: %w", err)
			}
			return 0, fmt.Errorf("resolve: %w", err)
		}

		logger.Debug("resolved item",
			zap.String("item_id", id),
			zap.String("descriptor", item.Descriptor),
			zap.Int("attempt", attempt),
		)

		bytes, err := s.transferer.Transfer(ctx, item.ResolvedURL, s.key(id))
		if err == nil {
			return bytes, nil
		}
		if transfer.NeedsFreshURL(err) && attempt < s.retryBudget {
			logger.Warn("source url expired, re-resolving",
				zap.String("item_id", id),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return 0, fmt.Errorf("transfer: %w", err)
	}
}

func (s *Scheduler) key(id string) string {
	return s.keyPrefix + id + s.keyExt
}

func (s *Scheduler) finish(ctx context.Context, summary domain.RunSummary, errRecords []domain.ErrorRecord, start time.Time) domain.RunSummary {
	if len(errRecords) > 0 {
		if err := s.errorSink.Flush(ctx, errRecords); err != nil {
			logger.Error("failed to persist error report", zap.Error(err))
		}
	}

	summary.Elapsed = time.Since(start)
	if summary.Elapsed >= time.Second {
		rate := float64(summary.Succeeded) / summary.Elapsed.Minutes()
		summary.ItemsPerMinute = &rate
	}

	logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("bytes", summary.Bytes),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary
}

// pendingIDs keeps input order and drops duplicates, so an ID repeated in
// the input cannot be processed twice within one batch.
func pendingIDs(ids []string, completed map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(ids))
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, done := completed[id]; done {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		pending = append(pending, id)
	}
	return pending
}
