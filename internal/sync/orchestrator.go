// Package sync ties the offline pipeline together: when connectivity
// returns, it deduplicates the queued mutations, drops the redundant
// ones, and resumes whatever previously failed while offline.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/herdsync/herdsync/internal/mutation"
	"github.com/herdsync/herdsync/internal/queue"
	"github.com/herdsync/herdsync/internal/reason"
)

//go:generate mockgen -source=orchestrator.go -destination=mock_queue.go -package=sync

// Queue is the mutation queue collaborator. The orchestrator is its
// only writer: it removes redundant entries and resumes paused ones,
// always in that order, computed from one snapshot of the queue.
type Queue interface {
	List(ctx context.Context) ([]queue.Operation, error)
	Remove(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
}

// Orchestrator runs deduplicated sync passes over the queue. A second
// trigger while a pass is running is refused, not queued.
type Orchestrator struct {
	queue  Queue
	logger *slog.Logger

	deduplicating atomic.Bool
	last          atomic.Pointer[mutation.Result]
}

// New builds an orchestrator over the given queue collaborator.
func New(q Queue, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		queue:  q,
		logger: logger.With(slog.String("component", "sync")),
	}
}

// IsDeduplicating reports whether a sync pass is currently running.
func (o *Orchestrator) IsDeduplicating() bool {
	return o.deduplicating.Load()
}

// LastResult returns the outcome of the most recent completed pass, or
// nil if none has run yet.
func (o *Orchestrator) LastResult() *mutation.Result {
	return o.last.Load()
}

// SyncWithDeduplication runs one sync pass: snapshot the queue, extract
// descriptors from the pending and paused operations, deduplicate,
// remove every redundant entry, then resume the paused operations that
// survived. Operations whose metadata cannot be extracted are left in
// the queue untouched; extraction failure must never lose data.
func (o *Orchestrator) SyncWithDeduplication(ctx context.Context) (mutation.Result, error) {
	if !o.deduplicating.CompareAndSwap(false, true) {
		return mutation.Result{}, reason.SyncInProgress
	}
	defer o.deduplicating.Store(false)

	ops, err := o.queue.List(ctx)
	if err != nil {
		return mutation.Result{}, fmt.Errorf("listing mutation queue: %w", err)
	}

	eligible := make([]queue.Operation, 0, len(ops))
	raws := make([]mutation.Raw, 0, len(ops))

	for _, op := range ops {
		if op.Status != queue.StatusPending && op.Status != queue.StatusPaused {
			continue
		}

		eligible = append(eligible, op)
		raws = append(raws, op.Raw)
	}

	res := mutation.Deduplicate(mutation.ExtractAll(raws))

	// Removal set first: a mutation judged redundant is never resumed,
	// even if deleting its queue entry fails transiently.
	redundant := make(map[string]bool, len(res.Remove))

	for _, id := range res.Remove {
		redundant[id] = true

		if err := o.queue.Remove(ctx, id); err != nil {
			o.logger.Error("removing redundant mutation",
				slog.String("id", id), slog.Any("error", err))
		}
	}

	resumed := 0

	for _, op := range eligible {
		if op.Status != queue.StatusPaused || redundant[op.Raw.ID] {
			continue
		}

		if err := o.queue.Resume(ctx, op.Raw.ID); err != nil {
			o.logger.Error("resuming paused mutation",
				slog.String("id", op.Raw.ID), slog.Any("error", err))

			continue
		}

		resumed++
	}

	for _, action := range res.Actions {
		o.logger.Info("deduplicated", slog.String("action", action))
	}

	o.logger.Debug("sync pass complete",
		slog.Int("queued", len(ops)),
		slog.Int("kept", len(res.Keep)),
		slog.Int("removed", len(res.Remove)),
		slog.Int("resumed", resumed),
	)

	o.last.Store(&res)

	return res, nil
}

// Run triggers a sync pass on the given interval until ctx is
// cancelled. An in-progress pass makes the tick a no-op.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := o.SyncWithDeduplication(ctx); err != nil && !reason.Is(err, reason.SyncInProgress.Reason) {
				o.logger.Error("sync pass failed", slog.Any("error", err))
			}
		}
	}
}
