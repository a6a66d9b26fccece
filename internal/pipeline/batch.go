package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultRuns is the number of runs in a batch when none is configured.
const DefaultRuns = 10

// BatchOptions configures RunBatch.
type BatchOptions struct {
	Runs int
	// StartIndex is the id of the first run; ids are consecutive integers.
	StartIndex  int
	Concurrency int
	// Interval is the minimum spacing between run starts.
	Interval time.Duration
}

// BatchResult collects the outcomes of a batch in run id order.
type BatchResult struct {
	BatchID   uuid.UUID
	Outcomes  []*Outcome
	Succeeded int
	Failed    int
}

// RunBatch executes opts.Runs independent runs and waits for all of them. Runs are
// sequential unless Concurrency is above one. A failed run never stops the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, opts BatchOptions) *BatchResult {
	if opts.Runs <= 0 {
		opts.Runs = DefaultRuns
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	batchID := uuid.New()
	result := &BatchResult{
		BatchID:  batchID,
		Outcomes: make([]*Outcome, opts.Runs),
	}

	var limiter *rate.Limiter
	if opts.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}

	o.log.Info("batch started",
		zap.Stringer("batch_id", batchID),
		zap.Int("runs", opts.Runs),
		zap.Int("concurrency", opts.Concurrency),
		zap.Duration("interval", opts.Interval))

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i := range opts.Runs {
		runID := strconv.Itoa(opts.StartIndex + i)
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					o.log.Debug("run start not spaced", zap.String("run_id", runID), zap.Error(err))
				}
			}
			result.Outcomes[i] = o.run(ctx, batchID, runID)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range result.Outcomes {
		if out.Succeeded() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	o.log.Info("batch finished",
		zap.Stringer("batch_id", batchID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result
}
