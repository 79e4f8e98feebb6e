// Package dispatcher routes normalized records to the configured sinks and
// turns every attempt into a SubmissionOutcome. Failures are data, not
// panics: nothing here propagates past the package boundary except through
// the returned outcomes.
package dispatcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nestware/homesift/config"
	"github.com/nestware/homesift/models"
)

// Sink is one submission destination. Submit handles a single record;
// Flush drains any buffered state at the end of a run.
type Sink interface {
	Kind() models.SinkKind
	Submit(ctx context.Context, rec models.ListingRecord) error
	Flush(ctx context.Context) error
}

// Tagged carries a record with its discovery position so outcomes can be
// merged back into document order after concurrent submission.
type Tagged struct {
	Seq    int
	Record models.ListingRecord
}

// Dispatcher submits records to every configured sink independently, with
// bounded retries for transient failures and a shared politeness limiter.
type Dispatcher struct {
	sinks   []Sink
	cfg     config.SubmitConfig
	limiter *rate.Limiter
}

// New creates a Dispatcher over the given sinks.
func New(sinks []Sink, cfg config.SubmitConfig) *Dispatcher {
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		sinks:   sinks,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Submit sends one record to every sink. Sinks are independent: a failure
// on one never blocks or rolls back the other.
func (d *Dispatcher) Submit(ctx context.Context, seq int, rec models.ListingRecord) []models.SubmissionOutcome {
	outcomes := make([]models.SubmissionOutcome, 0, len(d.sinks))
	for _, sink := range d.sinks {
		status, attempts, err := d.submitWithRetry(ctx, sink, rec)
		outcomes = append(outcomes, models.SubmissionOutcome{
			Seq:      seq,
			Record:   rec,
			Sink:     sink.Kind(),
			Status:   status,
			Attempts: attempts,
			Err:      err,
		})
	}
	return outcomes
}

// SubmitPage submits a page's records through a bounded worker pool and
// returns the outcomes sorted back into document order. The pool is an
// optimization only: behavior is identical at Workers == 1.
func (d *Dispatcher) SubmitPage(ctx context.Context, records []Tagged) []models.SubmissionOutcome {
	if len(records) == 0 {
		return nil
	}

	workers := d.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([][]models.SubmissionOutcome, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range records {
		g.Go(func() error {
			results[i] = d.Submit(gctx, rec.Seq, rec.Record)
			return nil
		})
	}
	_ = g.Wait() // workers only report through results

	var outcomes []models.SubmissionOutcome
	for _, rs := range results {
		outcomes = append(outcomes, rs...)
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		if outcomes[i].Seq != outcomes[j].Seq {
			return outcomes[i].Seq < outcomes[j].Seq
		}
		return outcomes[i].Sink < outcomes[j].Sink
	})
	return outcomes
}

// Flush drains buffered sink state, retrying transient failures with the
// same policy as submissions. The first unrecoverable error is returned.
func (d *Dispatcher) Flush(ctx context.Context) error {
	var firstErr error
	for _, sink := range d.sinks {
		err := d.withRetry(ctx, func(attemptCtx context.Context) error {
			return sink.Flush(attemptCtx)
		})
		if err != nil {
			slog.Error("sink flush failed", "sink", sink.Kind(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// submitWithRetry attempts one (record, sink) submission: transient failures
// are retried with exponential backoff up to the configured bound, rejects
// fail immediately.
func (d *Dispatcher) submitWithRetry(ctx context.Context, sink Sink, rec models.ListingRecord) (models.SubmissionStatus, int, error) {
	maxAttempts := d.cfg.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return models.StatusFailed, attempt - 1, err
		}

		err := d.attempt(ctx, func(attemptCtx context.Context) error {
			return sink.Submit(attemptCtx, rec)
		})
		if err == nil {
			if attempt > 1 {
				slog.Info("submission recovered after retry",
					"sink", sink.Kind(), "address", rec.Address, "attempt", attempt)
				return models.StatusRetriedSuccess, attempt, nil
			}
			return models.StatusSuccess, attempt, nil
		}
		lastErr = err

		if !models.IsTransient(err) {
			slog.Warn("submission rejected",
				"sink", sink.Kind(), "address", rec.Address, "error", err)
			return models.StatusFailed, attempt, err
		}
		slog.Warn("transient submission failure",
			"sink", sink.Kind(), "address", rec.Address, "attempt", attempt, "error", err)

		if attempt < maxAttempts {
			if err := d.backoff(ctx, attempt); err != nil {
				return models.StatusFailed, attempt, lastErr
			}
		}
	}
	return models.StatusFailed, maxAttempts, lastErr
}

// withRetry applies the transient-retry policy to an arbitrary operation.
func (d *Dispatcher) withRetry(ctx context.Context, op func(context.Context) error) error {
	maxAttempts := d.cfg.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.attempt(ctx, op)
		if err == nil {
			return nil
		}
		lastErr = err
		if !models.IsTransient(err) {
			return err
		}
		if attempt < maxAttempts {
			if err := d.backoff(ctx, attempt); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

// attempt runs op under the per-attempt deadline.
func (d *Dispatcher) attempt(ctx context.Context, op func(context.Context) error) error {
	if d.cfg.Timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	return op(attemptCtx)
}

// backoff sleeps the exponential delay for the given attempt number, or
// returns early on cancellation.
func (d *Dispatcher) backoff(ctx context.Context, attempt int) error {
	if d.cfg.Backoff <= 0 {
		return nil
	}
	delay := d.cfg.Backoff << (attempt - 1)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
