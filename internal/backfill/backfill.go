// Package backfill loads a range of processing dates, one independent run
// per date, through the in-memory job queue.
package backfill

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/crypto-etl/internal/domain"
	"github.com/dvloznov/crypto-etl/internal/jobs"
	"github.com/dvloznov/crypto-etl/internal/jobs/inmemory"
	"github.com/dvloznov/crypto-etl/internal/logger"
)

// MaxDates bounds a single backfill.
const MaxDates = 3660

// RunFunc loads one date.
type RunFunc func(ctx context.Context, date civil.Date) error

// Options configures a backfill.
type Options struct {
	Asset string
	// Workers is the number of dates loaded concurrently.
	Workers int
	// Retries is how many times a failed date is re-run.
	Retries int
}

// Summary is the final state of every job, ordered by date.
type Summary struct {
	Jobs []*jobs.LoadJob
}

// Failed returns the jobs that did not complete.
func (s Summary) Failed() []*jobs.LoadJob {
	var out []*jobs.LoadJob
	for _, j := range s.Jobs {
		if j.Status != jobs.JobStatusCompleted {
			out = append(out, j)
		}
	}
	return out
}

// Dates returns every date from first through last inclusive.
func Dates(first, last civil.Date) ([]civil.Date, error) {
	if !first.IsValid() || !last.IsValid() {
		return nil, fmt.Errorf("Dates: invalid range %s..%s", first, last)
	}
	if last.Before(first) {
		return nil, fmt.Errorf("Dates: %s is before %s", last, first)
	}
	n := last.DaysSince(first) + 1
	if n > MaxDates {
		return nil, fmt.Errorf("Dates: %d dates exceed the limit of %d", n, MaxDates)
	}
	out := make([]civil.Date, 0, n)
	for d := first; !d.After(last); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out, nil
}

// Run loads every date with run and waits for all of them. Dates are
// independent: one failing does not stop the others. The returned error is
// non-nil if any date failed.
func Run(ctx context.Context, dates []civil.Date, opts Options, run RunFunc) (Summary, error) {
	log := logger.FromContext(ctx)
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(len(dates), opts.Workers, store)
	defer queue.Close()

	handler := func(ctx context.Context, job jobs.Job) error {
		loadJob, ok := job.(*jobs.LoadJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		jobLog := log.With().Str("job_id", loadJob.JobID).Str("date", loadJob.Date.String()).Logger()
		jobLog.Info().Int("attempt", loadJob.RetryCount+1).Msg("Processing load job")

		err := run(logger.WithContext(ctx, jobLog), loadJob.Date)
		loadJob.PartialTables = domain.PartialTables(err)
		if err != nil {
			jobLog.Error().Err(err).Msg(domain.Describe(err))
			return err
		}
		jobLog.Info().Msg("Load job completed")
		return nil
	}

	if err := queue.Start(ctx, handler); err != nil {
		return Summary{}, fmt.Errorf("backfill: start queue: %w", err)
	}

	for _, d := range dates {
		job := &jobs.LoadJob{Asset: opts.Asset, Date: d, MaxRetries: opts.Retries}
		if err := queue.PublishLoad(ctx, job); err != nil {
			if errors.Is(err, jobs.ErrDuplicateDate) {
				log.Warn().Str("date", d.String()).Msg("Skipping duplicate date")
				continue
			}
			return Summary{}, fmt.Errorf("backfill: publish %s: %w", d, err)
		}
	}

	if err := queue.Wait(ctx); err != nil {
		return Summary{}, fmt.Errorf("backfill: %w", err)
	}

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("backfill: list jobs: %w", err)
	}
	summary := Summary{Jobs: all}
	if failed := summary.Failed(); len(failed) > 0 {
		return summary, fmt.Errorf("backfill: %d of %d dates failed", len(failed), len(all))
	}
	return summary, nil
}
