// Package batch runs per-item work with bounded concurrency and isolates
// failures so one bad item never aborts the rest of a job.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrSkip marks an item that was intentionally left untouched
var ErrSkip = errors.New("skipped")

// DefaultMaxErrors caps how many item errors a Summary keeps
const DefaultMaxErrors = 20

// Options tunes a batch run
type Options struct {
	// Limit is the maximum number of items processed at once. Values below 1 mean 1.
	Limit int
	// MaxErrors caps Summary.Errors. Failed still counts every failure.
	MaxErrors int
}

// Summary reports the outcome of a batch run
type Summary struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Canceled  int           `json:"canceled"`
	Errors    []error       `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// Err joins the sampled item errors, nil when every item succeeded
func (s Summary) Err() error {
	return errors.Join(s.Errors...)
}

// ErrorStrings renders the sampled errors for logs and responses
func (s Summary) ErrorStrings() []string {
	out := make([]string, 0, len(s.Errors))
	for _, err := range s.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Run calls fn for every item with at most opts.Limit calls in flight.
// Errors and panics from fn are recorded in the summary instead of stopping the run.
// Once ctx is done no new items are started and the rest are counted as canceled.
func Run[T any](ctx context.Context, opts Options, items []T, fn func(context.Context, T) error) Summary {
	start := time.Now()
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}
	maxErrors := opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(items)}
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			summary.Processed++
		case errors.Is(err, ErrSkip):
			summary.Skipped++
		default:
			summary.Failed++
			if len(summary.Errors) < maxErrors {
				summary.Errors = append(summary.Errors, err)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		if ctx.Err() != nil {
			mu.Lock()
			summary.Canceled = len(items) - i
			mu.Unlock()
			break
		}
		g.Go(func() error {
			record(call(ctx, item, fn))
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	return summary
}

func call[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
