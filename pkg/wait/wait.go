// Package wait provides the condition waiter used for page-load, job-completion
// and popup-readiness detection.
//
// A wait re-evaluates a Check every time its Source signals and races the
// result against a timeout. Timing out is not an error: Await reports
// ok=false and the caller decides whether that is fatal.
package wait

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for condition waits.
var (
	waitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mjp_wait_duration_seconds",
		Help:    "Condition wait duration in seconds by condition and result",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60},
	}, []string{"condition", "result"})
)

// Check evaluates the condition once. It returns the match and true when the
// condition holds. Evaluation problems should be reported as "not yet".
type Check[T any] func(ctx context.Context) (T, bool)

// Source delivers change signals. Subscribe starts delivering on the returned
// channel until release is called; release must be safe to call once.
type Source interface {
	Subscribe(ctx context.Context) (signals <-chan struct{}, release func(), err error)
}

// Condition bundles a named check with its signal source and timeout.
type Condition[T any] struct {
	Name    string
	Check   Check[T]
	Source  Source
	Timeout time.Duration
}

// Await blocks until c.Check holds, c.Timeout elapses, or ctx is cancelled.
//
// The check runs once before subscribing; a condition that already holds
// resolves without touching the source. It runs again right after
// subscribing, so a change that lands between the first check and the
// subscription is not lost. A timeout returns the zero value, false and a
// nil error. A non-positive timeout waits until ctx is done.
func Await[T any](ctx context.Context, c Condition[T]) (T, bool, error) {
	var zero T
	start := time.Now()
	name := c.Name
	if name == "" {
		name = "unnamed"
	}

	if match, ok := c.Check(ctx); ok {
		observe(name, "immediate", start)
		return match, true, nil
	}

	signals, release, err := c.Source.Subscribe(ctx)
	if err != nil {
		return zero, false, err
	}
	defer release()

	if match, ok := c.Check(ctx); ok {
		observe(name, "matched", start)
		return match, true, nil
	}

	var timeout <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			observe(name, "cancelled", start)
			return zero, false, ctx.Err()
		case <-timeout:
			observe(name, "timeout", start)
			log.Debug().
				Str("condition", name).
				Dur("timeout", c.Timeout).
				Msg("Condition wait timed out")
			return zero, false, nil
		case _, open := <-signals:
			if match, ok := c.Check(ctx); ok {
				observe(name, "matched", start)
				return match, true, nil
			}
			if !open {
				signals = nil
			}
		}
	}
}

func observe(condition, result string, start time.Time) {
	waitDuration.WithLabelValues(condition, result).Observe(time.Since(start).Seconds())
}
