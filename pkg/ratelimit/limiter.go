// Package ratelimit paces requests against the listing API.
//
// The MJP API publishes no quota headers, so pacing is a local token bucket.
// The listing run issues at most four requests, but the same client backs the
// "list" command which users may call in loops.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	mjpRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mjp_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for a rate limit token",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
	})

	mjpRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjp_rate_limit_throttles_total",
		Help: "Total number of requests that had to wait for a token",
	})
)

// throttleThreshold is the wait above which a request counts as throttled.
const throttleThreshold = 10 * time.Millisecond

// Limiter gates outgoing requests with a token bucket.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLimiter creates a limiter allowing perSecond requests with the given burst.
// perSecond <= 0 disables pacing.
func NewLimiter(perSecond float64, burst int, logger zerolog.Logger) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Wait blocks until a request may proceed. It returns an error only when ctx
// is done first.
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	waited := time.Since(start)
	mjpRateLimitWaitSeconds.Observe(waited.Seconds())
	if waited > throttleThreshold {
		mjpRateLimitThrottlesTotal.Inc()
		l.logger.Debug().
			Str("endpoint", endpoint).
			Dur("waited", waited).
			Msg("Request throttled")
	}
	return nil
}
