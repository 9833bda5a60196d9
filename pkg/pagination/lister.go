package pagination

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for feed listing.
var (
	mjpListedRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mjp_listed_records",
		Help: "Number of records returned by the last listing of a feed",
	}, []string{"feed"})

	mjpListingFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjp_listing_failures_total",
		Help: "Total listing failures by feed and phase",
	}, []string{"feed", "phase"})
)

// Config holds lister configuration.
type Config struct {
	// ProbePageSize is the page size of the total-count probe and the
	// granularity the full page size is rounded up to.
	ProbePageSize int

	// SortBy is the creation timestamp field the API sorts on.
	SortBy string

	// Timeout per listing request.
	Timeout time.Duration
}

// DefaultConfig returns the configuration matching the MJP web client.
func DefaultConfig() Config {
	return Config{
		ProbePageSize: 10,
		SortBy:        "ozgppCreationTime",
		Timeout:       30 * time.Second,
	}
}

// JSONGetter is the interface the API client must implement.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Feed is one listing endpoint.
type Feed struct {
	Name string
	URL  string
}

// Page is the listing API response shape.
type Page struct {
	Total       int            `json:"total"`
	EboMessages []queue.Record `json:"eboMessages"`
}

// Lister fetches complete feed listings.
type Lister struct {
	getter JSONGetter
	config Config
}

// NewLister creates a new lister.
func NewLister(getter JSONGetter, config Config) *Lister {
	if config.ProbePageSize <= 0 {
		config.ProbePageSize = 10
	}
	if config.SortBy == "" {
		config.SortBy = "ozgppCreationTime"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Lister{
		getter: getter,
		config: config,
	}
}

// FetchAll returns every record of the feed in ascending creation order.
// Failures are logged and produce an empty listing; the batch continues with
// whatever the other feed returns.
func (l *Lister) FetchAll(ctx context.Context, feed Feed) []queue.Record {
	records, err := l.fetch(ctx, feed)
	if err != nil {
		log.Error().
			Err(err).
			Str("feed", feed.Name).
			Msg("Listing failed - treating feed as empty")
		mjpListedRecords.WithLabelValues(feed.Name).Set(0)
		return []queue.Record{}
	}
	mjpListedRecords.WithLabelValues(feed.Name).Set(float64(len(records)))
	return records
}

func (l *Lister) fetch(ctx context.Context, feed Feed) ([]queue.Record, error) {
	start := time.Now()

	log.Info().
		Str("feed", feed.Name).
		Msg("Checking total count")

	var probe Page
	if err := l.get(ctx, feed, l.config.ProbePageSize, &probe); err != nil {
		mjpListingFailuresTotal.WithLabelValues(feed.Name, "probe").Inc()
		return nil, fmt.Errorf("probe %s: %w", feed.Name, err)
	}

	if probe.Total <= 0 {
		log.Info().
			Str("feed", feed.Name).
			Msg("Feed is empty")
		return []queue.Record{}, nil
	}

	pageSize := FullPageSize(probe.Total, l.config.ProbePageSize)
	log.Info().
		Str("feed", feed.Name).
		Int("total", probe.Total).
		Int("page_size", pageSize).
		Msg("Fetching complete listing")

	var full Page
	if err := l.get(ctx, feed, pageSize, &full); err != nil {
		mjpListingFailuresTotal.WithLabelValues(feed.Name, "full").Inc()
		return nil, fmt.Errorf("full listing %s: %w", feed.Name, err)
	}

	records := full.EboMessages
	if records == nil {
		records = []queue.Record{}
	}

	log.Info().
		Str("feed", feed.Name).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Listing complete")

	return records, nil
}

func (l *Lister) get(ctx context.Context, feed Feed, pageSize int, out *Page) error {
	reqCtx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	rawURL, err := PageURL(feed.URL, pageSize, l.config.SortBy)
	if err != nil {
		return err
	}
	return l.getter.GetJSON(reqCtx, rawURL, out)
}

// FullPageSize rounds total up to a multiple of granularity.
func FullPageSize(total, granularity int) int {
	if granularity <= 0 {
		granularity = 1
	}
	if total <= 0 {
		return granularity
	}
	return ((total + granularity - 1) / granularity) * granularity
}

// PageURL builds the page-0 listing URL for the given page size.
func PageURL(base string, pageSize int, sortBy string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("page", "0")
	q.Set("itemsPerPage", strconv.Itoa(pageSize))
	q.Set("ascending", "true")
	q.Set("sortBy", sortBy)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
