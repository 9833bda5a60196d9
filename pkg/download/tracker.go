// Package download applies the rename policy to browser downloads.
//
// The browser saves each download into a staging directory under its GUID.
// When a download begins, the tracker freezes the final filename using the
// token that is active at that instant; when it completes, the file is moved
// into the sink under that name. A download that begins while no token is
// active keeps its suggested name.
package download

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/Sternrassler/mjp-export/pkg/logging"
	"github.com/Sternrassler/mjp-export/pkg/rename"
	"github.com/Sternrassler/mjp-export/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	mjpDownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mjp_downloads_total",
		Help: "Total browser downloads by final state",
	}, []string{"state"})

	mjpDownloadsRenamedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mjp_downloads_renamed_total",
		Help: "Total downloads whose filename was tagged with a correlation token",
	})
)

// State is the lifecycle state reported by the browser for a download.
type State string

const (
	StateInProgress State = "inProgress"
	StateCompleted  State = "completed"
	StateCanceled   State = "canceled"
)

// Placed describes a download that reached the sink.
type Placed struct {
	Token    string
	Original string
	Filename string
	Path     string
}

// Observer is notified after each download is placed.
type Observer func(Placed)

type pending struct {
	token    string
	original string
	filename string
}

// Tracker correlates download begin and progress events.
type Tracker struct {
	policy   *rename.Policy
	sink     sink.Sink
	staging  string
	observer Observer
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]pending
}

// NewTracker creates a tracker that moves completed downloads from staging into s.
func NewTracker(policy *rename.Policy, s sink.Sink, staging string) *Tracker {
	return &Tracker{
		policy:  policy,
		sink:    s,
		staging: staging,
		logger:  logging.NewLogger("download"),
		pending: make(map[string]pending),
	}
}

// StagingDir returns the directory the browser saves downloads into.
func (t *Tracker) StagingDir() string {
	return t.staging
}

// SetObserver registers fn to be called after every placed download.
func (t *Tracker) SetObserver(fn Observer) {
	t.mu.Lock()
	t.observer = fn
	t.mu.Unlock()
}

// Begin records a new download and freezes its final filename.
func (t *Tracker) Begin(guid, suggested string) string {
	token := t.policy.Active()
	name := rename.Tag(suggested, token, t.policy.Extension())

	t.mu.Lock()
	t.pending[guid] = pending{token: token, original: suggested, filename: name}
	t.mu.Unlock()

	if name != suggested {
		mjpDownloadsRenamedTotal.Inc()
		t.logger.Info().
			Str("from", suggested).
			Str("to", name).
			Msg("Renaming download")
	} else {
		t.logger.Debug().
			Str("file", suggested).
			Str("token", token).
			Msg("Download started")
	}
	return name
}

// Progress handles a state update. Completed downloads are placed into the sink.
func (t *Tracker) Progress(ctx context.Context, guid string, state State) {
	if state == StateInProgress {
		return
	}

	t.mu.Lock()
	p, ok := t.pending[guid]
	observer := t.observer
	t.mu.Unlock()

	if !ok {
		t.logger.Debug().Str("guid", guid).Str("state", string(state)).Msg("Progress for unknown download")
		return
	}
	// Stays pending until placed so Pending() covers the move.
	defer func() {
		t.mu.Lock()
		delete(t.pending, guid)
		t.mu.Unlock()
	}()

	mjpDownloadsTotal.WithLabelValues(string(state)).Inc()
	if state != StateCompleted {
		t.logger.Warn().
			Str("file", p.filename).
			Str("state", string(state)).
			Msg("Download did not complete")
		return
	}

	path, err := t.sink.Place(ctx, filepath.Join(t.staging, guid), p.filename)
	if err != nil {
		t.logger.Error().Err(err).Str("file", p.filename).Msg("Failed to place download")
		return
	}
	if observer != nil {
		observer(Placed{Token: p.token, Original: p.original, Filename: p.filename, Path: path})
	}
}

// Pending returns the number of downloads that have begun but not finished.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
