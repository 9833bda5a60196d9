// Package batch drives the export of a whole queue, one item at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/download"
	"github.com/Sternrassler/mjp-export/pkg/journal"
	"github.com/Sternrassler/mjp-export/pkg/logging"
	"github.com/Sternrassler/mjp-export/pkg/processor"
	"github.com/Sternrassler/mjp-export/pkg/queue"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	mjpRunItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjp_run_items",
		Help: "Number of items in the current run queue",
	})

	mjpRunProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjp_run_progress",
		Help: "Number of items attempted in the current run",
	})

	mjpRunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mjp_run_duration_seconds",
		Help: "Duration of the last run in seconds",
	})
)

// ErrEmptyQueue aborts a run that has nothing to export.
var ErrEmptyQueue = errors.New("no messages found to export")

// Navigator moves the browser tab between views.
type Navigator interface {
	Location(ctx context.Context) (string, error)
	Navigate(ctx context.Context, location string) error
}

// DownloadHook routes browser downloads through the rename policy while installed.
type DownloadHook interface {
	Install(ctx context.Context) error
	Restore(ctx context.Context) error
}

// ItemProcessor exports one item.
type ItemProcessor interface {
	Process(ctx context.Context, item queue.WorkItem) processor.Report
}

// Recorder persists run progress. *journal.Journal implements it.
type Recorder interface {
	StartRun(ctx context.Context, run *journal.Run) error
	SaveListing(ctx context.Context, runID, direction string, ids []string) error
	RecordItem(ctx context.Context, runID string, rec journal.ItemRecord) error
	FinishRun(ctx context.Context, run *journal.Run) error
}

// Config holds the settle delays between navigations.
type Config struct {
	// ListSettle follows a navigation back to the list view.
	ListSettle time.Duration

	// ItemSettle follows each processed item.
	ItemSettle time.Duration
}

// DefaultConfig returns the default settle delays.
func DefaultConfig() Config {
	return Config{
		ListSettle: 600 * time.Millisecond,
		ItemSettle: 1500 * time.Millisecond,
	}
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Total     int
	Attempted int
	Counts    map[journal.Outcome]int
	Duration  time.Duration
	Aborted   bool
}

// Driver runs the batch loop.
type Driver struct {
	nav      Navigator
	hook     DownloadHook
	proc     ItemProcessor
	recorder Recorder
	config   Config
	logger   zerolog.Logger

	mu        sync.Mutex
	artifacts map[string][]string
}

// New creates a batch driver.
func New(nav Navigator, hook DownloadHook, proc ItemProcessor, config Config) *Driver {
	return &Driver{
		nav:       nav,
		hook:      hook,
		proc:      proc,
		config:    config,
		logger:    logging.NewLogger("batch"),
		artifacts: make(map[string][]string),
	}
}

// WithJournal records every run in r.
func (d *Driver) WithJournal(r Recorder) *Driver {
	d.recorder = r
	return d
}

// ObserveDownload collects placed downloads per token; pass it to download.Tracker.SetObserver.
func (d *Driver) ObserveDownload(p download.Placed) {
	if p.Token == "" {
		return
	}
	d.mu.Lock()
	d.artifacts[p.Token] = append(d.artifacts[p.Token], p.Path)
	d.mu.Unlock()
}

func (d *Driver) takeArtifacts(token string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := d.artifacts[token]
	delete(d.artifacts, token)
	return paths
}

// Run exports every item of q in order. Each item is attempted exactly once.
// The download hook is installed for the duration of the run and restored on
// every return path, including cancellation.
func (d *Driver) Run(ctx context.Context, q queue.Queue) (Summary, error) {
	if len(q) == 0 {
		d.logger.Error().Msg("No messages found - aborting")
		return Summary{}, ErrEmptyQueue
	}

	start := time.Now()
	run := journal.NewRun(uuid.NewString(), len(q))
	summary := Summary{RunID: run.ID, Total: len(q)}
	logger := d.logger.With().Str("run_id", run.ID).Logger()

	mjpRunItems.Set(float64(len(q)))
	mjpRunProgress.Set(0)

	d.startJournal(ctx, run, q, logger)

	if err := d.hook.Install(ctx); err != nil {
		return summary, fmt.Errorf("install download hook: %w", err)
	}
	defer func() {
		if err := d.hook.Restore(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("Restoring download behavior failed")
		}
	}()

	logger.Info().
		Int("total", len(q)).
		Int("outgoing", q.Count(queue.Outgoing)).
		Int("incoming", q.Count(queue.Incoming)).
		Msg("Starting batch export")

	var runErr error
	for i, item := range q {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		itemLogger := logger.With().
			Str("item_id", item.ID).
			Str("direction", string(item.Direction)).
			Int("position", i+1).
			Int("total", len(q)).
			Logger()
		itemLogger.Info().Msgf("[%d/%d] Processing %s", i+1, len(q), item)

		report, err := d.visit(ctx, item)
		summary.Attempted++
		mjpRunProgress.Set(float64(summary.Attempted))

		outcome := OutcomeOf(report)
		run.Add(outcome)
		d.record(ctx, run.ID, i+1, report, outcome, itemLogger)

		if err != nil {
			if processor.IsCancelled(err) {
				runErr = err
				break
			}
			itemLogger.Error().Err(err).Msg("Item failed")
		}

		if err := processor.Sleep(ctx, d.config.ItemSettle); err != nil {
			runErr = err
			break
		}
	}

	summary.Counts = run.Counts
	summary.Duration = time.Since(start)
	summary.Aborted = runErr != nil
	mjpRunDuration.Set(summary.Duration.Seconds())

	run.Finish(summary.Aborted)
	if d.recorder != nil {
		if err := d.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn().Err(err).Msg("Journal finish failed")
		}
	}

	ev := logger.Info()
	if summary.Aborted {
		ev = logger.Warn().Err(runErr)
	}
	for _, o := range journal.Outcomes {
		ev = ev.Int(string(o), run.Counts[o])
	}
	ev.Int("attempted", summary.Attempted).
		Int("total", summary.Total).
		Dur("duration", summary.Duration).
		Msg("Batch export finished")

	if runErr != nil {
		return summary, fmt.Errorf("batch aborted after %d of %d items: %w", summary.Attempted, summary.Total, runErr)
	}
	return summary, nil
}

// visit navigates to item and processes it.
func (d *Driver) visit(ctx context.Context, item queue.WorkItem) (processor.Report, error) {
	report := processor.Report{Item: item, Outcome: processor.OutcomeFailed}

	loc, err := d.nav.Location(ctx)
	if err != nil {
		report.Err = fmt.Errorf("read location: %w", err)
		return report, report.Err
	}
	if loc != item.ListLocation {
		if err := d.nav.Navigate(ctx, item.ListLocation); err != nil {
			report.Err = fmt.Errorf("navigate to list: %w", err)
			return report, report.Err
		}
		if err := processor.Sleep(ctx, d.config.ListSettle); err != nil {
			report.Err = err
			return report, err
		}
	}
	if err := d.nav.Navigate(ctx, item.DetailLocation); err != nil {
		report.Err = fmt.Errorf("navigate to detail: %w", err)
		return report, report.Err
	}

	report = d.proc.Process(ctx, item)
	return report, report.Err
}

func (d *Driver) startJournal(ctx context.Context, run *journal.Run, q queue.Queue, logger zerolog.Logger) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.StartRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("Journal start failed - continuing without journal")
		d.recorder = nil
		return
	}
	for _, dir := range []queue.Direction{queue.Outgoing, queue.Incoming} {
		var ids []string
		for _, item := range q {
			if item.Direction == dir {
				ids = append(ids, item.ID)
			}
		}
		if err := d.recorder.SaveListing(ctx, run.ID, string(dir), ids); err != nil {
			logger.Warn().Err(err).Str("direction", string(dir)).Msg("Journal listing failed")
		}
	}
}

func (d *Driver) record(ctx context.Context, runID string, position int, report processor.Report, outcome journal.Outcome, logger zerolog.Logger) {
	artifacts := d.takeArtifacts(report.Item.ID)
	if report.Capture.Path != "" {
		artifacts = append(artifacts, report.Capture.Path)
	}

	logger.Info().
		Str("outcome", string(outcome)).
		Strs("artifacts", artifacts).
		Dur("duration", report.Duration).
		Msg("Item finished")

	if d.recorder == nil {
		return
	}
	rec := journal.ItemRecord{
		Position:  position,
		ID:        report.Item.ID,
		Direction: string(report.Item.Direction),
		Outcome:   outcome,
		Completed: report.Completed,
		Artifacts: artifacts,
		Duration:  report.Duration,
	}
	if report.Err != nil {
		rec.Error = report.Err.Error()
	}
	if err := d.recorder.RecordItem(context.WithoutCancel(ctx), runID, rec); err != nil {
		logger.Warn().Err(err).Msg("Journal item failed")
	}
}

// OutcomeOf maps a processor report to its journal outcome.
func OutcomeOf(r processor.Report) journal.Outcome {
	switch r.Outcome {
	case processor.OutcomeSkipped:
		return journal.OutcomeSkipped
	case processor.OutcomeFailed, "":
		return journal.OutcomeFailed
	}
	switch r.Capture.Outcome {
	case capture.OutcomeCaptured:
		return journal.OutcomeExported
	case capture.OutcomePlaceholder, capture.OutcomeSkipped:
		return journal.OutcomeFallback
	default:
		return journal.OutcomeNoProof
	}
}
