// Package processor runs the per-message export state machine:
//
//	Idle → AwaitingLoad → Triggering → AwaitingCompletion → CapturingArtifact → Done
//
// with AwaitingLoad timing out directly to Done (item skipped). The
// correlation token is active from entry to exit on every path.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/queue"
	"github.com/Sternrassler/mjp-export/pkg/rename"
	"github.com/Sternrassler/mjp-export/pkg/wait"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var mjpItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mjp_items_total",
	Help: "Total processed items by direction and outcome",
}, []string{"direction", "outcome"})

// State is a page processor state.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingLoad       State = "awaiting_load"
	StateTriggering         State = "triggering"
	StateAwaitingCompletion State = "awaiting_completion"
	StateCapturingArtifact  State = "capturing_artifact"
	StateDone               State = "done"
)

// Outcome summarizes an item run.
type Outcome string

const (
	// OutcomeExported means the archive was triggered and the proof step finished.
	OutcomeExported Outcome = "exported"

	// OutcomeSkipped means the page never became ready.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means an unexpected error ended the item early.
	OutcomeFailed Outcome = "failed"
)

// Default labels of the proof affordance, in priority order.
var DefaultProofLabels = []string{"Prüfvermerk", "Eingangsbestätigung"}

// Config holds processor timing.
type Config struct {
	LoadTimeout       time.Duration
	CompletionTimeout time.Duration
	PollInterval      time.Duration

	// SettleDelay is the fixed pause after the completion wait.
	SettleDelay time.Duration

	// DownloadTimeout bounds the extra wait for in-flight downloads after SettleDelay.
	DownloadTimeout time.Duration

	ProofLabels []string

	// Now returns the current time; used for the fallback filename.
	Now func() time.Time
}

// DefaultConfig returns the default processor timing.
func DefaultConfig() Config {
	return Config{
		LoadTimeout:       15 * time.Second,
		CompletionTimeout: 60 * time.Second,
		PollInterval:      500 * time.Millisecond,
		SettleDelay:       800 * time.Millisecond,
		DownloadTimeout:   10 * time.Second,
		ProofLabels:       DefaultProofLabels,
		Now:               time.Now,
	}
}

// Report describes one item run.
type Report struct {
	Item      queue.WorkItem
	Outcome   Outcome
	Completed bool
	Filename  string
	Capture   capture.Result
	States    []State
	Duration  time.Duration
	Err       error
}

// Processor runs the state machine for one item at a time.
type Processor struct {
	page      Page
	policy    *rename.Policy
	capturer  *capture.Capturer
	downloads Downloads
	config    Config
}

// New creates a processor. downloads may be nil.
func New(page Page, policy *rename.Policy, capturer *capture.Capturer, downloads Downloads, config Config) *Processor {
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if len(config.ProofLabels) == 0 {
		config.ProofLabels = DefaultProofLabels
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Processor{
		page:      page,
		policy:    policy,
		capturer:  capturer,
		downloads: downloads,
		config:    config,
	}
}

// Process exports one item. Item-level problems are reported in the Report;
// the returned Report.Err is non-nil only for failures the item could not
// absorb, including context cancellation.
func (p *Processor) Process(ctx context.Context, item queue.WorkItem) (report Report) {
	logger := log.With().
		Str("component", "processor").
		Str("item_id", item.ID).
		Str("direction", string(item.Direction)).
		Logger()

	start := time.Now()
	report = Report{Item: item, States: []State{StateIdle}}
	advance := func(s State) {
		report.States = append(report.States, s)
		logger.Debug().Str("state", string(s)).Msg("State transition")
	}

	if err := p.policy.Activate(item.ID); err != nil {
		report.Outcome = OutcomeFailed
		report.Err = fmt.Errorf("activate token: %w", err)
		advance(StateDone)
		return report
	}
	defer func() {
		p.policy.Deactivate()
		report.Duration = time.Since(start)
		mjpItemsTotal.WithLabelValues(string(item.Direction), string(report.Outcome)).Inc()
	}()

	// Idle → AwaitingLoad
	advance(StateAwaitingLoad)
	_, ready, err := wait.Await(ctx, wait.Condition[struct{}]{
		Name: "action_ready",
		Check: func(ctx context.Context) (struct{}, bool) {
			ok, err := p.page.ActionReady(ctx, item.ID)
			if err != nil {
				logger.Debug().Err(err).Msg("Action check failed")
				return struct{}{}, false
			}
			return struct{}{}, ok
		},
		Source:  wait.Events(p.page.Changes),
		Timeout: p.config.LoadTimeout,
	})
	if err != nil {
		return p.fail(report, advance, fmt.Errorf("await load: %w", err))
	}
	if !ready {
		logger.Error().Dur("timeout", p.config.LoadTimeout).Msg("Timeout loading message - skipping")
		report.Outcome = OutcomeSkipped
		advance(StateDone)
		return report
	}

	// AwaitingLoad → Triggering
	advance(StateTriggering)
	base := p.baseName(ctx, item, logger)
	report.Filename = ProofFilename(base, item.ID)

	logger.Info().Msg("Triggering archive download")
	if err := p.page.TriggerAction(ctx, item.ID); err != nil {
		return p.fail(report, advance, fmt.Errorf("trigger archive: %w", err))
	}

	// Triggering → AwaitingCompletion
	advance(StateAwaitingCompletion)
	_, completed, err := wait.Await(ctx, wait.Condition[struct{}]{
		Name: "archive_complete",
		Check: func(ctx context.Context) (struct{}, bool) {
			ok, err := p.page.CompletionVisible(ctx)
			if err != nil {
				logger.Debug().Err(err).Msg("Completion check failed")
				return struct{}{}, false
			}
			return struct{}{}, ok
		},
		Source:  wait.Poll(p.config.PollInterval),
		Timeout: p.config.CompletionTimeout,
	})
	if err != nil {
		return p.fail(report, advance, fmt.Errorf("await completion: %w", err))
	}
	report.Completed = completed
	if !completed {
		logger.Warn().Dur("timeout", p.config.CompletionTimeout).Msg("Archive completion not observed - proceeding anyway")
	}

	if err := p.settle(ctx, logger); err != nil {
		return p.fail(report, advance, err)
	}

	// AwaitingCompletion → CapturingArtifact
	advance(StateCapturingArtifact)
	label, found, err := p.page.ProofAffordance(ctx, item.ID, p.config.ProofLabels)
	if err != nil {
		logger.Warn().Err(err).Msg("Proof lookup failed - treating as missing")
		found = false
	}

	var result capture.Result
	if found {
		logger.Info().Str("label", label).Msg("Generating HTML proof")
		result, err = p.capturer.Capture(ctx, func(ctx context.Context) error {
			return p.page.TriggerProof(ctx, item.ID, label)
		}, report.Filename)
	} else {
		result, err = p.capturer.Fallback(ctx, item, report.Filename)
	}
	if err != nil {
		return p.fail(report, advance, err)
	}
	report.Capture = result

	// CapturingArtifact → Done
	report.Outcome = OutcomeExported
	advance(StateDone)
	logger.Info().
		Bool("completed", completed).
		Str("proof", string(result.Outcome)).
		Msg("Message processed")
	return report
}

func (p *Processor) fail(report Report, advance func(State), err error) Report {
	report.Outcome = OutcomeFailed
	report.Err = err
	advance(StateDone)
	return report
}

// baseName enriches the filename from the bound record when possible.
func (p *Processor) baseName(ctx context.Context, item queue.WorkItem, logger zerolog.Logger) string {
	info, ok, err := p.page.RecordInfo(ctx, item.ID)
	if err != nil {
		logger.Debug().Err(err).Msg("Record not inspectable - using fallback name")
		ok = false
	}
	return BaseName(info, ok, p.config.Now())
}

// settle applies the fixed settle delay, then waits for in-flight downloads
// to finish so their rename still sees this item's token.
func (p *Processor) settle(ctx context.Context, logger zerolog.Logger) error {
	if err := Sleep(ctx, p.config.SettleDelay); err != nil {
		return err
	}
	if p.downloads == nil {
		return nil
	}

	_, idle, err := wait.Await(ctx, wait.Condition[int]{
		Name: "downloads_idle",
		Check: func(context.Context) (int, bool) {
			n := p.downloads.Pending()
			return n, n == 0
		},
		Source:  wait.Poll(100 * time.Millisecond),
		Timeout: p.config.DownloadTimeout,
	})
	if err != nil {
		return err
	}
	if !idle {
		logger.Warn().Int("pending", p.downloads.Pending()).Msg("Downloads still in flight after settle")
	}
	return nil
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
