// Package capture harvests proof documents from secondary browser windows.
//
// Opening and inspecting windows is an injected capability (WindowOpener) so
// the capture logic does not depend on how the host surfaces popups.
package capture

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/logging"
	"github.com/Sternrassler/mjp-export/pkg/queue"
	"github.com/Sternrassler/mjp-export/pkg/sink"
	"github.com/Sternrassler/mjp-export/pkg/wait"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var mjpCapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mjp_captures_total",
	Help: "Total proof capture attempts by outcome",
}, []string{"outcome"})

// HTMLMIMEType is the MIME type of harvested and placeholder documents.
const HTMLMIMEType = "text/html"

// Window is an opened secondary surface.
type Window interface {
	// Ready reports whether the document looks fully rendered.
	Ready(ctx context.Context) (bool, error)

	// HTML returns the full document markup.
	HTML(ctx context.Context) (string, error)

	// Close closes the window.
	Close(ctx context.Context) error

	// Closed is closed when the window goes away for any reason.
	Closed() <-chan struct{}
}

// WindowOpener intercepts windows opened by the page. Interception stays
// armed until release is called; release restores normal window handling.
type WindowOpener interface {
	Intercept(ctx context.Context) (opened <-chan Window, release func(), err error)
}

// Outcome is the result of a capture attempt.
type Outcome string

const (
	// OutcomeCaptured means the window markup was saved.
	OutcomeCaptured Outcome = "captured"

	// OutcomeWindowClosed means the window closed before it became ready.
	OutcomeWindowClosed Outcome = "window_closed"

	// OutcomeNoWindow means no window opened within the configured bound.
	OutcomeNoWindow Outcome = "no_window"

	// OutcomeNotReady means the window never became ready within the configured bound.
	OutcomeNotReady Outcome = "not_ready"

	// OutcomePlaceholder means a delivery-failure placeholder was saved.
	OutcomePlaceholder Outcome = "placeholder"

	// OutcomeSkipped means no proof is expected for the item.
	OutcomeSkipped Outcome = "skipped"
)

// Saved reports whether the outcome produced a file.
func (o Outcome) Saved() bool {
	return o == OutcomeCaptured || o == OutcomePlaceholder
}

// Result describes one capture attempt.
type Result struct {
	Outcome Outcome
	Path    string
}

// Config holds capturer timing.
type Config struct {
	// PollInterval is the readiness poll interval.
	PollInterval time.Duration

	// WindowTimeout bounds both the wait for the window to open and the wait
	// for it to become ready. Zero waits until the context is done.
	WindowTimeout time.Duration
}

// DefaultConfig returns the default capturer timing.
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		WindowTimeout: 2 * time.Minute,
	}
}

// Capturer saves proof documents.
type Capturer struct {
	opener WindowOpener
	sink   sink.Sink
	config Config
	logger zerolog.Logger
}

// New creates a capturer.
func New(opener WindowOpener, s sink.Sink, config Config) *Capturer {
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	return &Capturer{
		opener: opener,
		sink:   s,
		config: config,
		logger: logging.NewLogger("capture"),
	}
}

// Capture arms window interception, runs trigger (which should click the
// proof affordance), and saves the opened window's markup as filename.
//
// A window that closes before it is ready yields OutcomeWindowClosed and no
// error. Interception is released on every return path.
func (c *Capturer) Capture(ctx context.Context, trigger func(context.Context) error, filename string) (Result, error) {
	opened, release, err := c.opener.Intercept(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("intercept windows: %w", err)
	}
	defer release()

	if err := trigger(ctx); err != nil {
		return Result{}, fmt.Errorf("trigger proof window: %w", err)
	}

	win, err := c.awaitWindow(ctx, opened)
	if err != nil {
		return Result{}, err
	}
	if win == nil {
		c.logger.Warn().Dur("timeout", c.config.WindowTimeout).Msg("No proof window opened")
		return c.result(Result{Outcome: OutcomeNoWindow}), nil
	}

	outcome, err := c.awaitReady(ctx, win)
	if err != nil {
		c.closeWindow(context.WithoutCancel(ctx), win)
		return Result{}, err
	}
	if outcome != "" {
		// Close also releases the attachment of a window that is already gone.
		c.closeWindow(ctx, win)
		return c.result(Result{Outcome: outcome}), nil
	}

	markup, err := win.HTML(ctx)
	if err != nil {
		c.closeWindow(context.WithoutCancel(ctx), win)
		return Result{}, fmt.Errorf("read proof window: %w", err)
	}

	path, err := c.sink.Save(ctx, sink.Artifact{
		Content:  []byte(markup),
		Filename: filename,
		MIMEType: HTMLMIMEType,
	})
	c.closeWindow(ctx, win)
	if err != nil {
		return Result{}, fmt.Errorf("save proof: %w", err)
	}
	return c.result(Result{Outcome: OutcomeCaptured, Path: path}), nil
}

func (c *Capturer) closeWindow(ctx context.Context, win Window) {
	if err := win.Close(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Closing proof window failed")
	}
}

func (c *Capturer) awaitWindow(ctx context.Context, opened <-chan Window) (Window, error) {
	var timeout <-chan time.Time
	if c.config.WindowTimeout > 0 {
		timer := time.NewTimer(c.config.WindowTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case win, ok := <-opened:
		if !ok {
			return nil, nil
		}
		return win, nil
	}
}

// awaitReady returns "" once the window is ready, or the terminal outcome.
func (c *Capturer) awaitReady(ctx context.Context, win Window) (Outcome, error) {
	winCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-win.Closed():
			cancel()
		case <-winCtx.Done():
		}
	}()

	_, ok, err := wait.Await(winCtx, wait.Condition[struct{}]{
		Name: "proof_window_ready",
		Check: func(ctx context.Context) (struct{}, bool) {
			ready, err := win.Ready(ctx)
			if err != nil {
				c.logger.Debug().Err(err).Msg("Proof window not inspectable yet")
				return struct{}{}, false
			}
			return struct{}{}, ready
		},
		Source:  wait.Poll(c.config.PollInterval),
		Timeout: c.config.WindowTimeout,
	})

	switch {
	case ok:
		return "", nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil && errors.Is(err, context.Canceled):
		c.logger.Info().Msg("Proof window closed before it was ready")
		return OutcomeWindowClosed, nil
	case err != nil:
		return "", err
	default:
		c.logger.Warn().Msg("Proof window never became ready")
		return OutcomeNotReady, nil
	}
}

// Fallback handles items without a proof affordance: outgoing messages get a
// delivery-failure placeholder, incoming messages get nothing.
func (c *Capturer) Fallback(ctx context.Context, item queue.WorkItem, filename string) (Result, error) {
	if item.Direction != queue.Outgoing {
		c.logger.Info().Str("item_id", item.ID).Msg("Skipping proof for incoming message without proof button")
		return c.result(Result{Outcome: OutcomeSkipped}), nil
	}

	c.logger.Warn().Str("item_id", item.ID).Msg("No proof button - saving delivery failure note")
	path, err := c.sink.Save(ctx, sink.Artifact{
		Content:  []byte(PlaceholderHTML(item.ID)),
		Filename: filename,
		MIMEType: HTMLMIMEType,
	})
	if err != nil {
		return Result{}, fmt.Errorf("save placeholder: %w", err)
	}
	return c.result(Result{Outcome: OutcomePlaceholder, Path: path}), nil
}

func (c *Capturer) result(r Result) Result {
	mjpCapturesTotal.WithLabelValues(string(r.Outcome)).Inc()
	return r
}

// PlaceholderHTML is the document saved for outgoing messages without proof.
func PlaceholderHTML(id string) string {
	return "<html><body><h1>Versand fehlgeschlagen</h1><p>Message UUID: " +
		html.EscapeString(id) + "</p></body></html>"
}
