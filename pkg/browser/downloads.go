package browser

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Sternrassler/mjp-export/pkg/download"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DownloadHook routes the tab's downloads through a download.Tracker.
//
// While installed, Chrome saves every download into the tracker's staging
// directory under its GUID and reports begin and progress events; the
// tracker names and places the files.
type DownloadHook struct {
	tab     context.Context
	tracker *download.Tracker
	logger  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DownloadHook returns a hook feeding tracker.
func (s *Session) DownloadHook(tracker *download.Tracker) *DownloadHook {
	return &DownloadHook{
		tab:     s.ctx,
		tracker: tracker,
		logger:  log.With().Str("component", "browser").Str("surface", "downloads").Logger(),
	}
}

// Install switches the browser to named downloads and starts listening.
func (h *DownloadHook) Install(ctx context.Context) error {
	h.mu.Lock()
	installed := h.cancel != nil
	h.mu.Unlock()
	if installed {
		return nil
	}

	staging := h.tracker.StagingDir()
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	listenCtx, cancel := context.WithCancel(h.tab)
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			h.tracker.Begin(e.GUID, e.SuggestedFilename)
		case *browser.EventDownloadProgress:
			state := download.State(e.State)
			if state == download.StateInProgress {
				return
			}
			h.mu.Lock()
			if listenCtx.Err() != nil {
				h.mu.Unlock()
				return
			}
			h.wg.Add(1)
			h.mu.Unlock()
			go func() {
				defer h.wg.Done()
				h.tracker.Progress(context.WithoutCancel(listenCtx), e.GUID, state)
			}()
		}
	})

	err := chromedp.Run(h.tab, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(staging).
		WithEventsEnabled(true))
	if err != nil {
		cancel()
		return fmt.Errorf("set download behavior: %w", err)
	}

	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	h.logger.Info().Str("staging", staging).Msg("Download hook installed")
	return nil
}

// Restore detaches the listener, waits for in-flight placements and
// returns the browser to its default download behavior.
func (h *DownloadHook) Restore(ctx context.Context) error {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	if cancel != nil {
		cancel()
	}
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}
	h.wg.Wait()

	if pending := h.tracker.Pending(); pending > 0 {
		h.logger.Warn().Int("pending", pending).Msg("Restoring with unfinished downloads")
	}

	runCtx, stop := context.WithCancel(h.tab)
	defer stop()
	release := context.AfterFunc(ctx, stop)
	defer release()

	if err := chromedp.Run(runCtx, browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDefault)); err != nil {
		return fmt.Errorf("restore download behavior: %w", err)
	}
	h.logger.Info().Msg("Download hook restored")
	return nil
}
