// Package browser adapts a Chrome tab driven over the DevTools protocol to
// the interfaces of the export engine: the page processor's Page, the batch
// Navigator and DownloadHook, and the capturer's WindowOpener.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultAppURL is the MJP web application.
const DefaultAppURL = "https://mein-justizpostfach.bund.de/"

// Config configures how the browser is reached.
type Config struct {
	// RemoteURL attaches to a running Chrome (e.g. ws://127.0.0.1:9222/).
	// Empty starts a new Chrome process.
	RemoteURL string

	// AppURL is opened when no tab of the application exists yet.
	AppURL string

	Headless    bool
	UserDataDir string
	ExecPath    string
	UserAgent   string
}

// Session is a connected browser tab.
type Session struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// Start connects to (or launches) Chrome and selects the application tab.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.AppURL == "" {
		cfg.AppURL = DefaultAppURL
	}
	logger := log.With().Str("component", "browser").Logger()

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", cfg.Headless),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	tabCtx, tabCancel, attached, err := attachAppTab(browserCtx, cfg.AppURL)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	if !attached {
		logger.Info().Str("url", cfg.AppURL).Msg("Opening application")
		if err := chromedp.Run(tabCtx, chromedp.Navigate(cfg.AppURL)); err != nil {
			tabCancel()
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("open %s: %w", cfg.AppURL, err)
		}
	}

	logger.Info().
		Bool("remote", cfg.RemoteURL != "").
		Bool("attached", attached).
		Msg("Browser session ready")

	return &Session{
		config: cfg,
		ctx:    tabCtx,
		cancel: func() {
			tabCancel()
			browserCancel()
			allocCancel()
		},
		logger: logger,
	}, nil
}

// attachAppTab returns a context for an existing tab showing appURL, or the
// browser's initial tab when there is none.
func attachAppTab(browserCtx context.Context, appURL string) (context.Context, context.CancelFunc, bool, error) {
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("list targets: %w", err)
	}
	host := strings.TrimSuffix(appURL, "/")
	for _, info := range targets {
		if info.Type == "page" && strings.HasPrefix(info.URL, host) {
			tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(info.TargetID))
			if err := chromedp.Run(tabCtx); err != nil {
				cancel()
				return nil, nil, false, fmt.Errorf("attach tab %s: %w", info.TargetID, err)
			}
			return tabCtx, cancel, true, nil
		}
	}
	return browserCtx, func() {}, false, nil
}

// Context returns the chromedp context of the application tab.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close detaches from the tab and stops a launched browser.
func (s *Session) Close() {
	s.cancel()
}

// Page returns the page adapter for the application tab.
func (s *Session) Page() (*Page, error) {
	return newPage(s.ctx)
}

// Opener returns the proof window interceptor for the application tab.
func (s *Session) Opener() *Opener {
	return &Opener{tab: s.ctx}
}

// Cookies exports the tab's cookies for urls.
func (s *Session) Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error) {
	callCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var cookies []*network.Cookie
	err := chromedp.Run(callCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithUrls(urls).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, convertCookie(c))
	}
	s.logger.Debug().Int("count", len(out)).Strs("urls", urls).Msg("Exported session cookies")
	return out, nil
}

func convertCookie(c *network.Cookie) *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if c.Expires > 0 {
		hc.Expires = time.Unix(int64(c.Expires), 0)
	}
	switch c.SameSite {
	case network.CookieSameSiteStrict:
		hc.SameSite = http.SameSiteStrictMode
	case network.CookieSameSiteLax:
		hc.SameSite = http.SameSiteLaxMode
	case network.CookieSameSiteNone:
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}
