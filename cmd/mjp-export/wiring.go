package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/mjp-export/internal/config"
	"github.com/Sternrassler/mjp-export/pkg/batch"
	"github.com/Sternrassler/mjp-export/pkg/browser"
	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/client"
	"github.com/Sternrassler/mjp-export/pkg/pagination"
	"github.com/Sternrassler/mjp-export/pkg/processor"
	"github.com/Sternrassler/mjp-export/pkg/queue"
)

// listing is the result of listing both feeds.
type listing struct {
	outgoing []queue.Record
	incoming []queue.Record
	queue    queue.Queue
}

func newAPIClient(cfg *config.Config) (*client.Client, error) {
	return client.New(client.Config{
		UserAgent:         cfg.API.UserAgent,
		Timeout:           cfg.API.Timeout.Duration,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
	})
}

// shareCookies hands the browser session cookies for both feeds to api.
func shareCookies(ctx context.Context, session *browser.Session, api *client.Client, cfg *config.Config) error {
	feeds := []string{cfg.API.OutgoingURL, cfg.API.IncomingURL}
	cookies, err := session.Cookies(ctx, feeds...)
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		log.Warn().Msg("Browser session has no cookies for the listing API - are you logged in?")
	}
	for _, raw := range feeds {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse feed url: %w", err)
		}
		api.SetCookies(u, cookies)
	}
	return nil
}

func fetchListing(ctx context.Context, cfg *config.Config, getter pagination.JSONGetter) listing {
	lister := pagination.NewLister(getter, pagination.Config{
		ProbePageSize: cfg.API.ProbePageSize,
		SortBy:        cfg.API.SortBy,
		Timeout:       cfg.API.Timeout.Duration,
	})

	var l listing
	l.outgoing = lister.FetchAll(ctx, pagination.Feed{Name: string(queue.Outgoing), URL: cfg.API.OutgoingURL})
	l.incoming = lister.FetchAll(ctx, pagination.Feed{Name: string(queue.Incoming), URL: cfg.API.IncomingURL})
	l.queue = queue.Build(l.outgoing, l.incoming)

	log.Info().
		Int("outgoing", l.queue.Count(queue.Outgoing)).
		Int("incoming", l.queue.Count(queue.Incoming)).
		Msg("Work queue built")
	return l
}

func browserConfig(cfg *config.Config) browser.Config {
	return browser.Config{
		RemoteURL:   cfg.Browser.RemoteURL,
		AppURL:      cfg.Browser.AppURL,
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		ExecPath:    cfg.Browser.ExecPath,
	}
}

func processorConfig(cfg *config.Config) processor.Config {
	pc := processor.DefaultConfig()
	pc.LoadTimeout = cfg.Timing.LoadTimeout.Duration
	pc.CompletionTimeout = cfg.Timing.CompletionTimeout.Duration
	pc.PollInterval = cfg.Timing.PollInterval.Duration
	pc.SettleDelay = cfg.Timing.CompletionSettle.Duration
	pc.DownloadTimeout = cfg.Timing.DownloadTimeout.Duration
	return pc
}

func captureConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		PollInterval:  cfg.Timing.PollInterval.Duration,
		WindowTimeout: cfg.Timing.WindowTimeout.Duration,
	}
}

func batchConfig(cfg *config.Config) batch.Config {
	return batch.Config{
		ListSettle: cfg.Timing.ListSettle.Duration,
		ItemSettle: cfg.Timing.ItemSettle.Duration,
	}
}
