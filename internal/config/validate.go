package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateAPI() error {
	for name, raw := range map[string]string{
		"api.outgoing_url": c.API.OutgoingURL,
		"api.incoming_url": c.API.IncomingURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.API.ProbePageSize <= 0 {
		return errors.New("api.probe_page_size must be positive")
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New("api.requests_per_second must not be negative (0 disables pacing)")
	}
	if c.API.Timeout.Duration <= 0 {
		return errors.New("api.timeout must be positive")
	}
	return nil
}

func (c *Config) validateBrowser() error {
	if err := validateHTTPURL(c.Browser.AppURL); err != nil {
		return fmt.Errorf("browser.app_url: %w", err)
	}
	if c.Browser.RemoteURL != "" {
		u, err := url.Parse(c.Browser.RemoteURL)
		if err != nil {
			return fmt.Errorf("browser.remote_url: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return fmt.Errorf("browser.remote_url: unsupported scheme %q", u.Scheme)
		}
	}
	return nil
}

func (c *Config) validateTiming() error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"timing.load_timeout", c.Timing.LoadTimeout.Duration},
		{"timing.completion_timeout", c.Timing.CompletionTimeout.Duration},
		{"timing.poll_interval", c.Timing.PollInterval.Duration},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	nonNegative := []struct {
		name  string
		value time.Duration
	}{
		{"timing.completion_settle", c.Timing.CompletionSettle.Duration},
		{"timing.download_timeout", c.Timing.DownloadTimeout.Duration},
		{"timing.list_settle", c.Timing.ListSettle.Duration},
		{"timing.item_settle", c.Timing.ItemSettle.Duration},
		{"timing.window_timeout", c.Timing.WindowTimeout.Duration},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			return fmt.Errorf("%s must not be negative", n.name)
		}
	}
	return nil
}

func (c *Config) validateJournal() error {
	if !c.JournalEnabled() {
		return nil
	}
	if c.Journal.DB < 0 {
		return errors.New("journal.db must not be negative")
	}
	if c.Journal.TTL.Duration <= 0 {
		return errors.New("journal.ttl must be positive when journal.redis_addr is set")
	}
	return nil
}

func (c *Config) validateLog() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
