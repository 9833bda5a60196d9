package config

import (
	"time"
)

const (
	defaultOutgoingURL   = "https://api.mjp.justiz.de/api/v1/public/messages/ebo/outgoing"
	defaultIncomingURL   = "https://api.mjp.justiz.de/api/v1/public/messages/ebo/incoming"
	defaultAppURL        = "https://mein-justizpostfach.bund.de/"
	defaultSortBy        = "ozgppCreationTime"
	defaultUserAgent     = "mjp-export/1.0"
	defaultOutputDir     = "~/Downloads/MJP-Export"
	defaultUserDataDir   = "~/.local/share/mjp-export/chrome"
	defaultStagingSubdir = ".staging"
	defaultConfigPath    = "~/.config/mjp-export/config.toml"
	projectConfigFile    = "mjp-export.toml"
)

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		API: API{
			OutgoingURL:       defaultOutgoingURL,
			IncomingURL:       defaultIncomingURL,
			ProbePageSize:     10,
			SortBy:            defaultSortBy,
			RequestsPerSecond: 2,
			Burst:             2,
			Timeout:           D(30 * time.Second),
			UserAgent:         defaultUserAgent,
		},
		Browser: Browser{
			AppURL:      defaultAppURL,
			Headless:    false,
			UserDataDir: defaultUserDataDir,
		},
		Timing: Timing{
			LoadTimeout:       D(15 * time.Second),
			CompletionTimeout: D(60 * time.Second),
			PollInterval:      D(500 * time.Millisecond),
			CompletionSettle:  D(800 * time.Millisecond),
			DownloadTimeout:   D(10 * time.Second),
			ListSettle:        D(600 * time.Millisecond),
			ItemSettle:        D(1500 * time.Millisecond),
			WindowTimeout:     D(2 * time.Minute),
		},
		Output: Output{
			Dir: defaultOutputDir,
		},
		Journal: Journal{
			DB:  0,
			TTL: D(30 * 24 * time.Hour),
		},
		Log: Log{
			Level: "info",
		},
	}
}
