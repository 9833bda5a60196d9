package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains the listing API settings.
type API struct {
	OutgoingURL       string   `toml:"outgoing_url"`
	IncomingURL       string   `toml:"incoming_url"`
	ProbePageSize     int      `toml:"probe_page_size"`
	SortBy            string   `toml:"sort_by"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           Duration `toml:"timeout"`
	UserAgent         string   `toml:"user_agent"`
}

// Browser contains how Chrome is reached.
type Browser struct {
	// RemoteURL attaches to a running Chrome; empty launches one.
	RemoteURL   string `toml:"remote_url"`
	AppURL      string `toml:"app_url"`
	Headless    bool   `toml:"headless"`
	UserDataDir string `toml:"user_data_dir"`
	ExecPath    string `toml:"exec_path"`
}

// Timing contains wait bounds and settle delays.
type Timing struct {
	LoadTimeout       Duration `toml:"load_timeout"`
	CompletionTimeout Duration `toml:"completion_timeout"`
	PollInterval      Duration `toml:"poll_interval"`
	CompletionSettle  Duration `toml:"completion_settle"`
	DownloadTimeout   Duration `toml:"download_timeout"`
	ListSettle        Duration `toml:"list_settle"`
	ItemSettle        Duration `toml:"item_settle"`
	WindowTimeout     Duration `toml:"window_timeout"`
}

// Output contains where artifacts go.
type Output struct {
	Dir        string `toml:"dir"`
	StagingDir string `toml:"staging_dir"` // Default: <dir>/.staging
}

// Journal contains the optional Redis run journal.
type Journal struct {
	RedisAddr string   `toml:"redis_addr"` // Empty disables the journal
	DB        int      `toml:"db"`
	TTL       Duration `toml:"ttl"`
}

// Metrics contains the textfile export.
type Metrics struct {
	Textfile string `toml:"textfile"` // Empty disables the export
}

// Log contains log output settings.
type Log struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Config encapsulates all configuration values for mjp-export.
//
// Configuration sections by subsystem:
//   - API: listing endpoints, paging and request pacing
//   - Browser: Chrome connection and application URL
//   - Timing: wait bounds and settle delays of the export engine
//   - Output: artifact and download staging directories
//   - Journal: Redis run journal
//   - Metrics: node_exporter textfile
//   - Log: level and format
type Config struct {
	API     API     `toml:"api"`
	Browser Browser `toml:"browser"`
	Timing  Timing  `toml:"timing"`
	Output  Output  `toml:"output"`
	Journal Journal `toml:"journal"`
	Metrics Metrics `toml:"metrics"`
	Log     Log     `toml:"log"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error; defaults and environment overrides apply. It returns the
// config, the resolved path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigFile)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// JournalEnabled reports whether a Redis address is configured.
func (c *Config) JournalEnabled() bool {
	return strings.TrimSpace(c.Journal.RedisAddr) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
