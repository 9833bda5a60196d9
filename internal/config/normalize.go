package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// applyEnv applies MJP_* overrides:
//
//	MJP_OUTPUT_DIR, MJP_BROWSER_REMOTE_URL, MJP_BROWSER_HEADLESS,
//	MJP_BROWSER_EXEC_PATH, MJP_REDIS_ADDR, MJP_METRICS_TEXTFILE, MJP_LOG_LEVEL
func (c *Config) applyEnv() {
	if value, ok := lookupEnv("MJP_OUTPUT_DIR"); ok {
		c.Output.Dir = value
	}
	if value, ok := lookupEnv("MJP_BROWSER_REMOTE_URL"); ok {
		c.Browser.RemoteURL = value
	}
	if value, ok := lookupEnv("MJP_BROWSER_HEADLESS"); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			c.Browser.Headless = b
		}
	}
	if value, ok := lookupEnv("MJP_BROWSER_EXEC_PATH"); ok {
		c.Browser.ExecPath = value
	}
	if value, ok := lookupEnv("MJP_REDIS_ADDR"); ok {
		c.Journal.RedisAddr = value
	}
	if value, ok := lookupEnv("MJP_METRICS_TEXTFILE"); ok {
		c.Metrics.Textfile = value
	}
	if value, ok := lookupEnv("MJP_LOG_LEVEL"); ok {
		c.Log.Level = value
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.Browser.RemoteURL = strings.TrimSpace(c.Browser.RemoteURL)
	c.Browser.AppURL = strings.TrimSpace(c.Browser.AppURL)
	if c.Browser.AppURL == "" {
		c.Browser.AppURL = defaultAppURL
	}
	c.Journal.RedisAddr = strings.TrimSpace(c.Journal.RedisAddr)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if strings.TrimSpace(c.Output.StagingDir) == "" {
		c.Output.StagingDir = filepath.Join(c.Output.Dir, defaultStagingSubdir)
	}
	if c.Output.StagingDir, err = expandPath(c.Output.StagingDir); err != nil {
		return fmt.Errorf("output.staging_dir: %w", err)
	}
	if c.Browser.UserDataDir, err = expandPath(c.Browser.UserDataDir); err != nil {
		return fmt.Errorf("browser.user_data_dir: %w", err)
	}
	if c.Browser.ExecPath, err = expandPath(c.Browser.ExecPath); err != nil {
		return fmt.Errorf("browser.exec_path: %w", err)
	}
	if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.OutgoingURL = strings.TrimSpace(c.API.OutgoingURL)
	if c.API.OutgoingURL == "" {
		c.API.OutgoingURL = defaultOutgoingURL
	}
	c.API.IncomingURL = strings.TrimSpace(c.API.IncomingURL)
	if c.API.IncomingURL == "" {
		c.API.IncomingURL = defaultIncomingURL
	}
	c.API.SortBy = strings.TrimSpace(c.API.SortBy)
	if c.API.SortBy == "" {
		c.API.SortBy = defaultSortBy
	}
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}
}
