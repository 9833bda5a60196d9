package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/mjp-export/internal/config"
	"github.com/Sternrassler/mjp-export/pkg/journal"
	"github.com/Sternrassler/mjp-export/pkg/logging"
)

const redisPingTimeout = 3 * time.Second

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) setupLogging(out io.Writer) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	raw := cfg.Log.Level
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		raw = *c.logLevelFlag
	}
	level, err := logging.ParseLevel(raw)
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.Log.Pretty,
		Output: out,
	})
	return nil
}

// openJournal connects to the configured Redis. The returned close function
// is never nil.
func openJournal(ctx context.Context, cfg *config.Config) (*journal.Journal, func(), error) {
	if !cfg.JournalEnabled() {
		return nil, func() {}, fmt.Errorf("journal disabled: set journal.redis_addr or MJP_REDIS_ADDR")
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Journal.RedisAddr,
		DB:   cfg.Journal.DB,
	})
	closeFn := func() { _ = client.Close() }

	j := journal.New(client, cfg.Journal.TTL.Duration)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := j.Ping(pingCtx); err != nil {
		closeFn()
		return nil, func() {}, fmt.Errorf("connect to journal at %s: %w", cfg.Journal.RedisAddr, err)
	}
	return j, closeFn, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
