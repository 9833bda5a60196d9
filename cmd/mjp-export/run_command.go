package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/mjp-export/internal/config"
	"github.com/Sternrassler/mjp-export/pkg/batch"
	"github.com/Sternrassler/mjp-export/pkg/browser"
	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/download"
	"github.com/Sternrassler/mjp-export/pkg/journal"
	"github.com/Sternrassler/mjp-export/pkg/metrics"
	"github.com/Sternrassler/mjp-export/pkg/processor"
	"github.com/Sternrassler/mjp-export/pkg/rename"
	"github.com/Sternrassler/mjp-export/pkg/sink"
)

const (
	stagingSubdir    = ".staging"
	pageCloseTimeout = 5 * time.Second
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var noJournal bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export every message of the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if outputDir != "" {
				if err := overrideOutputDir(cfg, outputDir); err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runExport(runCtx, cfg, !noJournal, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory; overrides output.dir")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "Do not record the run even if journal.redis_addr is set")
	return cmd
}

func overrideOutputDir(cfg *config.Config, dir string) error {
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	// A staging dir that follows the output dir moves with it.
	if cfg.Output.StagingDir == filepath.Join(cfg.Output.Dir, stagingSubdir) {
		cfg.Output.StagingDir = filepath.Join(expanded, stagingSubdir)
	}
	cfg.Output.Dir = expanded
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, useJournal bool, out io.Writer) error {
	dir, err := sink.NewDir(cfg.Output.Dir)
	if err != nil {
		return err
	}
	if err := dir.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := dir.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Releasing output lock failed")
		}
	}()

	session, err := browser.Start(ctx, browserConfig(cfg))
	if err != nil {
		return err
	}
	defer session.Close()

	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	if err := shareCookies(ctx, session, api, cfg); err != nil {
		return err
	}

	l := fetchListing(ctx, cfg, api)

	page, err := session.Page()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pageCloseTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Removing page instrumentation failed")
		}
	}()

	policy := rename.NewPolicy(rename.DefaultExtension)
	tracker := download.NewTracker(policy, dir, cfg.Output.StagingDir)
	capturer := capture.New(session.Opener(), dir, captureConfig(cfg))
	proc := processor.New(page, policy, capturer, tracker, processorConfig(cfg))
	driver := batch.New(page, session.DownloadHook(tracker), proc, batchConfig(cfg))
	tracker.SetObserver(driver.ObserveDownload)

	if useJournal && cfg.JournalEnabled() {
		j, closeJournal, err := openJournal(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Journal unavailable - continuing without it")
		} else {
			defer closeJournal()
			driver.WithJournal(j)
		}
	}

	summary, runErr := driver.Run(ctx, l.queue)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn().Err(err).Msg("Writing metrics textfile failed")
		}
	}

	if errors.Is(runErr, batch.ErrEmptyQueue) {
		return fmt.Errorf("nothing to export: %w", runErr)
	}
	printSummary(out, summary, dir.Root())
	return runErr
}

func printSummary(out io.Writer, s batch.Summary, root string) {
	rows := make([][]string, 0, len(journal.Outcomes))
	for _, o := range journal.Outcomes {
		rows = append(rows, []string{string(o), fmt.Sprintf("%d", s.Counts[o])})
	}
	fmt.Fprintln(out, renderTable([]string{"Outcome", "Items"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintf(out, "Run %s: %d of %d items in %s\n", s.RunID, s.Attempted, s.Total, s.Duration.Round(time.Second))
	if s.Aborted {
		fmt.Fprintln(out, "Run was aborted before all items were attempted")
	}
	fmt.Fprintf(out, "Output: %s\n", root)
}
