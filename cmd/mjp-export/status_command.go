package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/mjp-export/pkg/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var showItems bool

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show a journaled run (the latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			j, closeJournal, err := openJournal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeJournal()

			runID := ""
			if len(args) == 1 {
				runID = strings.TrimSpace(args[0])
			}
			if runID == "" {
				runID, err = j.Latest(cmd.Context())
				if errors.Is(err, journal.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				if err != nil {
					return err
				}
			}

			run, err := j.GetRun(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("load run %s: %w", runID, err)
			}
			printRun(cmd.OutOrStdout(), run)

			if !showItems {
				return nil
			}
			items, err := j.Items(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("load items of run %s: %w", runID, err)
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showItems, "items", true, "Show per-item outcomes")
	return cmd
}

func printRun(out io.Writer, run *journal.Run) {
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Finished: %s (%s)\n",
			run.FinishedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Items:    %d of %d\n", run.Processed(), run.Total)

	rows := make([][]string, 0, len(journal.Outcomes))
	for _, o := range journal.Outcomes {
		rows = append(rows, []string{string(o), strconv.Itoa(run.Counts[o])})
	}
	fmt.Fprintln(out, renderTable([]string{"Outcome", "Items"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printItems(out io.Writer, items []journal.ItemRecord) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No items recorded")
		return
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			strconv.Itoa(it.Position),
			it.Direction,
			it.ID,
			string(it.Outcome),
			yesNo(it.Completed),
			strconv.Itoa(len(it.Artifacts)),
			it.Error,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Direction", "Message UUID", "Outcome", "Completed", "Files", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}
