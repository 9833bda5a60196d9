package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/mjp-export/pkg/browser"
	"github.com/Sternrassler/mjp-export/pkg/queue"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the messages a run would export, in export order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			api, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			if !noBrowser {
				session, err := browser.Start(cmd.Context(), browserConfig(cfg))
				if err != nil {
					return err
				}
				defer session.Close()
				if err := shareCookies(cmd.Context(), session, api, cfg); err != nil {
					return err
				}
			}

			l := fetchListing(cmd.Context(), cfg, api)
			printQueue(cmd.OutOrStdout(), l)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Query the listing API without browser session cookies")
	return cmd
}

func printQueue(out io.Writer, l listing) {
	if len(l.queue) == 0 {
		fmt.Fprintln(out, "No messages found")
		return
	}

	creation := make(map[string]string, len(l.outgoing)+len(l.incoming))
	for _, r := range l.outgoing {
		creation[r.MessageUUID] = r.CreationTime
	}
	for _, r := range l.incoming {
		creation[r.MessageUUID] = r.CreationTime
	}

	rows := make([][]string, 0, len(l.queue))
	for i, item := range l.queue {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(item.Direction),
			item.ID,
			creation[item.ID],
			item.DetailLocation,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Direction", "Message UUID", "Created", "Detail"},
		rows,
		[]columnAlignment{alignRight},
	))
	fmt.Fprintf(out, "%d outgoing, %d incoming\n", l.queue.Count(queue.Outgoing), l.queue.Count(queue.Incoming))
}
