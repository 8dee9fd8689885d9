package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events [subject]",
	Short: "Show the pipeline event log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		subject := ""
		if len(args) == 1 {
			subject = args[0]
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			events, err := a.events.ListPipelineEvents(subject, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(w, "No events.")
				return nil
			}
			tw := newTable(w, "Time", "Subject", "Event", "Item", "Detail")
			for _, e := range events {
				tw.AppendRow([]interface{}{e.Timestamp, e.Subject, e.Event, e.Item, truncateCell(e.Detail, 60)})
			}
			tw.Render()
			return nil
		})
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "maximum number of events")
}
