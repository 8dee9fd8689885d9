package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ideaforge/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Commit finished content pieces to the publish repository",
}

var publishNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Publish the next ready piece",
	Long: `Publish the first complete, unpublished piece, taking calendars in
priority order and pieces in calendar order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			res, err := a.publisher.PublishNext(ctx)
			if err != nil {
				return err
			}
			return printPublishResult(cmd.OutOrStdout(), res)
		})
	},
}

var publishPieceCmd = &cobra.Command{
	Use:   "piece <calendar-id> <piece-id>",
	Short: "Publish one piece",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			res, err := a.publisher.Publish(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printPublishResult(cmd.OutOrStdout(), res)
		})
	},
}

var publishPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pieces waiting to be published, in publish order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			pending, err := a.publisher.Selector().Pending(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, pending)
			}
			if len(pending) == 0 {
				fmt.Fprintln(w, "Nothing to publish.")
				return nil
			}
			tw := newTable(w, "Calendar", "Priority", "Piece", "Title")
			for _, c := range pending {
				tw.AppendRow([]interface{}{c.Calendar.ID, c.Calendar.Priority, c.Piece.ID, truncateCell(c.Piece.Title, 50)})
			}
			tw.Render()
			return nil
		})
	},
}

var publishListCmd = &cobra.Command{
	Use:   "list",
	Short: "List publish records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			recs, err := a.repo.ListPublishRecords(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, recs)
			}
			tw := newTable(w, "Published", "Piece", "Path", "Commit")
			for _, r := range recs {
				sha := r.CommitSHA
				if len(sha) > 10 {
					sha = sha[:10]
				}
				tw.AppendRow([]interface{}{r.PublishedAt.Local().Format("2006-01-02 15:04"), r.PieceID, r.FilePath, sha})
			}
			tw.Render()
			return nil
		})
	},
}

func printPublishResult(w io.Writer, res *publish.Result) error {
	if jsonOutput() {
		return printJSON(w, res)
	}
	switch {
	case res == nil:
		fmt.Fprintln(w, "Nothing to publish.")
	case res.AlreadyPublished:
		fmt.Fprintf(w, "%s was already published at %s\n", res.Record.PieceID, res.Record.FilePath)
	default:
		fmt.Fprintf(w, "Published %s to %s (%s)\n", res.Record.PieceID, res.Record.FilePath, res.Record.CommitSHA)
	}
	return nil
}

func init() {
	publishCmd.AddCommand(publishNextCmd)
	publishCmd.AddCommand(publishPieceCmd)
	publishCmd.AddCommand(publishPendingCmd)
	publishCmd.AddCommand(publishListCmd)
}
