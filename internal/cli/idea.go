package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/repo"
)

var ideaCmd = &cobra.Command{
	Use:   "idea",
	Short: "Manage product ideas and their analyses",
}

var ideaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an idea",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		title, _ := cmd.Flags().GetString("title")
		summary, _ := cmd.Flags().GetString("summary")
		audience, _ := cmd.Flags().GetString("audience")
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			idea, err := a.repo.CreateIdea(ctx, repo.Idea{ID: id, Title: title, Summary: summary, Audience: audience})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), idea)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created idea %s\n", idea.ID)
			return nil
		})
	},
}

var ideaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ideas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			ideas, err := a.repo.ListIdeas(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, ideas)
			}
			tw := newTable(w, "ID", "Title", "Created")
			for _, i := range ideas {
				tw.AppendRow([]interface{}{i.ID, i.Title, i.CreatedAt.Local().Format("2006-01-02")})
			}
			tw.Render()
			return nil
		})
	},
}

var ideaShowCmd = &cobra.Command{
	Use:   "show <idea-id>",
	Short: "Show an idea and the state of its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			idea, err := a.repo.GetIdea(ctx, args[0])
			if err != nil {
				return err
			}
			docs, err := a.repo.ListDocuments(ctx, idea.ID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, struct {
					Idea      *repo.Idea      `json:"idea"`
					Documents []repo.Document `json:"documents"`
				}{idea, docs})
			}
			fmt.Fprintf(w, "%s  %s\n%s\n", idea.ID, idea.Title, idea.Summary)
			if _, err := a.repo.GetAnalysis(ctx, idea.ID); err == nil {
				fmt.Fprintln(w, "analysis: present")
			} else {
				fmt.Fprintln(w, "analysis: missing")
			}
			byKind := make(map[foundation.Kind]repo.Document, len(docs))
			for _, d := range docs {
				byKind[d.Kind] = d
			}
			tw := newTable(w, "Document", "Status", "Version", "Error")
			for _, k := range foundation.Order(foundation.All) {
				d, ok := byKind[k]
				if !ok {
					tw.AppendRow([]interface{}{k, "-", "", ""})
					continue
				}
				tw.AppendRow([]interface{}{k, d.Status, d.Version, truncateCell(d.Error, 50)})
			}
			tw.Render()
			return nil
		})
	},
}

var ideaDocumentCmd = &cobra.Command{
	Use:   "document <idea-id> <kind>",
	Short: "Print the latest version of a foundation document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := foundation.Parse(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			d, err := a.repo.GetDocument(ctx, args[0], k)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), d)
			}
			if !d.Available() {
				return fmt.Errorf("%s has no complete version (status %s)", k, d.Status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Content)
			return nil
		})
	},
}

var ideaImportAnalysisCmd = &cobra.Command{
	Use:   "import-analysis <idea-id> <file.json>",
	Short: "Store an analysis for an idea from a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var an repo.Analysis
		if err := readJSONFile(args[1], &an); err != nil {
			return err
		}
		an.IdeaID = args[0]
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			if _, err := a.repo.GetIdea(ctx, args[0]); err != nil {
				return err
			}
			if err := a.repo.PutAnalysis(ctx, an); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored analysis for %s\n", args[0])
			return nil
		})
	},
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Manage content calendars",
}

var calendarImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Create a calendar and its pieces from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var c repo.Calendar
		if err := readJSONFile(args[0], &c); err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			if _, err := a.repo.GetIdea(ctx, c.IdeaID); err != nil {
				return err
			}
			cal, err := a.repo.CreateCalendar(ctx, c)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), cal)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created calendar %s with %d piece(s)\n", cal.ID, len(cal.Pieces))
			return nil
		})
	},
}

var calendarShowCmd = &cobra.Command{
	Use:   "show <calendar-id>",
	Short: "Show a calendar and the state of its pieces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			cal, err := a.repo.GetCalendar(ctx, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, cal)
			}
			fmt.Fprintf(w, "%s  %s  (idea %s, priority %d)\n", cal.ID, cal.Title, cal.IdeaID, cal.Priority)
			tw := newTable(w, "Piece", "Title", "Type", "Priority", "Status", "Version", "Published")
			for _, p := range cal.Pieces {
				published, err := a.repo.IsPublished(ctx, p.ID)
				if err != nil {
					return err
				}
				tw.AppendRow([]interface{}{p.ID, truncateCell(p.Title, 40), p.Type, p.Priority, p.Status, p.Version, published})
			}
			tw.Render()
			return nil
		})
	},
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func init() {
	ideaCreateCmd.Flags().String("id", "", "idea id (default generated)")
	ideaCreateCmd.Flags().String("title", "", "idea title")
	ideaCreateCmd.Flags().String("summary", "", "one-paragraph summary")
	ideaCreateCmd.Flags().String("audience", "", "target audience")
	ideaCreateCmd.MarkFlagRequired("title")

	ideaCmd.AddCommand(ideaCreateCmd)
	ideaCmd.AddCommand(ideaListCmd)
	ideaCmd.AddCommand(ideaShowCmd)
	ideaCmd.AddCommand(ideaDocumentCmd)
	ideaCmd.AddCommand(ideaImportAnalysisCmd)

	calendarCmd.AddCommand(calendarImportCmd)
	calendarCmd.AddCommand(calendarShowCmd)
}
