package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ideaforge/internal/repo"
)

var canvasCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Track an idea's assumptions on the validation canvas",
	Long: `The validation canvas holds five assumptions (demand, reachability,
engagement, willingness-to-pay, differentiation), each tested against a
numeric threshold. Invalidated assumptions can be pivoted; a killed canvas
rejects every further change.`,
}

var canvasGenerateCmd = &cobra.Command{
	Use:   "generate <idea-id>",
	Short: "Derive the canvas from the idea's analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			c, err := a.canvas.Generate(ctx, args[0])
			if err != nil {
				return err
			}
			return printCanvas(cmd.OutOrStdout(), c)
		})
	},
}

var canvasShowCmd = &cobra.Command{
	Use:   "show <idea-id>",
	Short: "Show the canvas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			c, err := a.canvas.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printCanvas(cmd.OutOrStdout(), c)
		})
	},
}

var canvasSuggestCmd = &cobra.Command{
	Use:   "suggest <idea-id> <assumption>",
	Short: "Ask the model for pivot suggestions for one assumption",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			s, err := a.canvas.SuggestPivots(ctx, args[0], repo.AssumptionType(args[1]))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, s)
			}
			tw := newTable(w, "#", "Title", "New statement")
			for i, p := range s {
				tw.AppendRow([]interface{}{i, p.Title, truncateCell(p.NewStatement, 70)})
			}
			tw.Render()
			fmt.Fprintf(w, "Apply one with `forge canvas pivot %s %s <#>`.\n", args[0], args[1])
			return nil
		})
	},
}

var canvasPivotCmd = &cobra.Command{
	Use:   "pivot <idea-id> <assumption> <index>",
	Short: "Apply a stored pivot suggestion",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[2])
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			c, err := a.canvas.ApplyPivot(ctx, args[0], repo.AssumptionType(args[1]), index)
			if err != nil {
				return err
			}
			return printCanvas(cmd.OutOrStdout(), c)
		})
	},
}

var canvasEvidenceCmd = &cobra.Command{
	Use:   "evidence <idea-id> <assumption>",
	Short: "Attach evidence to an assumption",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		metric, _ := cmd.Flags().GetString("metric")
		value, _ := cmd.Flags().GetFloat64("value")
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			c, err := a.canvas.AddEvidence(ctx, args[0], repo.AssumptionType(args[1]),
				repo.Evidence{Note: note, Metric: metric, Value: value})
			if err != nil {
				return err
			}
			return printCanvas(cmd.OutOrStdout(), c)
		})
	},
}

var canvasEvaluateCmd = &cobra.Command{
	Use:   "evaluate <idea-id>",
	Short: "Decide testing assumptions against measured metrics",
	Long: `Evaluate compares metrics (name=value) with each testing assumption's
threshold once its window has elapsed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics, err := parseMetrics(mustStrings(cmd, "metric"))
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			changes, err := a.canvas.Evaluate(ctx, args[0], metrics)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, changes)
			}
			if len(changes) == 0 {
				fmt.Fprintln(w, "No assumption changed.")
				return nil
			}
			for _, ch := range changes {
				fmt.Fprintf(w, "%s: %s -> %s\n", ch.Type, ch.From, ch.To)
			}
			return nil
		})
	},
}

var canvasKillCmd = &cobra.Command{
	Use:   "kill <idea-id>",
	Short: "Kill the idea; the canvas becomes read-only",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			c, err := a.canvas.Kill(ctx, args[0], reason)
			if err != nil {
				return err
			}
			return printCanvas(cmd.OutOrStdout(), c)
		})
	},
}

func parseMetrics(pairs []string) (map[string]float64, error) {
	metrics := make(map[string]float64, len(pairs))
	for _, p := range splitList(pairs) {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid metric %q (want name=value)", p)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid metric %q: %w", p, err)
		}
		metrics[strings.TrimSpace(name)] = v
	}
	return metrics, nil
}

func printCanvas(w io.Writer, c *repo.Canvas) error {
	if jsonOutput() {
		return printJSON(w, c)
	}
	fmt.Fprintf(w, "Canvas for %s: %s\n", c.IdeaID, c.Status)
	if c.Status == repo.CanvasKilled {
		fmt.Fprintf(w, "killed: %s\n", c.KilledReason)
	}
	tw := newTable(w, "Assumption", "Status", "Statement", "Evidence", "Threshold")
	for _, as := range c.Assumptions {
		th := ""
		if as.Threshold.Metric != "" {
			th = fmt.Sprintf("%s >= %g in %dd", as.Threshold.Metric, as.Threshold.ValidateAt, as.Threshold.WindowDays)
		}
		tw.AppendRow([]interface{}{as.Type, as.Status, truncateCell(as.Statement, 60), len(as.Evidence), th})
	}
	tw.Render()
	if n := len(c.PivotHistory); n > 0 {
		fmt.Fprintf(w, "%d pivot(s) applied\n", n)
	}
	return nil
}

func init() {
	canvasEvidenceCmd.Flags().String("note", "", "what was observed")
	canvasEvidenceCmd.Flags().String("metric", "", "metric name the evidence measures")
	canvasEvidenceCmd.Flags().Float64("value", 0, "measured value")
	canvasEvidenceCmd.MarkFlagRequired("note")

	canvasEvaluateCmd.Flags().StringSlice("metric", nil, "measured metric as name=value (repeatable)")

	canvasKillCmd.Flags().String("reason", "", "why the idea is being killed")
	canvasKillCmd.MarkFlagRequired("reason")

	canvasCmd.AddCommand(canvasGenerateCmd)
	canvasCmd.AddCommand(canvasShowCmd)
	canvasCmd.AddCommand(canvasSuggestCmd)
	canvasCmd.AddCommand(canvasPivotCmd)
	canvasCmd.AddCommand(canvasEvidenceCmd)
	canvasCmd.AddCommand(canvasEvaluateCmd)
	canvasCmd.AddCommand(canvasKillCmd)
}
