package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ideaforge/internal/foundation"
	"github.com/lucasnoah/ideaforge/internal/orchestrator"
	"github.com/lucasnoah/ideaforge/internal/pipeline"
)

var foundationCmd = &cobra.Command{
	Use:   "foundation",
	Short: "Generate foundation documents for an idea",
}

var foundationGenerateCmd = &cobra.Command{
	Use:   "generate <idea-id>",
	Short: "Generate foundation documents in dependency order",
	Long: `Generate foundation documents for an idea. With no --kind every document is
generated; otherwise the requested kinds run in dependency order. A document
whose prerequisites are not complete is marked as failed and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := foundation.ParseList(splitList(mustStrings(cmd, "kind")))
		if err != nil {
			return err
		}
		return runPipeline(cmd, orchestrator.Subject(orchestrator.KindFoundation, args[0]),
			func(ctx context.Context, a *app) (*orchestrator.RunResult, error) {
				return a.scheduler.RunFoundation(ctx, args[0], kinds)
			})
	},
}

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Generate content pieces for a calendar",
}

var contentGenerateCmd = &cobra.Command{
	Use:   "generate <calendar-id>",
	Short: "Generate the pieces of a content calendar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := splitList(mustStrings(cmd, "piece"))
		return runPipeline(cmd, orchestrator.Subject(orchestrator.KindContent, args[0]),
			func(ctx context.Context, a *app) (*orchestrator.RunResult, error) {
				return a.scheduler.RunContent(ctx, args[0], ids)
			})
	},
}

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run the research pipeline for an idea",
}

var researchRunCmd = &cobra.Command{
	Use:   "run <idea-id>",
	Short: "Run the research steps and store the synthesized analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, orchestrator.Subject(orchestrator.KindResearch, args[0]),
			func(ctx context.Context, a *app) (*orchestrator.RunResult, error) {
				return a.scheduler.RunResearch(ctx, args[0])
			})
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Inspect, resume and reset pipeline runs",
	Long: `Pipeline subjects have the form <kind>:<id>, where kind is foundation,
content or research.`,
}

var pipelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			runs, err := a.store.List(ctx, pipeline.Status(status))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if jsonOutput() {
				return printJSON(w, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(w, "No pipeline runs.")
				return nil
			}
			tw := newTable(w, "Subject", "Status", "Progress", "Current step", "Updated")
			for _, p := range runs {
				tw.AppendRow([]interface{}{
					p.Subject, p.Status,
					fmt.Sprintf("%d/%d", len(p.CompletedIDs), len(p.Planned)),
					p.CurrentStep, p.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			tw.Render()
			return nil
		})
	},
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status <subject>",
	Short: "Show the progress of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := orchestrator.ParseSubject(args[0]); err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			p, err := a.scheduler.Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printProgress(cmd.OutOrStdout(), p)
		})
	},
}

var pipelineResumeCmd = &cobra.Command{
	Use:   "resume <subject>",
	Short: "Resume a paused or abandoned run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := orchestrator.ParseSubject(args[0]); err != nil {
			return err
		}
		return runPipeline(cmd, args[0], func(ctx context.Context, a *app) (*orchestrator.RunResult, error) {
			return a.scheduler.Resume(ctx, args[0])
		})
	},
}

var pipelineResetCmd = &cobra.Command{
	Use:   "reset <subject>",
	Short: "Discard a run's progress so the next run starts fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := orchestrator.ParseSubject(args[0]); err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
			if err := a.scheduler.Reset(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", args[0])
			return nil
		})
	},
}

// runPipeline executes one run under the invocation budget. An interrupt
// pauses the run rather than failing it.
func runPipeline(cmd *cobra.Command, subject string, run func(context.Context, *app) (*orchestrator.RunResult, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, cmd.ErrOrStderr(), func(ctx context.Context, a *app) error {
		if fresh, _ := cmd.Flags().GetBool("fresh"); fresh {
			if err := a.scheduler.Reset(ctx, subject); err != nil {
				return err
			}
		}
		a.startBudget()
		res, err := run(ctx, a)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput() {
			return printJSON(w, res)
		}
		printResult(w, res)
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d item(s) failed", len(res.Failed))
		}
		return nil
	})
}

func printResult(w io.Writer, res *orchestrator.RunResult) {
	if res.AlreadyRunning {
		fmt.Fprintf(w, "%s is already running in another worker\n", res.Subject)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", res.Subject, res.Status)
	if len(res.Completed) > 0 {
		fmt.Fprintf(w, "  completed: %s\n", strings.Join(res.Completed, ", "))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped:   %s\n", strings.Join(res.Skipped, ", "))
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(w, "  failed:    %s\n", strings.Join(res.Failed, ", "))
	}
	if res.Paused {
		fmt.Fprintf(w, "Paused. Run `forge pipeline resume %s` to continue.\n", res.Subject)
	}
}

func printProgress(w io.Writer, p *pipeline.Progress) error {
	if jsonOutput() {
		return printJSON(w, p)
	}
	fmt.Fprintf(w, "%s  %s  (%d/%d complete)\n", p.Subject, p.Status, len(p.CompletedIDs), len(p.Planned))
	if p.Error != "" {
		fmt.Fprintf(w, "error: %s\n", p.Error)
	}
	if len(p.Steps) == 0 {
		return nil
	}
	tw := newTable(w, "Item", "Step", "Status", "Detail")
	for _, s := range p.Steps {
		tw.AppendRow([]interface{}{s.ID, s.Name, s.Status, truncateCell(s.Detail, 60)})
	}
	tw.Render()
	return nil
}

func mustStrings(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetStringSlice(name)
	return v
}

func init() {
	foundationGenerateCmd.Flags().StringSlice("kind", nil, "document kinds to generate (default all)")
	foundationGenerateCmd.Flags().Bool("fresh", false, "discard earlier progress first")
	foundationCmd.AddCommand(foundationGenerateCmd)

	contentGenerateCmd.Flags().StringSlice("piece", nil, "piece ids to generate (default all)")
	contentGenerateCmd.Flags().Bool("fresh", false, "discard earlier progress first")
	contentCmd.AddCommand(contentGenerateCmd)

	researchRunCmd.Flags().Bool("fresh", false, "discard earlier progress first")
	researchCmd.AddCommand(researchRunCmd)

	pipelineListCmd.Flags().String("status", "", "filter by status (pending, running, paused, complete, error)")
	pipelineCmd.AddCommand(pipelineListCmd)
	pipelineCmd.AddCommand(pipelineStatusCmd)
	pipelineCmd.AddCommand(pipelineResumeCmd)
	pipelineCmd.AddCommand(pipelineResetCmd)
}
