package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/ideaforge/internal/trigger"
	"github.com/lucasnoah/ideaforge/internal/web"
	"github.com/lucasnoah/ideaforge/internal/worker"
)

// queueBacklog bounds how many triggered runs may wait for a worker.
const queueBacklog = 64

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger/poll API and run the cron trigger",
	Long: `Serve the HTTP API that triggers runs in the background and reports their
progress. Unless --no-cron is given the cron trigger also runs, resuming
abandoned runs (and paused ones when cron.resume_paused is set) and
publishing the next ready piece when cron.auto_publish is set.

Runs started here are not under budget.invocation_limit; they pause only on
shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		progress := cmd.ErrOrStderr()
		return withApp(ctx, progress, func(ctx context.Context, a *app) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			noCron, _ := cmd.Flags().GetBool("no-cron")

			queue := worker.NewQueue(a.cfg.Cron.Workers, queueBacklog)
			queue.SetProgress(progress)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := queue.Shutdown(shutdownCtx); err != nil {
					fmt.Fprintf(progress, "queue shutdown: %v\n", err)
				}
			}()

			h, err := web.New(web.Config{
				Repo:      a.repo,
				Scheduler: a.scheduler,
				Queue:     queue,
				Canvas:    a.canvas,
				Publisher: a.publisher,
				Runner:    a.runner,
				Events:    a.events,
				Version:   version,
			})
			if err != nil {
				return err
			}

			if !noCron {
				cron := trigger.NewCron(a.store, a.scheduler, a.publisher, queue, a.cfg.Cron)
				cron.SetProgress(progress)
				go func() {
					if err := cron.Run(ctx); err != nil {
						fmt.Fprintf(progress, "cron: %v\n", err)
					}
				}()
			}

			fmt.Fprintf(progress, "forge %s listening on %s\n", version, addr)
			return web.Serve(ctx, addr, h)
		})
	},
}

var cronCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one cron tick in the foreground and wait for its work",
	Long: `Run a single cron tick: resume abandoned (and, if configured, paused) runs
and publish the next ready piece when cron.auto_publish is set. Intended for
an external scheduler; the invocation budget applies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		progress := cmd.ErrOrStderr()
		return withApp(ctx, progress, func(ctx context.Context, a *app) error {
			a.startBudget()
			queue := worker.NewQueue(a.cfg.Cron.Workers, queueBacklog)
			queue.SetProgress(progress)
			cron := trigger.NewCron(a.store, a.scheduler, a.publisher, queue, a.cfg.Cron)
			cron.SetProgress(progress)

			res, tickErr := cron.Tick(ctx)
			// Shutdown drains the queue; an interrupt cancels whatever is
			// still running, which pauses it.
			if err := queue.Shutdown(ctx); err != nil {
				fmt.Fprintln(progress, "interrupted; running work paused")
			}
			if tickErr != nil {
				return tickErr
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed %d, skipped %d, publishing %v\n",
				len(res.Resumed), len(res.Skipped), res.Publishing)
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default server.addr)")
	serveCmd.Flags().Bool("no-cron", false, "do not run the cron trigger")
	rootCmd.AddCommand(cronCmd)
}
