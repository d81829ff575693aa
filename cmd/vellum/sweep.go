package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/config"
	"github.com/vellum-dms/vellum/internal/scheduler"
	"github.com/vellum-dms/vellum/internal/telemetry"
	"github.com/vellum-dms/vellum/internal/ui"
)

func newScheduler() *scheduler.Scheduler {
	return scheduler.New(store, engine, bus, nil, logger, scheduler.Options{
		Workers:        config.GetInt("scheduler.workers"),
		ReviewInterval: config.GetDuration("review-interval"),
		ReviewTaskTTL:  config.GetDuration("review-task-ttl"),
	})
}

var sweepCmd = &cobra.Command{
	Use:     "sweep [name]",
	GroupID: "automation",
	Short:   "Run scheduled transition sweeps once",
	Long: `Run the automated transition sweeps a daemon would run on a timer:
activation of approved documents, finalization of scheduled obsolescence,
escalation of overdue tasks, and opening of periodic reviews. With a sweep
name only that sweep runs.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sched := newScheduler()
		if len(args) == 1 {
			res, err := sched.RunSweep(rootCtx, args[0])
			if err != nil {
				FatalErrorRespectJSON("%v", err)
			}
			telemetry.RecordSweep(rootCtx, res.Name, res.Processed, res.Failed)
			if jsonOutput {
				printJSON(res)
				return
			}
			printSweepResult(res)
			return
		}
		summary, err := sched.Run(rootCtx)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		recordRunMetrics(summary)
		if jsonOutput {
			printJSON(summary)
			return
		}
		for _, res := range summary.Sweeps {
			printSweepResult(res)
		}
		fmt.Printf("%d processed, %d failed in %s\n",
			summary.Processed(), summary.Failed(), summary.Duration.Round(time.Millisecond))
	},
}

func recordRunMetrics(summary *scheduler.RunSummary) {
	for _, res := range summary.Sweeps {
		telemetry.RecordSweep(rootCtx, res.Name, res.Processed, res.Failed)
	}
	telemetry.RecordRun(rootCtx, summary.Duration)
}

func printSweepResult(res scheduler.SweepResult) {
	icon := ui.RenderPass(ui.IconPass)
	if res.Failed > 0 {
		icon = ui.RenderWarn(ui.IconWarn)
	}
	fmt.Printf("%s %-18s %d processed, %d succeeded, %d failed\n",
		icon, res.Name, res.Processed, res.Succeeded, res.Failed)
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
