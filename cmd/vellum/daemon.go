package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/config"
	"github.com/vellum-dms/vellum/internal/scheduler"
	"github.com/vellum-dms/vellum/internal/telemetry"
)

// sweepIntervals maps sweep names to their daemon run intervals. The values
// are reloadable: editing config.yaml while the daemon runs takes effect on
// the next tick without a restart.
type sweepIntervals struct {
	mu        sync.RWMutex
	intervals map[string]time.Duration
}

func (si *sweepIntervals) get(name string) time.Duration {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.intervals[name]
}

func (si *sweepIntervals) set(name string, d time.Duration) {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.intervals[name] = d
}

// configIntervals reads the per-sweep intervals: config.yaml daemon section
// first, viper defaults (env overridable) as fallback.
func configIntervals(configDir string) map[string]time.Duration {
	out := map[string]time.Duration{
		"activation":      config.GetDuration("daemon.activation-interval"),
		"obsolescence":    config.GetDuration("daemon.obsolescence-interval"),
		"task-escalation": config.GetDuration("daemon.escalation-interval"),
		"periodic-review": config.GetDuration("daemon.review-interval"),
	}
	if configDir == "" {
		return out
	}
	local := config.LoadLocalConfig(configDir)
	overrides := map[string]string{
		"activation":      local.Daemon.ActivationInterval,
		"obsolescence":    local.Daemon.ObsolescenceInterval,
		"task-escalation": local.Daemon.EscalationInterval,
		"periodic-review": local.Daemon.ReviewInterval,
	}
	for name, raw := range overrides {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			WarnError("config.yaml daemon interval for %s: %v", name, err)
			continue
		}
		out[name] = d
	}
	return out
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "automation",
	Short:   "Run transition sweeps continuously",
	Long: `Run each automated sweep on its own timer until interrupted. Intervals
come from the daemon section of config.yaml and are re-read when the file
changes. An initial pass over all sweeps runs at startup.`,
	Run: func(cmd *cobra.Command, args []string) {
		sched := newScheduler()
		configDir, _ := config.FindConfigDir()

		si := &sweepIntervals{intervals: configIntervals(configDir)}

		// Initial catch-up pass so a restarted daemon processes anything
		// that came due while it was down.
		if summary, err := sched.Run(rootCtx); err == nil {
			recordRunMetrics(summary)
			logger.Info("startup pass complete",
				"processed", summary.Processed(), "failed", summary.Failed())
		} else if rootCtx.Err() != nil {
			return
		} else {
			WarnError("startup pass: %v", err)
		}

		if configDir != "" {
			go watchConfig(rootCtx, configDir, si)
		}

		var wg sync.WaitGroup
		for _, name := range sched.Sweeps() {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				runSweepLoop(rootCtx, sched, name, si)
			}(name)
		}

		fmt.Fprintf(os.Stderr, "vellum daemon running (Press Ctrl+C to stop)\n")
		wg.Wait()
		fmt.Fprintf(os.Stderr, "vellum daemon stopped\n")
	},
}

// runSweepLoop runs one sweep on its interval until the context ends. The
// timer is re-armed from the current interval each cycle, so config reloads
// apply on the next tick.
func runSweepLoop(ctx context.Context, sched *scheduler.Scheduler, name string, si *sweepIntervals) {
	for {
		interval := si.get(name)
		if interval <= 0 {
			interval = time.Hour
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		res, err := sched.RunSweep(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("sweep failed", "sweep", name, "error", err)
			continue
		}
		telemetry.RecordSweep(ctx, name, res.Processed, res.Failed)
		if res.Processed > 0 {
			logger.Info("sweep complete", "sweep", name,
				"processed", res.Processed, "failed", res.Failed)
		}
	}
}

// watchConfig reloads sweep intervals when config.yaml changes.
func watchConfig(ctx context.Context, configDir string, si *sweepIntervals) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		WarnError("config watcher: %v", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(configDir); err != nil {
		WarnError("watching %s: %v", configDir, err)
		return
	}

	// Debounce rapid editor write bursts.
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != "config.yaml" {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				for name, d := range configIntervals(configDir) {
					si.set(name, d)
				}
				logger.Info("reloaded daemon intervals from config.yaml")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			WarnError("config watcher: %v", err)
		}
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
