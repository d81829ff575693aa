package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vellum-dms/vellum/internal/config"
	"github.com/vellum-dms/vellum/internal/identity"
	"github.com/vellum-dms/vellum/internal/lifecycle"
	"github.com/vellum-dms/vellum/internal/notify"
	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/storage/sqlite"
	"github.com/vellum-dms/vellum/internal/telemetry"
)

var (
	dbPath      string
	actorFlag   string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	store  storage.Storage
	engine *lifecycle.Engine
	bus    *notify.Bus
	logger *slog.Logger

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noDbCommands run without opening a database.
var noDbCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

func isNoDbCommand(cmd *cobra.Command) bool {
	if noDbCommands[cmd.Name()] {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if noDbCommands[c.Name()] {
			return true
		}
	}
	return false
}

// getActor returns the actor for audit trails.
// Priority: --actor flag > VELLUM_ACTOR env > config actor > git config
// user.name > $USER > "unknown". The git identity is the natural default
// for developers unless explicitly overridden.
func getActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if v := os.Getenv("VELLUM_ACTOR"); v != "" {
		return v
	}
	if v := config.GetString("actor"); v != "" {
		return v
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return gitUser
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// resolveDBPath picks the database path.
// Priority: --db flag > VELLUM_DB env > config db > <configdir>/vellum.db >
// ./.vellum/vellum.db.
func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if v := os.Getenv("VELLUM_DB"); v != "" {
		return v
	}
	if v := config.GetString("db"); v != "" {
		return v
	}
	if dir, err := config.FindConfigDir(); err == nil {
		return filepath.Join(dir, "vellum.db")
	}
	return filepath.Join(config.ConfigDirName, "vellum.db")
}

func setupLogger() {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	} else if quietFlag {
		level = slog.LevelError
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func setupSignalContext() {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		rootCancel()
	}()
}

func engineOptions() lifecycle.Options {
	return lifecycle.Options{
		ReviewTaskTTL:   config.GetDuration("review-task-ttl"),
		ApprovalTaskTTL: config.GetDuration("approval-task-ttl"),
		ReviewInterval:  config.GetDuration("review-interval"),
	}
}

// rolesProvider loads the role policy. A missing roles file yields an empty
// policy; per-document roles (author, reviewer, approver) still apply.
func rolesProvider() identity.Provider {
	path := config.GetString("roles-file")
	if path == "" {
		if dir, err := config.FindConfigDir(); err == nil {
			path = filepath.Join(dir, "roles.toml")
		}
	}
	policy, err := identity.LoadPolicy(path)
	if err != nil {
		WarnError("loading roles file %s: %v", path, err)
		policy = &identity.Policy{}
	}
	return identity.NewResolver(policy)
}

func openStore(cmd *cobra.Command) {
	path := resolveDBPath()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			FatalError("creating database directory: %v", err)
		}
	}
	s, err := sqlite.New(rootCtx, path)
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("opening database %s: %v", path, err),
			"Pass --db or set VELLUM_DB to choose the database location")
	}
	store = telemetry.WrapStorage(s)

	bus = notify.New(logger)
	bus.Register(notify.NewLogHandler(logger))
	engine = lifecycle.New(store, rolesProvider(), bus, nil, logger, engineOptions())
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .vellum/vellum.db)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor name for audit trail (default: $VELLUM_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "documents", Title: "Working With Documents:"})
	rootCmd.AddGroup(&cobra.Group{ID: "workflow", Title: "Review & Approval Workflow:"})
	rootCmd.AddGroup(&cobra.Group{ID: "deps", Title: "Dependencies & Structure:"})
	rootCmd.AddGroup(&cobra.Group{ID: "audit", Title: "Audit & Compliance:"})
	rootCmd.AddGroup(&cobra.Group{ID: "automation", Title: "Automation:"})
}

var rootCmd = &cobra.Command{
	Use:   "vellum",
	Short: "vellum - Controlled document lifecycle manager",
	Long: `Regulated document control with a full review/approval lifecycle,
dependency tracking between documents, and an append-only audit trail.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("vellum version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
		setupSignalContext()

		if err := telemetry.Init(rootCtx, "vellum", Version); err != nil {
			WarnError("telemetry init: %v", err)
		}

		if isNoDbCommand(cmd) {
			return
		}
		openStore(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
