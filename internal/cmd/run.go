package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/Iron-Ham/phasebuild/internal/changes"
	"github.com/Iron-Ham/phasebuild/internal/config"
	"github.com/Iron-Ham/phasebuild/internal/engine"
	"github.com/Iron-Ham/phasebuild/internal/errors"
	"github.com/Iron-Ham/phasebuild/internal/hooks"
	"github.com/Iron-Ham/phasebuild/internal/logging"
	"github.com/Iron-Ham/phasebuild/internal/orchestrator"
	"github.com/Iron-Ham/phasebuild/internal/plugins"
	"github.com/Iron-Ham/phasebuild/internal/telemetry"
	"github.com/Iron-Ham/phasebuild/internal/watch"
	"github.com/Iron-Ham/phasebuild/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [phase...]",
	Short: "Run phases across the workspace",
	Long: `Run the given phases, and every phase they depend on, for the selected
projects. Without phase arguments every phase runs.

Projects are selected with --to (the project and everything it depends on)
or --only (just the named projects). Without either, every project runs.

Examples:
  phasebuild run build
  phasebuild run test --to app
  phasebuild run build --only lib -p 50%
  phasebuild run build --watch`,
	RunE: runRun,
}

var (
	runTo            []string
	runOnly          []string
	runWatch         bool
	runNoIncremental bool
	runVerbose       bool
	runParams        []string
)

func init() {
	runCmd.Flags().StringSliceVarP(&runTo, "to", "t", nil, "Select projects and their dependencies")
	runCmd.Flags().StringSliceVarP(&runOnly, "only", "o", nil, "Select only the named projects")
	runCmd.Flags().StringP("parallelism", "p", "", `Maximum concurrent operations: "max", a number, or a percentage of CPUs`)
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Keep running and rebuild affected projects when files change")
	runCmd.Flags().Bool("timeline", false, "Print a parallelism timeline after every cycle")
	runCmd.Flags().Bool("clean", false, "Remove each phase's clean targets before the first cycle")
	runCmd.Flags().BoolVar(&runNoIncremental, "no-incremental", false, "Run every operation even when its inputs did not change")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print the output of successful operations")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Custom parameter passed to plugins as key=value (repeatable)")

	_ = viper.BindPFlag("execution.parallelism", runCmd.Flags().Lookup("parallelism"))
	_ = viper.BindPFlag("execution.clean", runCmd.Flags().Lookup("clean"))
	_ = viper.BindPFlag("timeline.enabled", runCmd.Flags().Lookup("timeline"))

	rootCmd.AddCommand(runCmd)
}

// environment is what every command loads before it does anything.
type environment struct {
	cfg       *config.Config
	workspace *workspace.Workspace
	logger    *logging.Logger
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ws, err := workspace.Load(cfg.Paths.WorkspaceFile)
	if err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(config.Resolve(ws.Root(), cfg.Logging.Dir), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}

	return &environment{cfg: cfg, workspace: ws, logger: logger}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Close() }()
	cfg := env.cfg

	params, err := parseParams(runParams)
	if err != nil {
		return err
	}
	parallelism, err := engine.ParseParallelism(cfg.Execution.Parallelism, runtime.NumCPU())
	if err != nil {
		return err
	}
	incremental := cfg.Execution.Incremental && !runNoIncremental

	analyzer, err := changes.NewAnalyzer(changes.Options{
		StateDir:  config.Resolve(env.workspace.Root(), cfg.Paths.StateDir),
		Ignore:    cfg.Watch.Ignore,
		Workspace: env.workspace,
		Logger:    env.logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	plugs := []hooks.Plugin{
		plugins.PhasedOperations{},
		&plugins.ConsoleStatus{Out: out, Verbose: runVerbose},
		&plugins.Telemetry{Parallelism: parallelism, Watch: runWatch, Incremental: incremental},
	}
	if cfg.Timeline.Enabled {
		plugs = append(plugs, &plugins.Timeline{Out: out, MaxWidth: cfg.Timeline.MaxWidth, Logger: env.logger})
	}

	var store *telemetry.Store
	if cfg.Telemetry.Enabled {
		store = telemetry.NewStore(config.Resolve(env.workspace.Root(), cfg.Telemetry.Dir))
	}

	source := &watcherSource{}
	opts := orchestrator.Options{
		Workspace:        env.workspace,
		Phases:           args,
		To:               runTo,
		Only:             runOnly,
		Parallelism:      parallelism,
		Incremental:      incremental,
		Clean:            cfg.Execution.Clean,
		CustomParameters: params,
		Watch:            runWatch,
		Analyzer:         analyzer,
		Plugins:          plugs,
		Telemetry:        store,
		Name:             strings.TrimSpace("run " + strings.Join(args, " ")),
		Logger:           env.logger,
	}
	if runWatch {
		opts.Changes = source
	}

	o, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runWatch {
		w, err := watch.New(o.WatchedProjects(), watch.Options{
			Root:     env.workspace.Root(),
			Ignore:   o.WatchIgnore(cfg.Watch.Ignore),
			Debounce: cfg.Watch.Debounce(),
			Logger:   env.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to start watching: %w", err)
		}
		w.Start()
		defer func() { _ = w.Close() }()
		source.watcher = w

		o.Hooks().WaitingForChanges.Tap("cli", func(struct{}) error {
			_, err := fmt.Fprintln(out, "\nWaiting for changes. Press Ctrl+C to exit.")
			return err
		})
	}

	result, err := o.Run(ctx)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		if err := result.Err(); errors.IsUserFacing(err) {
			return err
		}
		return fmt.Errorf("cycle finished with %s", result.Status())
	}
	return nil
}

// watcherSource lets the orchestrator be created before the watcher whose
// project list it determines.
type watcherSource struct {
	watcher *watch.Watcher
}

func (s *watcherSource) Wait(ctx context.Context) ([]*workspace.Project, error) {
	return s.watcher.Wait(ctx)
}

// parseParams turns key=value pairs into a map. Later pairs win.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
