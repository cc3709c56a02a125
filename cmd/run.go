package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/config"
	"github.com/xkilldash9x/pagecheck/internal/driver"
	"github.com/xkilldash9x/pagecheck/internal/executor"
	"github.com/xkilldash9x/pagecheck/internal/observability"
	"github.com/xkilldash9x/pagecheck/internal/plugins"
	"github.com/xkilldash9x/pagecheck/internal/resolver"
	"github.com/xkilldash9x/pagecheck/internal/session"
	"github.com/xkilldash9x/pagecheck/internal/store"
)

// newLauncher is swapped out in tests so no real browser is started.
var newLauncher = func(cfg *config.Config, logger *zap.Logger) browser.Launcher {
	return browser.NewChromeLauncher(cfg.Browser, cfg.Executor, logger)
}

// app bundles the components one invocation shares across all of its reports.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *plugins.Registry
	validator *command.Validator
	driver    *driver.Driver
}

func newApp(cfg *config.Config, logger *zap.Logger) *app {
	registry := plugins.NewDefaultRegistry(logger)
	validator := command.NewValidator(cfg.Browser.EngineNames(), registry)
	launcher := newLauncher(cfg, logger)
	res := resolver.New(cfg.Executor.TextWait, cfg.Executor.PollInterval, logger)

	build := func() (driver.Session, driver.Runner) {
		sess := session.NewManager(launcher, cfg.Browser, cfg.Navigation, logger)
		return sess, executor.New(sess, res, registry, validator, cfg.Executor, logger)
	}
	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		validator: validator,
		driver:    driver.New(validator, registry, build, logger),
	}
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var batchPath string

	runCmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Executes a script, once or once per host of a batch",
		Long: `Executes the acts of a JSON or YAML script against a live browser and writes one
JSON report per run. With --batch the script is replayed once per host, each url act
visiting the host's target.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runScript(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], batchPath, observability.GetLogger())
		},
	}

	runCmd.Flags().StringVarP(&batchPath, "batch", "b", "", "batch file of hosts to replay the script against")
	runCmd.Flags().StringP("output", "o", "reports", "directory the JSON reports are written to")
	runCmd.Flags().String("metrics-addr", "", "address to serve prometheus metrics on while running")
	runCmd.Flags().Bool("headless", true, "run the browser without a window")
	return runCmd
}

func runScript(ctx context.Context, out io.Writer, cfg *config.Config, scriptPath, batchPath string, logger *zap.Logger) error {
	script, err := driver.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	var batch *schemas.Batch
	if batchPath != "" {
		if batch, err = driver.LoadBatch(batchPath); err != nil {
			return err
		}
	}

	if cfg.Metrics.Addr != "" {
		stop, err := startMetrics(ctx, cfg.Metrics.Addr, logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics listener: %w", err)
		}
		defer stop()
	}

	var reports *store.Store
	if cfg.Store.DatabaseURL != "" {
		s, closePool, err := store.Connect(ctx, cfg.Store.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer closePool()
		reports = s
	}

	emit := func(r *schemas.Report) error {
		path, err := driver.WriteReport(cfg.Report.OutputDir, r, cfg.Report.Indent)
		if err != nil {
			return err
		}
		if reports != nil {
			// The file is already on disk, so a database outage only costs the copy.
			if err := reports.SaveReport(ctx, r); err != nil {
				logger.Error("Failed to persist report.", zap.String("report_id", r.ID), zap.Error(err))
			}
		}
		fmt.Fprintln(out, summarize(r, path))
		return nil
	}

	a := newApp(cfg, logger)
	if batch == nil {
		report, err := a.driver.RunScript(ctx, script)
		if report != nil {
			if emitErr := emit(report); emitErr != nil {
				return errors.Join(err, emitErr)
			}
		}
		return err
	}
	_, err = a.driver.RunBatch(ctx, script, batch, emit)
	return err
}

func startMetrics(ctx context.Context, addr string, logger *zap.Logger) (func(), error) {
	srv, err := observability.NewMetricsServer(addr, logger)
	if err != nil {
		return nil, err
	}
	metricsCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(metricsCtx); err != nil {
			logger.Warn("Metrics listener stopped.", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

// summarize renders the one-line outcome of a report.
func summarize(r *schemas.Report, path string) string {
	executed, failed := 0, 0
	for _, a := range r.Acts {
		if a.Executed() {
			executed++
		}
		if a.Error != "" {
			failed++
		}
	}
	line := fmt.Sprintf("report %s: %d/%d acts executed, %d with errors, %.1fs", r.ID, executed, len(r.Acts), failed, r.ElapsedSeconds)
	if r.Host != nil {
		line = fmt.Sprintf("%s [%s]", line, r.Host.Target)
	}
	if r.Fatal != "" {
		line += ", stopped: " + r.Fatal
	}
	return line + " -> " + path
}
