package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/metrics"
	"github.com/xkilldash9x/uiharness/internal/observability"
	"github.com/xkilldash9x/uiharness/internal/reporting"
	"github.com/xkilldash9x/uiharness/internal/scenario"
	"github.com/xkilldash9x/uiharness/internal/session"
	"github.com/xkilldash9x/uiharness/internal/store"
)

const storeSaveTimeout = 30 * time.Second

// ErrScenariosFailed is returned when at least one scenario failed or broke.
var ErrScenariosFailed = errors.New("scenarios did not pass")

func newRunCmd(d deps) *cobra.Command {
	var jsonOut string

	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml|dir...]",
		Short: "Run YAML scenarios against the configured browser",
		Long: `Loads every scenario file (directories contribute their *.yaml and *.yml files),
opens a browser session per worker and reports each scenario to the Allure results
directory, the optional JSON summary and the optional results database.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			files, err := collectScenarioFiles(args, configFileFromContext(ctx))
			if err != nil {
				return err
			}
			_, err = runScenarios(ctx, cfg, files, d, jsonOut, cmd.ErrOrStderr())
			return err
		},
	}

	f := runCmd.Flags()
	f.Int("parallel", 0, "number of browser sessions running scenarios concurrently (default 1)")
	f.String("report-dir", "", "directory for Allure result files (default allure-results)")
	f.String("screenshot-dir", "", "directory for failure screenshots (default screenshots)")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	f.String("database-url", "", "PostgreSQL URL to store run results in")
	f.StringVar(&jsonOut, "json", "", "write a JSON summary to this file, or - for stdout")
	return runCmd
}

// collectScenarioFiles expands directories into their YAML files. Files are
// kept in argument order, directory contents sorted by name. A directory
// entry that is the config file itself is skipped.
func collectScenarioFiles(args []string, configFile string) ([]string, error) {
	skip := ""
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			skip = abs
		}
	}
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				if abs, err := filepath.Abs(m); err == nil && abs == skip {
					continue
				}
				found = append(found, m)
			}
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, errors.New("no scenario files found")
	}
	return files, nil
}

// runScenarios loads, executes and reports files. The summary line goes to
// out. A run where any scenario did not pass returns ErrScenariosFailed.
func runScenarios(ctx context.Context, cfg config.Interface, files []string, d deps, jsonOut string, out io.Writer) (reporting.Summary, error) {
	logger := observability.GetLogger().Named("run")

	scenarios, err := scenario.LoadAll(files)
	if err != nil {
		return reporting.Summary{}, fmt.Errorf("invalid scenarios: %w", err)
	}
	opts, err := schemas.ParseRunOptions(cfg.Run())
	if err != nil {
		return reporting.Summary{}, err
	}

	reporter, cleanup, err := openReporters(ctx, cfg, opts, d.stores, jsonOut)
	if err != nil {
		return reporting.Summary{}, err
	}
	defer cleanup()

	factory := d.factory
	if factory == nil {
		factory = session.DefaultFactory(cfg.Browser())
	}
	open := func(ctx context.Context) (*session.Session, error) {
		return session.Setup(ctx, cfg.Run(), cfg, factory)
	}

	m := metrics.New()
	logger.Info("Running scenarios.",
		zap.Int("count", len(scenarios)),
		zap.Int("parallel", cfg.Scenario().Parallel),
		zap.String("browser", opts.Browser.String()),
		zap.String("env", opts.Environment.String()))

	summary, _, runErr := scenario.NewExecutor(cfg, open, reporter, m, logger).RunAll(ctx, scenarios, cfg.Scenario().Parallel)

	errs := []error{runErr}
	if err := reporter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush reports: %w", err))
	}
	if path := cfg.Metrics().TextfilePath; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}

	fmt.Fprintf(out, "%d scenarios: %d passed, %d failed, %d broken (%s)\n",
		summary.Total, summary.Passed, summary.Failed, summary.Broken, summary.Duration.Round(time.Millisecond))

	if err := errors.Join(errs...); err != nil {
		return summary, err
	}
	if !summary.OK() {
		return summary, fmt.Errorf("%w: %d of %d", ErrScenariosFailed, summary.Failed+summary.Broken, summary.Total)
	}
	return summary, nil
}

// openReporters builds the Allure writer plus the JSON and database
// reporters when requested. cleanup releases the database connection.
func openReporters(ctx context.Context, cfg config.Interface, opts schemas.RunOptions, stores storeProvider, jsonOut string) (reporting.Reporter, func(), error) {
	cleanup := func() {}

	allure, err := reporting.NewAllureWriter(cfg.Artifacts().ReportDir)
	if err != nil {
		return nil, cleanup, err
	}
	reporters := []reporting.Reporter{allure}

	if jsonOut != "" {
		target := jsonOut
		if target == "-" {
			target = "stdout"
		}
		r, err := reporting.New("json", target, Version)
		if err != nil {
			return nil, cleanup, err
		}
		reporters = append(reporters, r)
	}

	if cfg.Results().DatabaseURL != "" {
		st, closeDB, err := stores.Create(ctx, cfg)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize store: %w", err)
		}
		if closeDB != nil {
			cleanup = closeDB
		}
		reporters = append(reporters, reporting.NewStoreReporter(st, opts, storeSaveTimeout))
	}
	return reporting.Multi(reporters...), cleanup, nil
}

// storeProvider creates the results store. It is replaced with a pgxmock
// backed store in tests.
type storeProvider interface {
	// Create returns a store with its schema in place and a function
	// releasing its connections.
	Create(ctx context.Context, cfg config.Interface) (*store.Store, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider connecting to PostgreSQL.
func NewStoreProvider() storeProvider {
	return defaultStoreProvider{}
}

func (defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (*store.Store, func(), error) {
	url := cfg.Results().DatabaseURL
	if url == "" {
		return nil, nil, fmt.Errorf("results database URL is not configured (%s_RESULTS_DATABASE_URL)", config.EnvPrefix)
	}
	logger := observability.GetLogger()
	st, closeDB, err := store.Open(ctx, url, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}
	return st, closeDB, nil
}
