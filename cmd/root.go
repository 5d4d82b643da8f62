package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/observability"
	"github.com/xkilldash9x/uiharness/internal/session"
)

type ctxKey int

const (
	// configKey stores the loaded config.Interface in a command's context.
	configKey ctxKey = iota
	// configFileKey stores the path of the config file that was read, if any.
	configFileKey
)

// flagKeys maps command line flags to configuration keys. Only flags present
// on the executing command are bound.
var flagKeys = map[string]string{
	"browser":        "run.browser",
	"client":         "run.client",
	"env":            "run.env",
	"logging":        "run.logging",
	"headless":       "run.headless",
	"parallel":       "scenario.parallel",
	"report-dir":     "artifacts.report_dir",
	"screenshot-dir": "artifacts.screenshot_dir",
	"metrics-file":   "metrics.textfile_path",
	"database-url":   "results.database_url",
}

// deps are the collaborators subcommands need, replaced in tests.
type deps struct {
	factory session.Factory
	stores  storeProvider
}

// NewRootCommand builds the command tree with production dependencies.
func NewRootCommand() *cobra.Command {
	return newRootCmd(deps{stores: NewStoreProvider()})
}

func newRootCmd(d deps) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "uiharness",
		Short:         "uiharness drives browser UI tests and scenarios.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting uiharness", zap.String("version", Version))

			ctx := context.WithValue(cmd.Context(), configKey, config.Interface(cfg))
			cmd.SetContext(context.WithValue(ctx, configFileKey, v.ConfigFileUsed()))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	pf.String("browser", "", "browser to drive: chrome, edge, firefox, safari (default chrome)")
	pf.String("client", "", "client under test: levelup (default levelup)")
	pf.String("env", "", "environment: production, release, stage1 (default production)")
	pf.String("logging", "", "session log level: DEBUG, INFO, WARNING, ERROR (default INFO)")
	pf.String("headless", "", "run the browser without a window: true or false")
	pf.Lookup("headless").NoOptDefVal = "true"

	rootCmd.AddCommand(newRunCmd(d))
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newFlakyCmd(d.stores))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// bindFlags binds every known flag of fs to its configuration key. Unset
// flags carry empty defaults, so configuration values apply unless the flag
// is given.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// configFileFromContext returns the config file the root command read, or "".
func configFileFromContext(ctx context.Context) string {
	path, _ := ctx.Value(configFileKey).(string)
	return path
}

// Execute runs the root command with ctx, logging any failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}
