package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [scenario.yaml|dir...]",
		Short: "Check run options and scenario files without starting a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runValidate(cfg, args, configFileFromContext(cmd.Context()), cmd.OutOrStdout())
		},
	}
}

// runValidate parses the run options and every scenario, printing what
// would run. All invalid scenarios are reported together.
func runValidate(cfg config.Interface, args []string, configFile string, out io.Writer) error {
	opts, err := schemas.ParseRunOptions(cfg.Run())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run options: browser=%s client=%s env=%s logging=%s headless=%t\n",
		opts.Browser, opts.Client, opts.Environment, opts.LogLevel, opts.Headless)

	if len(args) == 0 {
		return nil
	}
	files, err := collectScenarioFiles(args, configFile)
	if err != nil {
		return err
	}
	scenarios, err := scenario.LoadAll(files)
	for _, sc := range scenarios {
		fmt.Fprintf(out, "%s: %s, %d steps\n", sc.Path, sc.Name, len(sc.Steps))
	}
	if err != nil {
		return fmt.Errorf("invalid scenarios: %w", err)
	}
	return nil
}
