package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/observability"
)

func newFlakyCmd(provider storeProvider) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	flakyCmd := &cobra.Command{
		Use:   "flaky",
		Short: "List test cases that failed recently, most failures first",
		Long: `Queries the results database for test cases with at least one failed or broken
result inside the window and prints their failure and run counts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runFlaky(ctx, cfg, provider, time.Now().Add(-since), limit, cmd.OutOrStdout())
		},
	}

	flakyCmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "how far back to look")
	flakyCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of test cases to list")
	flakyCmd.Flags().String("database-url", "", "PostgreSQL URL holding run results")
	return flakyCmd
}

// runFlaky prints the flaky test table for results started after since.
func runFlaky(ctx context.Context, cfg config.Interface, provider storeProvider, since time.Time, limit int, out io.Writer) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	flaky, err := st.FlakyTests(ctx, since, limit)
	if err != nil {
		return err
	}
	observability.GetLogger().Debug("Flaky query finished.", zap.Time("since", since), zap.Int("rows", len(flaky)))

	if len(flaky) == 0 {
		_, err := fmt.Fprintf(out, "No failures since %s.\n", since.Format(time.RFC3339))
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tFAILURES\tRUNS\tRATE")
	for _, f := range flaky {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\n", f.FullName, f.Failures, f.Runs, 100*float64(f.Failures)/float64(f.Runs))
	}
	return tw.Flush()
}
