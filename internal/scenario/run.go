package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/harness"
	"github.com/xkilldash9x/uiharness/internal/metrics"
	"github.com/xkilldash9x/uiharness/internal/page"
	"github.com/xkilldash9x/uiharness/internal/reporting"
	"github.com/xkilldash9x/uiharness/internal/session"
)

// OpenFunc starts a browser session for one worker.
type OpenFunc func(ctx context.Context) (*session.Session, error)

// Executor distributes scenarios over one or more sessions. Every worker
// owns its session; reporters and metrics are shared.
type Executor struct {
	cfg      config.Interface
	open     OpenFunc
	reporter reporting.Reporter
	metrics  *metrics.Metrics
	pageOpts []page.Option
	logger   *zap.Logger
}

// NewExecutor creates an executor. The caller closes reporter.
func NewExecutor(cfg config.Interface, open OpenFunc, reporter reporting.Reporter, m *metrics.Metrics, logger *zap.Logger, pageOpts ...page.Option) *Executor {
	return &Executor{
		cfg:      cfg,
		open:     open,
		reporter: reporter,
		metrics:  m,
		pageOpts: pageOpts,
		logger:   logger.Named("executor"),
	}
}

// RunAll runs every scenario and returns their results in input order.
// parallel below 2 shares one session across all scenarios; otherwise up to
// parallel workers each open their own. Scenario failures are reported in
// the results; the error is reserved for sessions that could not start.
func (e *Executor) RunAll(ctx context.Context, scenarios []*Scenario, parallel int) (reporting.Summary, []*schemas.TestResult, error) {
	results := make([]*schemas.TestResult, len(scenarios))
	workers := max(1, min(parallel, len(scenarios)))

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers + 1)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			sess, err := e.open(gctx)
			if err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			defer func() {
				if err := sess.Close(context.WithoutCancel(gctx)); err != nil {
					e.logger.Warn("Failed to close worker session.", zap.Int("worker", w), zap.Error(err))
				}
			}()

			h := harness.New(gctx, sess, e.cfg, e.reporter, e.metrics)
			r := NewRunner(h, e.pageOpts...)
			for i := range jobs {
				results[i] = r.Run(gctx, scenarios[i])
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := range scenarios {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	err := g.Wait()

	var summary reporting.Summary
	done := make([]*schemas.TestResult, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		summary.Add(r)
		done = append(done, r)
	}
	if err != nil {
		return summary, done, err
	}
	e.logger.Info("Scenarios finished.",
		zap.Int("total", summary.Total),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("broken", summary.Broken))
	return summary, done, nil
}
