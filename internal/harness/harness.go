// Package harness runs go test suites against one shared browser session.
//
// A suite wires it from TestMain:
//
//	func TestMain(m *testing.M) { os.Exit(harness.Main(m)) }
//
// and each test opens a case:
//
//	func TestLogin(t *testing.T) {
//		c := harness.Begin(t, openLoginPage)
//		p := c.Page()
//		c.Require(p.Fill(c.Context(), driver.ID("email"), "a@b.c", page.First()), "fill email")
//	}
//
// Every case yields one report entry. Setup failures mark the case broken;
// failures in the test body capture a screenshot.
package harness

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/metrics"
	"github.com/xkilldash9x/uiharness/internal/network"
	"github.com/xkilldash9x/uiharness/internal/observability"
	"github.com/xkilldash9x/uiharness/internal/reporting"
	"github.com/xkilldash9x/uiharness/internal/session"
	"github.com/xkilldash9x/uiharness/internal/store"
)

const (
	storeSaveTimeout   = 30 * time.Second
	screenshotTimeout  = 30 * time.Second
	screenshotTimeFmt  = "2006-01-02_15-04-05"
	setupFailedMessage = "Setting up a test failed!"
)

// Runner is satisfied by *testing.M.
type Runner interface {
	Run() int
}

type options struct {
	flags    *Flags
	args     []string
	factory  session.Factory
	reporter reporting.Reporter
}

// Option customizes Main.
type Option func(*options)

// WithFlagSet parses args with fs instead of the process command line.
func WithFlagSet(fs *flag.FlagSet, args []string) Option {
	return func(o *options) {
		o.flags = RegisterFlags(fs)
		o.args = args
	}
}

// WithFactory replaces the default browser factory.
func WithFactory(f session.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithReporter replaces the configured reporters.
func WithReporter(r reporting.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

var (
	commandLineOnce  sync.Once
	commandLineFlags *Flags

	current atomic.Pointer[Harness]
)

// Main starts the session, runs m and tears everything down, returning the
// process exit code. A setup failure returns 1 before any test runs.
func Main(m Runner, opts ...Option) int {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.flags == nil {
		commandLineOnce.Do(func() { commandLineFlags = RegisterFlags(flag.CommandLine) })
		o.flags = commandLineFlags
		if !flag.Parsed() {
			flag.Parse()
		}
	} else if err := o.flags.fs.Parse(o.args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := start(ctx, o)
	if err != nil {
		observability.GetLogger().Error("Failed to start test session.", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	current.Store(h)
	defer current.Store(nil)

	code := m.Run()

	if err := h.Close(context.WithoutCancel(ctx)); err != nil {
		h.logger.Error("Teardown failed.", zap.Error(err))
		if code == 0 {
			code = 1
		}
	}
	return code
}

// start loads configuration, initializes logging, builds the session and the
// configured reporters.
func start(ctx context.Context, o *options) (*Harness, error) {
	v := viper.New()
	if err := o.flags.Bind(v); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, o.flags.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	observability.InitializeLogger(cfg.Logger())

	factory := o.factory
	if factory == nil {
		factory = session.DefaultFactory(cfg.Browser())
	}
	sess, err := session.Setup(ctx, cfg.Run(), cfg, factory)
	if err != nil {
		return nil, err
	}

	h := New(ctx, sess, cfg, o.reporter, metrics.New())
	if o.reporter == nil {
		if err := h.openReporters(ctx); err != nil {
			_ = sess.Close(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	return h, nil
}

// Harness binds test cases to a session and its reporters.
type Harness struct {
	ctx      context.Context
	cfg      config.Interface
	sess     *session.Session
	reporter reporting.Reporter
	metrics  *metrics.Metrics
	links    *http.Client
	logger   *zap.Logger
	now      func() time.Time
	closers  []func()
}

// New wraps an established session. A nil reporter discards results.
func New(ctx context.Context, sess *session.Session, cfg config.Interface, reporter reporting.Reporter, m *metrics.Metrics) *Harness {
	if reporter == nil {
		reporter = reporting.Multi()
	}
	if m == nil {
		m = metrics.New()
	}
	h := &Harness{
		ctx:      ctx,
		cfg:      cfg,
		sess:     sess,
		reporter: reporter,
		metrics:  m,
		logger:   sess.Logger().Named("harness"),
		now:      time.Now,
	}
	linkCfg, err := network.ClientConfigFrom(cfg.Links(), h.logger.Named("links"))
	if err != nil {
		h.logger.Warn("Using the default link check client.", zap.Error(err))
		linkCfg = network.NewDefaultClientConfig()
	}
	h.links = network.NewClient(linkCfg)
	return h
}

// Current returns the harness started by Main, nil outside of it.
func Current() *Harness { return current.Load() }

// Session returns the shared session.
func (h *Harness) Session() *session.Session { return h.sess }

// Metrics returns the run's collectors.
func (h *Harness) Metrics() *metrics.Metrics { return h.metrics }

func (h *Harness) openReporters(ctx context.Context) error {
	allure, err := reporting.NewAllureWriter(h.cfg.Artifacts().ReportDir)
	if err != nil {
		return err
	}
	reporters := []reporting.Reporter{allure}

	if url := h.cfg.Results().DatabaseURL; url != "" {
		st, closeDB, err := store.Open(ctx, url, h.logger)
		if err != nil {
			return fmt.Errorf("failed to open results database: %w", err)
		}
		if err := st.EnsureSchema(ctx); err != nil {
			closeDB()
			return err
		}
		h.closers = append(h.closers, closeDB)
		reporters = append(reporters, reporting.NewStoreReporter(st, h.sess.Options(), storeSaveTimeout))
	}
	h.reporter = reporting.Multi(reporters...)
	return nil
}

// Close quits the browser, flushes reporters and writes the metrics
// textfile when configured.
func (h *Harness) Close(ctx context.Context) error {
	var errs []error
	if err := h.sess.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session: %w", err))
	}
	if err := h.reporter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush reports: %w", err))
	}
	if path := h.cfg.Metrics().TextfilePath; path != "" {
		if err := h.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	h.links.CloseIdleConnections()
	for _, c := range h.closers {
		c()
	}
	observability.Sync()
	return errors.Join(errs...)
}
