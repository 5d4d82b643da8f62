// Package session bootstraps one browser session for a test run: it
// validates the run options, loads the per-client environment file, names
// the run logger, builds exactly one driver and prepares its window.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/driver"
	"github.com/xkilldash9x/uiharness/internal/driver/cdp"
	"github.com/xkilldash9x/uiharness/internal/driver/w3c"
	"github.com/xkilldash9x/uiharness/internal/envfile"
	"github.com/xkilldash9x/uiharness/internal/observability"
)

// ErrUnsupportedBrowser is returned by a Factory for a browser it accepts as
// a value but cannot drive.
var ErrUnsupportedBrowser = errors.New("unsupported browser")

// Factory constructs the driver for validated run options.
type Factory func(ctx context.Context, opts schemas.RunOptions, logger *zap.Logger) (driver.Driver, error)

// DefaultFactory drives chrome and edge over the DevTools protocol and
// firefox through geckodriver. Safari is rejected.
func DefaultFactory(cfg config.BrowserConfig) Factory {
	return func(ctx context.Context, opts schemas.RunOptions, logger *zap.Logger) (driver.Driver, error) {
		switch opts.Browser {
		case schemas.BrowserChrome, schemas.BrowserEdge:
			d, err := cdp.New(ctx, cdp.OptionsFromConfig(opts.Browser, opts.Headless, cfg), logger)
			if err != nil {
				return nil, err
			}
			return d, nil
		case schemas.BrowserFirefox:
			d, err := w3c.New(ctx, w3c.OptionsFromConfig(opts.Headless, cfg), logger)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedBrowser, opts.Browser)
		}
	}
}

// Session owns the single driver of a run.
type Session struct {
	drv     driver.Driver
	opts    schemas.RunOptions
	logger  *zap.Logger
	envPath string

	closeOnce sync.Once
	closeErr  error
}

// Setup validates raw, loads the environment file for its client and
// environment, configures the run logger and constructs one driver through
// factory. Invalid options fail before the factory is called. The window is
// maximized and the implicit wait applied before the session is returned; a
// failure there quits the driver again.
func Setup(ctx context.Context, raw schemas.RawRunOptions, cfg config.Interface, factory Factory) (*Session, error) {
	opts, err := schemas.ParseRunOptions(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid run options: %w", err)
	}

	logger := observability.ForRun(string(opts.Client), string(opts.Environment), opts.LogLevel.ZapLevel())

	envPath, err := envfile.Load(string(opts.Client), string(opts.Environment), cfg.Artifacts().EnvDir, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting session.",
		zap.Stringer("browser", opts.Browser),
		zap.Bool("headless", opts.Headless),
		zap.String("env_file", envPath))

	drv, err := factory(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Browser, err)
	}

	if err := prepare(ctx, drv, cfg.Browser()); err != nil {
		if qerr := drv.Quit(context.WithoutCancel(ctx)); qerr != nil {
			logger.Warn("Failed to quit driver after setup error.", zap.Error(qerr))
		}
		return nil, err
	}

	return &Session{drv: drv, opts: opts, logger: logger, envPath: envPath}, nil
}

func prepare(ctx context.Context, drv driver.Driver, cfg config.BrowserConfig) error {
	if err := drv.Maximize(ctx); err != nil {
		return fmt.Errorf("failed to maximize window: %w", err)
	}
	if err := drv.SetImplicitWait(ctx, cfg.ImplicitWait); err != nil {
		return fmt.Errorf("failed to set implicit wait: %w", err)
	}
	return nil
}

// Driver returns the live driver handle.
func (s *Session) Driver() driver.Driver { return s.drv }

// Exec returns the execution context page objects are constructed with.
func (s *Session) Exec() schemas.ExecContext { return s.opts.Exec() }

// Logger returns the run logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Options returns the validated run options.
func (s *Session) Options() schemas.RunOptions { return s.opts }

// EnvFile returns the loaded environment file, "" when none was found.
func (s *Session) EnvFile() string { return s.envPath }

// Close quits the driver. Only the first call reaches the driver; later calls
// return the same error.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		s.closeErr = s.drv.Quit(ctx)
	})
	return s.closeErr
}
