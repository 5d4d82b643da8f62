package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/page"
)

// SetupFunc prepares a case before its body runs, e.g. navigating to the
// page under test or logging in.
type SetupFunc func(ctx context.Context, c *Case) error

// Case tracks one test: its phase, outcome and report entry.
type Case struct {
	t      testing.TB
	h      *Harness
	logger *zap.Logger
	result *schemas.TestResult

	setupFailed bool
	message     string
}

// Begin opens a case on the harness started by Main.
func Begin(t testing.TB, setups ...SetupFunc) *Case {
	t.Helper()
	h := Current()
	if h == nil {
		t.Fatal("harness not started: call harness.Main from TestMain")
		return nil
	}
	return h.Begin(t, setups...)
}

// Begin runs setups in order as the setup phase. The first failure logs
// "Setting up a test failed!", marks the case broken and fails t; no
// screenshot is taken for it. The report entry is written when t finishes.
func (h *Harness) Begin(t testing.TB, setups ...SetupFunc) *Case {
	t.Helper()
	c := &Case{
		t:      t,
		h:      h,
		logger: h.logger.With(zap.String("test", t.Name())),
		result: &schemas.TestResult{
			ID:       uuid.NewString(),
			Name:     baseName(t.Name()),
			FullName: t.Name(),
			Phase:    schemas.PhaseSetup,
			Start:    h.now(),
			Options:  h.sess.Options(),
		},
	}
	t.Cleanup(c.finish)

	for _, setup := range setups {
		err := setup(h.ctx, c)
		if err == nil && t.Failed() {
			// A Check inside the step failed without stopping it.
			msg := c.message
			if msg == "" {
				msg = "setup step failed"
			}
			err = errors.New(msg)
		}
		if err != nil {
			c.setupFailed = true
			c.message = fmt.Sprintf("%s %v", setupFailedMessage, err)
			c.logger.Error(setupFailedMessage, zap.Error(err))
			t.Fatal(c.message)
			return c
		}
	}
	c.result.Phase = schemas.PhaseCall
	return c
}

// Context is the run context, cancelled on interrupt.
func (c *Case) Context() context.Context { return c.h.ctx }

// Logger returns the case logger.
func (c *Case) Logger() *zap.Logger { return c.logger }

// Page builds a page bound to the session driver. See Harness.NewPage.
func (c *Case) Page(opts ...page.Option) *page.Page { return c.h.NewPage(opts...) }

// Check reports a failed interaction on t and continues.
func (c *Case) Check(res page.Result, what string) bool {
	c.t.Helper()
	if res.OK() {
		return true
	}
	c.fail(what, res)
	c.t.Error(c.message)
	return false
}

// Require reports a failed interaction on t and stops the test.
func (c *Case) Require(res page.Result, what string) {
	c.t.Helper()
	if res.OK() {
		return
	}
	c.fail(what, res)
	c.t.Fatal(c.message)
}

func (c *Case) fail(what string, res page.Result) {
	msg := fmt.Sprintf("%s: %s", what, res)
	if c.message == "" {
		c.message = msg
	}
}

func (c *Case) finish() {
	r := c.result
	r.Stop = c.h.now()
	r.Message = c.message

	switch {
	case c.t.Skipped():
		r.Status = schemas.StatusSkipped
	case r.Phase == schemas.PhaseSetup:
		// Still in setup: a step returned an error, stopped t or panicked.
		r.Status = schemas.StatusBroken
		if !c.setupFailed {
			r.Message = strings.TrimSpace(setupFailedMessage + " " + r.Message)
			c.logger.Error(setupFailedMessage, zap.String("reason", c.message))
		}
	case c.t.Failed():
		r.Status = schemas.StatusFailed
		if r.Message == "" {
			r.Message = "test failed"
		}
		if att, err := c.h.Screenshot(c.h.ctx); err != nil {
			c.logger.Warn("Failed to capture screenshot.", zap.Error(err))
		} else {
			r.Attachments = append(r.Attachments, att)
		}
	default:
		r.Status = schemas.StatusPassed
	}

	c.h.Report(c.h.ctx, r)
}

// NewPage builds a page bound to the session driver with the configured
// interaction settings, the session logger, the metrics observer and the
// link check client. opts are applied last.
func (h *Harness) NewPage(opts ...page.Option) *page.Page {
	base := []page.Option{
		page.FromConfig(h.cfg.Interaction()),
		page.WithLogger(h.sess.Logger().Named("page")),
		page.WithObserver(h.metrics.Observer()),
		page.WithHTTPClient(h.links),
	}
	return page.New(h.sess.Driver(), h.sess.Exec(), append(base, opts...)...)
}

// Report counts r and hands it to the reporters. Reporter errors are logged.
func (h *Harness) Report(ctx context.Context, r *schemas.TestResult) {
	h.metrics.RecordCase(r.Status)
	logger := h.logger.With(zap.String("test", r.FullName))
	if err := h.reporter.Write(context.WithoutCancel(ctx), r); err != nil {
		logger.Error("Failed to report test result.", zap.Error(err))
	}
	logger.Info("Test finished.", zap.String("status", string(r.Status)), zap.Duration("duration", r.Duration()))
}

// Screenshot captures the current window and saves it under the screenshot
// directory as <YYYY-MM-DD_HH-MM-SS>.png, adding a numeric suffix when that
// name is taken.
func (h *Harness) Screenshot(ctx context.Context) (schemas.Attachment, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	data, err := h.sess.Driver().Screenshot(ctx)
	if err != nil {
		return schemas.Attachment{}, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	path, err := h.saveScreenshot(data)
	if err != nil {
		return schemas.Attachment{}, fmt.Errorf("failed to save screenshot: %w", err)
	}
	h.logger.Info("Saved screenshot.", zap.String("path", path))
	return schemas.Attachment{Name: "Screenshot", MimeType: "image/png", Path: path, Data: data}, nil
}

func (h *Harness) saveScreenshot(data []byte) (string, error) {
	dir := h.cfg.Artifacts().ScreenshotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stamp := h.now().Format(screenshotTimeFmt)
	path := filepath.Join(dir, stamp+".png")
	// O_EXCL claims the name atomically. Parallel workers each have their own
	// harness but share the directory.
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			path = filepath.Join(dir, fmt.Sprintf("%s_%d.png", stamp, i))
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

// baseName strips parent test names: "TestA/sub_case" becomes "sub_case".
func baseName(full string) string {
	return full[strings.LastIndex(full, "/")+1:]
}
