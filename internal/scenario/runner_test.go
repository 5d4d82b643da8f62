package scenario

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/driver"
	"github.com/xkilldash9x/uiharness/internal/driver/drivertest"
	"github.com/xkilldash9x/uiharness/internal/harness"
	"github.com/xkilldash9x/uiharness/internal/metrics"
	"github.com/xkilldash9x/uiharness/internal/observability"
	"github.com/xkilldash9x/uiharness/internal/reporting"
	"github.com/xkilldash9x/uiharness/internal/session"
)

// -- Fixture --

const (
	loginPage = `<html><body>
<input id="email">
<a class="submit" href="https://app.test/dashboard">Sign in</a>
</body></html>`
	dashboardPage = `<html><body>
<h1 id="welcome">Welcome back</h1>
<div class="card">Orders</div>
<div class="card">Invoices</div>
<div class="card">Settings</div>
</body></html>`
)

type recordingReporter struct {
	mu      sync.Mutex
	results []*schemas.TestResult
}

func (r *recordingReporter) Write(_ context.Context, res *schemas.TestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *recordingReporter) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ArtifactsCfg.EnvDir = t.TempDir()
	cfg.ArtifactsCfg.ScreenshotDir = filepath.Join(t.TempDir(), "screenshots")
	cfg.InteractionCfg.Timeout = 200 * time.Millisecond
	cfg.InteractionCfg.PollInterval = 10 * time.Millisecond
	cfg.InteractionCfg.SettleDelay = 0
	cfg.InteractionCfg.WindowPollInterval = 10 * time.Millisecond
	cfg.InteractionCfg.WindowTimeout = 200 * time.Millisecond
	return cfg
}

func newSite() *drivertest.Driver {
	return drivertest.New().
		AddPage("https://app.test/login", loginPage).
		AddPage("https://app.test/dashboard", dashboardPage)
}

func openSession(ctx context.Context, cfg *config.Config, drv *drivertest.Driver) (*session.Session, error) {
	factory := func(context.Context, schemas.RunOptions, *zap.Logger) (driver.Driver, error) { return drv, nil }
	raw := schemas.RawRunOptions{Browser: "chrome", Client: "levelup", Environment: "stage1", Logging: "ERROR", Headless: "true"}
	return session.Setup(ctx, raw, cfg, factory)
}

type fixture struct {
	r   *Runner
	drv *drivertest.Driver
	rep *recordingReporter
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("BASE_URL", "https://app.test")

	cfg := testConfig(t)
	drv := newSite()
	sess, err := openSession(context.Background(), cfg, drv)
	require.NoError(t, err)

	rep := &recordingReporter{}
	h := harness.New(context.Background(), sess, cfg, rep, metrics.New())
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return &fixture{r: NewRunner(h), drv: drv, rep: rep, cfg: cfg}
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(doc))
	require.NoError(t, err)
	return sc
}

// -- Runner --

func TestRunner(t *testing.T) {
	t.Run("should pass a scenario whose steps all hold", func(t *testing.T) {
		f := newFixture(t)

		res := f.r.Run(context.Background(), mustParse(t, loginYAML))

		assert.Equal(t, schemas.StatusPassed, res.Status, res.Message)
		assert.Equal(t, schemas.PhaseCall, res.Phase)
		assert.Equal(t, "scenario/login", res.FullName)
		assert.Empty(t, res.Attachments)
		assert.Regexp(t, regexp.MustCompile(`^qa\+[A-Z0-9]{8}@example\.com$`), f.drv.Typed["email"])
		assert.Equal(t, []string{"Sign in"}, f.drv.Clicks)
		require.Len(t, f.rep.results, 1)
		assert.Same(t, res, f.rep.results[0])
	})

	t.Run("should stop at the first failing step with a screenshot", func(t *testing.T) {
		f := newFixture(t)
		sc := mustParse(t, `
name: cards
start: ${BASE_URL}/dashboard
steps:
  - action: expect_text
    locator: id=welcome
    expect: Welcome
  - action: expect_count
    locator: css=.card
    count: 4
  - action: refresh
`)
		res := f.r.Run(context.Background(), sc)

		assert.Equal(t, schemas.StatusFailed, res.Status)
		assert.True(t, strings.HasPrefix(res.Message, "step 2 (expect_count): "), res.Message)
		assert.Contains(t, res.Message, "matched 3 elements, want 4")
		require.Len(t, res.Attachments, 1)
		assert.Equal(t, "Screenshot", res.Attachments[0].Name)
		assert.FileExists(t, res.Attachments[0].Path)
		assert.Zero(t, f.drv.Refreshes, "steps after a failure are skipped")
	})

	t.Run("should report an unreachable start as broken", func(t *testing.T) {
		f := newFixture(t)
		f.drv.FailOn("Get", errors.New("net::ERR_NAME_NOT_RESOLVED"))

		res := f.r.Run(context.Background(), mustParse(t, loginYAML))

		assert.Equal(t, schemas.StatusBroken, res.Status)
		assert.Equal(t, schemas.PhaseSetup, res.Phase)
		assert.True(t, strings.HasPrefix(res.Message, "Setting up a test failed! "), res.Message)
		assert.Empty(t, res.Attachments)
		assert.Zero(t, f.drv.Screenshots)
	})

	t.Run("should attach named screenshots taken by a step", func(t *testing.T) {
		f := newFixture(t)
		sc := mustParse(t, `
start: ${BASE_URL}/dashboard
steps:
  - action: screenshot
    value: dashboard
`)
		res := f.r.Run(context.Background(), sc)

		assert.Equal(t, schemas.StatusPassed, res.Status, res.Message)
		require.Len(t, res.Attachments, 1)
		assert.Equal(t, "dashboard", res.Attachments[0].Name)
		assert.Equal(t, drivertest.PNG, res.Attachments[0].Data)
	})

	t.Run("should check link status codes", func(t *testing.T) {
		f := newFixture(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/gone" {
				w.WriteHeader(http.StatusGone)
			}
		}))
		defer srv.Close()
		t.Setenv("API", srv.URL)

		ok := f.r.Run(context.Background(), mustParse(t, `
start: ${BASE_URL}/login
steps:
  - action: expect_status
    value: ${API}/health
  - action: expect_status
    value: ${API}/gone
    status: 410
`))
		assert.Equal(t, schemas.StatusPassed, ok.Status, ok.Message)

		bad := f.r.Run(context.Background(), mustParse(t, `
start: ${BASE_URL}/login
steps:
  - action: expect_status
    value: ${API}/gone
`))
		assert.Equal(t, schemas.StatusFailed, bad.Status)
		assert.Contains(t, bad.Message, "returned 410, want 200")
	})
}

func TestExpand(t *testing.T) {
	f := newFixture(t)
	p := f.r.h.NewPage()
	t.Setenv("ORG", "acme")

	assert.Equal(t, "https://app.test/acme", expand(p, "${BASE_URL}/${ORG}"))
	assert.Equal(t, "/", expand(p, "${UNSET_VARIABLE}/"))
	assert.Len(t, expand(p, "${RANDOM}"), randomLength)
	assert.Len(t, expand(p, "${RANDOM_3}"), 3)
	assert.NotEqual(t, expand(p, "${RANDOM_16}"), expand(p, "${RANDOM_16}"))
}

// -- Executor --

func TestExecutor(t *testing.T) {
	scenarios := func(t *testing.T, n int) []*Scenario {
		out := make([]*Scenario, n)
		for i := range out {
			out[i] = mustParse(t, loginYAML)
			out[i].Name = string(rune('a' + i))
		}
		return out
	}

	newExecutor := func(t *testing.T, openErr error) (*Executor, *int, *recordingReporter) {
		t.Cleanup(observability.ResetForTest)
		t.Setenv("BASE_URL", "https://app.test")
		cfg := testConfig(t)
		rep := &recordingReporter{}
		var (
			mu     sync.Mutex
			opened int
		)
		open := func(ctx context.Context) (*session.Session, error) {
			if openErr != nil {
				return nil, openErr
			}
			mu.Lock()
			opened++
			mu.Unlock()
			return openSession(ctx, cfg, newSite())
		}
		return NewExecutor(cfg, open, rep, metrics.New(), zap.NewNop()), &opened, rep
	}

	t.Run("should share one session when running serially", func(t *testing.T) {
		e, opened, rep := newExecutor(t, nil)

		summary, results, err := e.RunAll(context.Background(), scenarios(t, 3), 1)

		require.NoError(t, err)
		assert.Equal(t, 1, *opened)
		assert.Equal(t, reporting.Summary{Total: 3, Passed: 3, Duration: summary.Duration}, summary)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.Equal(t, string(rune('a'+i)), r.Name, "results keep input order")
		}
		assert.Len(t, rep.results, 3)
	})

	t.Run("should open one session per worker", func(t *testing.T) {
		e, opened, _ := newExecutor(t, nil)

		summary, results, err := e.RunAll(context.Background(), scenarios(t, 5), 3)

		require.NoError(t, err)
		assert.Equal(t, 3, *opened)
		assert.True(t, summary.OK())
		require.Len(t, results, 5)
		for i, r := range results {
			assert.Equal(t, string(rune('a'+i)), r.Name)
		}
	})

	t.Run("should never open more sessions than scenarios", func(t *testing.T) {
		e, opened, _ := newExecutor(t, nil)

		_, results, err := e.RunAll(context.Background(), scenarios(t, 2), 8)

		require.NoError(t, err)
		assert.Equal(t, 2, *opened)
		assert.Len(t, results, 2)
	})

	t.Run("should return the error when a session cannot start", func(t *testing.T) {
		e, _, rep := newExecutor(t, errors.New("chromedriver not found"))

		_, results, err := e.RunAll(context.Background(), scenarios(t, 2), 1)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "chromedriver not found")
		assert.Empty(t, results)
		assert.Empty(t, rep.results)
	})
}
