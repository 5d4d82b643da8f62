package page

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

func currentURL(t *testing.T, p *Page) string {
	t.Helper()
	u, res := p.CurrentURL(context.Background())
	require.True(t, res.OK(), res.String())
	return u
}

// -- URL Polling --

func TestCheckForNewURL(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds once the fragment shows up", func(t *testing.T) {
		p, drv := setup(t)
		drv.ScriptURLs(appURL, appURL, "https://app.test/login/?next=home")
		res := p.CheckForNewURL(ctx, "/login/", 10*time.Millisecond, time.Second)
		assert.True(t, res.OK(), res.String())
	})

	t.Run("gives up after the limit", func(t *testing.T) {
		p, drv := setup(t)
		drv.ScriptURLs(appURL)

		limit := 200 * time.Millisecond
		interval := 20 * time.Millisecond
		start := time.Now()
		res := p.CheckForNewURL(ctx, "/checkout", interval, limit)
		elapsed := time.Since(start)

		assert.Equal(t, Timeout, res.Outcome)
		assert.ErrorIs(t, res.Err, ErrTimeout)
		assert.Contains(t, res.Err.Error(), appURL)
		assert.GreaterOrEqual(t, elapsed, limit-interval)
		assert.Less(t, elapsed, limit+10*interval)
	})

	t.Run("first check waits one interval", func(t *testing.T) {
		p, _ := setup(t)
		start := time.Now()
		res := p.CheckForNewURL(ctx, "app.test", 60*time.Millisecond, time.Second)
		require.True(t, res.OK())
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("defaults apply to zero arguments", func(t *testing.T) {
		p, _ := setup(t)
		assert.True(t, p.CheckForNewURL(ctx, "app.test", 0, 0).OK())
	})

	t.Run("cancellation ends the poll early", func(t *testing.T) {
		p, _ := setup(t)
		cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		res := p.CheckForNewURL(cctx, "/never", 10*time.Millisecond, time.Minute)
		assert.Equal(t, Failed, res.Outcome)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	})

	t.Run("page url joins base and path", func(t *testing.T) {
		p, drv := setup(t)
		drv.ScriptURLs("https://app.test/account/orders?page=2")
		assert.True(t, p.CheckPageURL(ctx, "https://app.test/account/", "orders").OK())
		assert.True(t, p.CheckPageURL(ctx, "https://app.test/somewhere/else", "/account/orders").OK())
		assert.Equal(t, Timeout, p.CheckPageURL(ctx, "https://app.test/", "cart").Outcome)
	})
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	p, drv := setup(t)

	require.True(t, p.GoTo(ctx, "https://app.test/about").OK())
	assert.Equal(t, "https://app.test/about", currentURL(t, p))

	require.True(t, p.Back(ctx).OK())
	assert.Equal(t, appURL, currentURL(t, p))

	require.True(t, p.Refresh(ctx).OK())
	assert.Equal(t, 1, drv.Refreshes)

	require.True(t, p.Maximize(ctx).OK())
	assert.True(t, drv.Maximized)

	drv.FailOn("Get", assert.AnError)
	res := p.GoTo(ctx, appURL)
	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, assert.AnError)
}

// -- Windows --

func TestSwitchWindows(t *testing.T) {
	ctx := context.Background()

	t.Run("times out without a second window", func(t *testing.T) {
		p, _ := setup(t)
		res := p.SwitchToNewWindow(ctx, 10*time.Millisecond, 60*time.Millisecond)
		assert.Equal(t, Timeout, res.Outcome)
		assert.Contains(t, res.Err.Error(), "have 1")
	})

	t.Run("switches to the new window and back", func(t *testing.T) {
		p, drv := setup(t)
		timer := time.AfterFunc(30*time.Millisecond, func() { drv.OpenWindow("https://docs.test/guide") })
		defer timer.Stop()

		require.True(t, p.SwitchToNewWindow(ctx, 0, 0).OK())
		assert.Equal(t, "https://docs.test/guide", currentURL(t, p))

		res := p.SwitchToOldWindow(ctx)
		require.True(t, res.OK(), res.String())
		assert.Equal(t, appURL, currentURL(t, p))
		assert.Equal(t, 1, drv.WindowCount())
	})

	t.Run("closing the last window is not found", func(t *testing.T) {
		p, _ := setup(t)
		res := p.SwitchToOldWindow(ctx)
		assert.Equal(t, NotFound, res.Outcome)
	})

	t.Run("close a given window", func(t *testing.T) {
		p, drv := setup(t)
		drv.OpenWindow("https://docs.test/guide")
		drv.OpenWindow("https://app.test/about")

		assert.Equal(t, NotFound, p.CloseWindow(ctx, 5).Outcome)
		require.True(t, p.CloseWindow(ctx, 1).OK())
		assert.Equal(t, 2, drv.WindowCount())
		assert.Equal(t, appURL, currentURL(t, p))
	})

	t.Run("close current page returns to the first window", func(t *testing.T) {
		p, drv := setup(t)
		handle := drv.OpenWindow("https://docs.test/guide")
		require.NoError(t, drv.SwitchWindow(ctx, handle))

		require.True(t, p.CloseCurrentPage(ctx).OK())
		assert.Equal(t, 1, drv.WindowCount())
		assert.Equal(t, appURL, currentURL(t, p))
	})
}

func TestLinkChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("new page stays open and focused", func(t *testing.T) {
		p, drv := setup(t)
		res := p.CheckNewPage(ctx, driver.ID("docs"), "docs.test/guide", nil)
		require.True(t, res.OK(), res.String())
		assert.Equal(t, 2, drv.WindowCount())
		assert.Equal(t, "https://docs.test/guide", currentURL(t, p))
	})

	t.Run("new page link closes the tab on success", func(t *testing.T) {
		p, drv := setup(t)
		res := p.CheckNewPageLinkWorks(ctx, driver.LinkText("Docs"), "guide", nil)
		require.True(t, res.OK(), res.String())
		assert.Equal(t, 1, drv.WindowCount())
		assert.Equal(t, appURL, currentURL(t, p))
	})

	t.Run("new page link leaves the tab open on failure", func(t *testing.T) {
		p, drv := setup(t)
		res := p.CheckNewPageLinkWorks(ctx, driver.ID("docs"), "pricing", nil)
		assert.Equal(t, Timeout, res.Outcome)
		assert.Equal(t, 2, drv.WindowCount())
	})

	t.Run("link that does not open a window times out", func(t *testing.T) {
		p, _ := setup(t)
		res := p.CheckNewPage(ctx, driver.ID("b0"), "docs", nil)
		assert.Equal(t, Timeout, res.Outcome)
		assert.Contains(t, res.Err.Error(), "second window")
	})

	t.Run("same page link navigates then goes back", func(t *testing.T) {
		p, _ := setup(t)
		res := p.CheckSamePageLinkWorks(ctx, driver.ID("about"), "/about", nil)
		require.True(t, res.OK(), res.String())
		assert.Equal(t, appURL, currentURL(t, p))
	})

	t.Run("same page link goes back even when the url never matched", func(t *testing.T) {
		p, _ := setup(t)
		res := p.CheckSamePageLinkWorks(ctx, driver.ID("about"), "/careers", nil)
		assert.Equal(t, Timeout, res.Outcome)
		assert.Equal(t, appURL, currentURL(t, p))
	})

	t.Run("new window link always closes the window", func(t *testing.T) {
		for _, want := range []string{"guide", "pricing"} {
			p, drv := setup(t)
			res := p.CheckNewWindowLinkWorks(ctx, driver.ID("docs"), want, nil)
			assert.Equal(t, want == "guide", res.OK(), res.String())
			assert.Equal(t, 1, drv.WindowCount())
			assert.Equal(t, appURL, currentURL(t, p))
		}
	})
}

func TestCompositeChecksRecordOnce(t *testing.T) {
	ctx := context.Background()
	checks := map[string]func(p *Page) Result{
		"check_page_url": func(p *Page) Result {
			return p.CheckPageURL(ctx, "https://app.test/", "")
		},
		"check_new_page": func(p *Page) Result {
			return p.CheckNewPage(ctx, driver.ID("docs"), "guide", nil)
		},
		"check_new_page_link_works": func(p *Page) Result {
			return p.CheckNewPageLinkWorks(ctx, driver.ID("docs"), "guide", nil)
		},
		"check_same_page_link_works": func(p *Page) Result {
			return p.CheckSamePageLinkWorks(ctx, driver.ID("about"), "/about", nil)
		},
		"check_new_window_link_works": func(p *Page) Result {
			return p.CheckNewWindowLinkWorks(ctx, driver.ID("docs"), "guide", nil)
		},
	}
	for op, check := range checks {
		t.Run(op, func(t *testing.T) {
			var ops []string
			p, _ := setup(t, WithObserver(func(op string, _ Result, _ time.Duration) { ops = append(ops, op) }))

			res := check(p)
			require.True(t, res.OK(), res.String())
			assert.Equal(t, []string{op}, ops)
		})
	}
}

// -- Links and Strings --

func TestLinkStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p, _ := setup(t, WithHTTPClient(srv.Client()), WithLinkCheckRate(0))
	ctx := context.Background()

	code, res := p.LinkStatus(ctx, srv.URL+"/")
	require.True(t, res.OK(), res.String())
	assert.Equal(t, http.StatusOK, code)

	code, res = p.LinkStatus(ctx, srv.URL+"/gone")
	require.True(t, res.OK())
	assert.Equal(t, http.StatusNotFound, code)

	code, res = p.LinkStatus(ctx, "http://127.0.0.1:0/")
	assert.Equal(t, Failed, res.Outcome)
	assert.Zero(t, code)
}

func TestLinkStatusRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p, _ := setup(t, WithHTTPClient(srv.Client()), WithLinkCheckRate(20))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, res := p.LinkStatus(context.Background(), srv.URL)
		require.True(t, res.OK())
	}
	// Burst of one: the second and third requests wait 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRandomString(t *testing.T) {
	p, _ := setup(t)
	assert.Empty(t, p.RandomString(0))

	s := p.RandomString(32)
	assert.Len(t, s, 32)
	assert.Empty(t, strings.Trim(s, randomAlphabet))
	assert.NotEqual(t, s, p.RandomString(32))
}
