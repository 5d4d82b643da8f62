package page

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"
)

// GoTo loads link in the current window and blocks until the backend
// reports the load finished.
func (p *Page) GoTo(ctx context.Context, link string) (res Result) {
	defer p.record("go_to", time.Now(), &res)
	if err := p.drv.Get(ctx, link); err != nil {
		return failed(err, "navigate to %s", link)
	}
	return succeeded()
}

// Refresh reloads the current document.
func (p *Page) Refresh(ctx context.Context) (res Result) {
	defer p.record("refresh", time.Now(), &res)
	if err := p.drv.Refresh(ctx); err != nil {
		return failed(err, "refresh")
	}
	return succeeded()
}

// Maximize maximizes the current window.
func (p *Page) Maximize(ctx context.Context) (res Result) {
	defer p.record("maximize", time.Now(), &res)
	if err := p.drv.Maximize(ctx); err != nil {
		return failed(err, "maximize")
	}
	return succeeded()
}

// Back presses the browser back button.
func (p *Page) Back(ctx context.Context) (res Result) {
	defer p.record("back", time.Now(), &res)
	if err := p.drv.Back(ctx); err != nil {
		return failed(err, "back")
	}
	return succeeded()
}

// CurrentURL returns the URL of the current window.
func (p *Page) CurrentURL(ctx context.Context) (u string, res Result) {
	defer p.record("current_url", time.Now(), &res)
	u, err := p.drv.CurrentURL(ctx)
	if err != nil {
		return "", failed(err, "current url")
	}
	p.logger.Debug("Current URL.", zap.String("url", u))
	return u, succeeded()
}

// CheckPageURL waits for the current URL to contain base joined with path.
// path is resolved like a link on base, so an absolute path replaces the
// base path and a relative one extends it.
func (p *Page) CheckPageURL(ctx context.Context, base, path string) (res Result) {
	defer p.record("check_page_url", time.Now(), &res)
	want, err := joinURL(base, path)
	if err != nil {
		return failed(err, "join %q and %q", base, path)
	}
	return p.checkForNewURL(ctx, want, 0, 0)
}

func joinURL(base, path string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if path == "" {
		return b.String(), nil
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

// CheckForNewURL polls the current URL every interval until it contains
// fragment, giving up once limit has elapsed. The first check happens one
// interval after the call, leaving a click that triggered navigation time to
// take effect. On success the settle delay is taken before returning. Zero
// interval or limit use the page defaults.
func (p *Page) CheckForNewURL(ctx context.Context, fragment string, interval, limit time.Duration) (res Result) {
	defer p.record("check_for_new_url", time.Now(), &res)
	return p.checkForNewURL(ctx, fragment, interval, limit)
}

// checkForNewURL is CheckForNewURL without recording, for composite checks
// that record under their own name.
func (p *Page) checkForNewURL(ctx context.Context, fragment string, interval, limit time.Duration) Result {
	if interval <= 0 {
		interval = p.poll
	}
	if limit <= 0 {
		limit = p.timeout
	}

	var (
		last    string
		lastErr error
	)
	err := wait.PollUntilContextTimeout(ctx, interval, limit, false, func(ctx context.Context) (bool, error) {
		u, err := p.drv.CurrentURL(ctx)
		if err != nil {
			if fatal(err) {
				return false, err
			}
			lastErr = err
			return false, nil
		}
		last = u
		return strings.Contains(u, fragment), nil
	})
	if err != nil {
		p.logger.Debug("URL never matched.", zap.String("want", fragment), zap.String("at", last))
		return p.stopped(ctx, err, fmt.Sprintf("url containing %q, last seen %q", fragment, last), false, lastErr)
	}
	return p.settleDown(ctx, "check_for_new_url")
}
