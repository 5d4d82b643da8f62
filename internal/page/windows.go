package page

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

var errWindowNotClosed = errors.New("window count did not decrease")

// SwitchToNewWindow polls the window handle count every quantum until a
// second window exists, then focuses it. The harness expects one spawned
// window at a time, so the second handle is the new one. Zero arguments use
// the configured window polling.
func (p *Page) SwitchToNewWindow(ctx context.Context, quantum, timeout time.Duration) (res Result) {
	defer p.record("switch_to_new_window", time.Now(), &res)
	return p.switchToNewWindow(ctx, quantum, timeout)
}

func (p *Page) switchToNewWindow(ctx context.Context, quantum, timeout time.Duration) Result {
	if quantum <= 0 {
		quantum = p.windowPoll
	}
	if timeout <= 0 {
		timeout = p.windowTimeout
	}

	var (
		handles []string
		lastErr error
	)
	err := wait.PollUntilContextTimeout(ctx, quantum, timeout, false, func(ctx context.Context) (bool, error) {
		hs, err := p.drv.WindowHandles(ctx)
		if err != nil {
			lastErr = err
			return false, nil
		}
		handles = hs
		return len(hs) >= 2, nil
	})
	if err != nil {
		return p.stopped(ctx, err, fmt.Sprintf("a second window, have %d", len(handles)), false, lastErr)
	}
	if err := p.drv.SwitchWindow(ctx, handles[1]); err != nil {
		return failed(err, "switch to window %s", handles[1])
	}
	p.logger.Debug("Switched to new window.", zap.String("handle", handles[1]), zap.Int("windows", len(handles)))
	return succeeded()
}

// SwitchToOldWindow closes the current window, settles, and focuses the
// first remaining one. It succeeds only if the window count went down.
func (p *Page) SwitchToOldWindow(ctx context.Context) (res Result) {
	defer p.record("switch_to_old_window", time.Now(), &res)
	return p.switchToOldWindow(ctx)
}

func (p *Page) switchToOldWindow(ctx context.Context) Result {
	before, err := p.drv.WindowHandles(ctx)
	if err != nil {
		return failed(err, "list windows")
	}
	if err := p.drv.Close(ctx); err != nil {
		return failed(err, "close window")
	}
	if res := p.settleDown(ctx, "switch_to_old_window"); !res.OK() {
		return res
	}
	after, err := p.drv.WindowHandles(ctx)
	if err != nil {
		return failed(err, "list windows")
	}
	if len(after) == 0 {
		return notFound("no window left to switch to")
	}
	if err := p.drv.SwitchWindow(ctx, after[0]); err != nil {
		return failed(err, "switch to window %s", after[0])
	}
	if len(after) >= len(before) {
		return failed(errWindowNotClosed, "%d windows before, %d after", len(before), len(after))
	}
	return succeeded()
}

// CloseWindow closes the window at position n of the handle list and
// focuses the first window left open.
func (p *Page) CloseWindow(ctx context.Context, n int) (res Result) {
	defer p.record("close_window", time.Now(), &res)
	handles, err := p.drv.WindowHandles(ctx)
	if err != nil {
		return failed(err, "list windows")
	}
	if n < 0 || n >= len(handles) {
		return notFound("window %d of %d", n, len(handles))
	}
	if res := p.settleDown(ctx, "close_window"); !res.OK() {
		return res
	}
	if err := p.drv.SwitchWindow(ctx, handles[n]); err != nil {
		return failed(err, "switch to window %s", handles[n])
	}
	if err := p.drv.Close(ctx); err != nil {
		return failed(err, "close window %s", handles[n])
	}
	return p.focusFirst(ctx)
}

// CloseCurrentPage closes the current window and focuses the first one.
func (p *Page) CloseCurrentPage(ctx context.Context) (res Result) {
	defer p.record("close_current_page", time.Now(), &res)
	if err := p.drv.Close(ctx); err != nil {
		return failed(err, "close window")
	}
	return p.focusFirst(ctx)
}

func (p *Page) focusFirst(ctx context.Context) Result {
	handles, err := p.drv.WindowHandles(ctx)
	if err != nil {
		return failed(err, "list windows")
	}
	if len(handles) == 0 {
		return succeeded()
	}
	if err := p.drv.SwitchWindow(ctx, handles[0]); err != nil {
		return failed(err, "switch to window %s", handles[0])
	}
	return succeeded()
}

// -- Composite link checks --

// CheckNewPage clicks the picked match of loc, expecting a new tab. It
// focuses and maximizes the tab and waits for its URL to contain required.
// The tab is left open and focused.
func (p *Page) CheckNewPage(ctx context.Context, loc driver.Locator, required string, pick Pick) (res Result) {
	defer p.record("check_new_page", time.Now(), &res)
	return p.openInNewWindow(ctx, loc, required, pick)
}

func (p *Page) openInNewWindow(ctx context.Context, loc driver.Locator, required string, pick Pick) Result {
	if res := p.settleDown(ctx, "open_in_new_window"); !res.OK() {
		return res
	}
	if res := p.click(ctx, loc, pick); !res.OK() {
		return res
	}
	if res := p.switchToNewWindow(ctx, 0, 0); !res.OK() {
		return res
	}
	if err := p.drv.Maximize(ctx); err != nil {
		return failed(err, "maximize new window")
	}
	return p.checkForNewURL(ctx, required, p.windowPoll, 0)
}

// CheckNewPageLinkWorks is CheckNewPage that, when the URL matched, closes
// the tab and returns focus to the first window. A failed check leaves the
// tab open for the failure screenshot.
func (p *Page) CheckNewPageLinkWorks(ctx context.Context, loc driver.Locator, required string, pick Pick) (res Result) {
	defer p.record("check_new_page_link_works", time.Now(), &res)
	if res := p.openInNewWindow(ctx, loc, required, pick); !res.OK() {
		return res
	}
	if err := p.drv.Close(ctx); err != nil {
		return failed(err, "close new tab")
	}
	return p.focusFirst(ctx)
}

// CheckSamePageLinkWorks clicks the picked match of loc, expecting the
// current tab to navigate to a URL containing required, then goes back.
// Back is attempted whatever the check returned.
func (p *Page) CheckSamePageLinkWorks(ctx context.Context, loc driver.Locator, required string, pick Pick) (res Result) {
	defer p.record("check_same_page_link_works", time.Now(), &res)
	if res := p.settleDown(ctx, "check_same_page_link_works"); !res.OK() {
		return res
	}
	if res := p.click(ctx, loc, pick); !res.OK() {
		return res
	}
	res = p.checkForNewURL(ctx, required, p.windowPoll, 0)
	if err := p.drv.Back(ctx); err != nil && res.OK() {
		return failed(err, "back")
	}
	return res
}

// CheckNewWindowLinkWorks clicks the picked match of loc, expecting a new
// window whose URL contains required. The new window is closed and focus
// returns to the first window whatever the check returned.
func (p *Page) CheckNewWindowLinkWorks(ctx context.Context, loc driver.Locator, required string, pick Pick) (res Result) {
	defer p.record("check_new_window_link_works", time.Now(), &res)
	if res := p.settleDown(ctx, "check_new_window_link_works"); !res.OK() {
		return res
	}
	if res := p.click(ctx, loc, pick); !res.OK() {
		return res
	}
	if res := p.switchToNewWindow(ctx, 0, 0); !res.OK() {
		return res
	}
	res = p.checkForNewURL(ctx, required, p.windowPoll, 0)
	if err := p.drv.Close(ctx); err != nil && res.OK() {
		return failed(err, "close new window")
	}
	if back := p.focusFirst(ctx); !back.OK() && res.OK() {
		return back
	}
	return res
}
