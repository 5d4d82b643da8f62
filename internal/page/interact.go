package page

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// Click waits for the picked match of loc to be clickable, settles, then
// clicks it.
func (p *Page) Click(ctx context.Context, loc driver.Locator, pick Pick) (res Result) {
	defer p.record("click", time.Now(), &res)
	return p.click(ctx, loc, pick)
}

func (p *Page) click(ctx context.Context, loc driver.Locator, pick Pick) Result {
	m, res := p.await(ctx, loc, pick, clickable, 0)
	if !res.OK() {
		return res
	}
	if res := p.settleDown(ctx, "click"); !res.OK() {
		return res
	}
	if err := m.el.Click(ctx); err != nil {
		return failed(err, "click %s [%d]", loc, m.index)
	}
	p.logger.Debug("Clicked element.", zap.Stringer("locator", loc), zap.Int("index", m.index), zap.Int("matches", len(m.all)))
	return succeeded()
}

// ClickSingle clicks the first match of loc.
func (p *Page) ClickSingle(ctx context.Context, loc driver.Locator) (res Result) {
	defer p.record("click_single", time.Now(), &res)
	return p.click(ctx, loc, First())
}

// Fill waits for the picked match of loc to be visible, clears it with a
// select-all and delete key sequence, then types value.
func (p *Page) Fill(ctx context.Context, loc driver.Locator, value string, pick Pick) (res Result) {
	defer p.record("fill", time.Now(), &res)
	m, res := p.await(ctx, loc, pick, visible, 0)
	if !res.OK() {
		return res
	}
	if res := p.settleDown(ctx, "fill"); !res.OK() {
		return res
	}
	if err := m.el.ClearByKeys(ctx); err != nil {
		return failed(err, "clear %s [%d]", loc, m.index)
	}
	if err := m.el.SendKeys(ctx, value); err != nil {
		return failed(err, "type into %s [%d]", loc, m.index)
	}
	return succeeded()
}

// PressEnter sends the enter key to the picked visible match of loc.
func (p *Page) PressEnter(ctx context.Context, loc driver.Locator, pick Pick) (res Result) {
	defer p.record("press_enter", time.Now(), &res)
	m, res := p.await(ctx, loc, pick, visible, 0)
	if !res.OK() {
		return res
	}
	if err := m.el.PressEnter(ctx); err != nil {
		return failed(err, "press enter on %s [%d]", loc, m.index)
	}
	return succeeded()
}

// SelectOption chooses the option at index of the first clickable <select>
// matching loc.
func (p *Page) SelectOption(ctx context.Context, loc driver.Locator, index int) (res Result) {
	defer p.record("select_option", time.Now(), &res)
	m, res := p.await(ctx, loc, First(), clickable, 0)
	if !res.OK() {
		return res
	}
	if res := p.settleDown(ctx, "select_option"); !res.OK() {
		return res
	}
	if err := m.el.SelectByIndex(ctx, index); err != nil {
		return failed(err, "select option %d of %s", index, loc)
	}
	return succeeded()
}

// IsClickable reports whether the picked match of loc becomes clickable
// within the page timeout, without clicking it.
func (p *Page) IsClickable(ctx context.Context, loc driver.Locator, pick Pick) (res Result) {
	defer p.record("is_clickable", time.Now(), &res)
	_, res = p.await(ctx, loc, pick, clickable, 0)
	return res
}

// HoverClick moves the pointer over hover, which typically reveals a menu,
// then clicks target once it is clickable.
func (p *Page) HoverClick(ctx context.Context, hover, target driver.Locator) (res Result) {
	defer p.record("hover_click", time.Now(), &res)
	h, res := p.await(ctx, hover, First(), visible, 0)
	if !res.OK() {
		return res
	}
	if err := h.el.Hover(ctx); err != nil {
		return failed(err, "hover %s", hover)
	}
	t, res := p.await(ctx, target, First(), clickable, 0)
	if !res.OK() {
		return res
	}
	if err := t.el.Hover(ctx); err != nil {
		return failed(err, "hover %s", target)
	}
	if err := t.el.Click(ctx); err != nil {
		return failed(err, "click %s", target)
	}
	return p.settleDown(ctx, "hover_click")
}

// ScrollIntoView reveals the picked visible match of loc, then scrolls the
// window up by offset pixels so sticky headers do not cover it. A zero
// offset uses the configured one.
func (p *Page) ScrollIntoView(ctx context.Context, loc driver.Locator, pick Pick, offset int) (res Result) {
	defer p.record("scroll_into_view", time.Now(), &res)
	if offset == 0 {
		offset = p.scrollOffset
	}
	m, res := p.await(ctx, loc, pick, visible, 0)
	if !res.OK() {
		return res
	}
	if err := m.el.ScrollIntoView(ctx); err != nil {
		return failed(err, "scroll %s [%d] into view", loc, m.index)
	}
	if _, err := p.drv.ExecuteScript(ctx, fmt.Sprintf("window.scrollBy(0, -%d);", offset)); err != nil {
		return failed(err, "scroll back by %d", offset)
	}
	return succeeded()
}

// ScrollToBottom sends ctrl+end to the document body.
func (p *Page) ScrollToBottom(ctx context.Context) (res Result) {
	defer p.record("scroll_to_bottom", time.Now(), &res)
	return p.bodyChord(ctx, driver.KeyEnd)
}

// ScrollToTop sends ctrl+home to the document body.
func (p *Page) ScrollToTop(ctx context.Context) (res Result) {
	defer p.record("scroll_to_top", time.Now(), &res)
	return p.bodyChord(ctx, driver.KeyHome)
}

func (p *Page) bodyChord(ctx context.Context, key driver.Key) Result {
	m, res := p.await(ctx, driver.TagName("body"), First(), present, 0)
	if !res.OK() {
		return res
	}
	if err := m.el.PressKeyChord(ctx, key); err != nil {
		return failed(err, "ctrl+%s on body", key)
	}
	return succeeded()
}
