package page

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// Texts waits for the first match of loc to be visible, settles, then
// returns the visible text of every match.
func (p *Page) Texts(ctx context.Context, loc driver.Locator) (texts []string, res Result) {
	defer p.record("texts", time.Now(), &res)
	return p.texts(ctx, loc)
}

func (p *Page) texts(ctx context.Context, loc driver.Locator) ([]string, Result) {
	if _, res := p.await(ctx, loc, First(), visible, 0); !res.OK() {
		return nil, res
	}
	if res := p.settleDown(ctx, "texts"); !res.OK() {
		return nil, res
	}
	els, err := p.drv.FindElements(ctx, loc)
	if err != nil {
		return nil, failed(err, "find %s", loc)
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			return nil, failed(err, "text of %s", loc)
		}
		out = append(out, text)
	}
	return out, succeeded()
}

// Attributes waits for loc to be present and returns attribute name of
// every match. Absent attributes are "".
func (p *Page) Attributes(ctx context.Context, loc driver.Locator, name string) (values []string, res Result) {
	defer p.record("attributes", time.Now(), &res)
	m, res := p.await(ctx, loc, First(), present, 0)
	if !res.OK() {
		return nil, res
	}
	out := make([]string, 0, len(m.all))
	for _, el := range m.all {
		v, err := el.Attribute(ctx, name)
		if err != nil {
			return nil, failed(err, "attribute %q of %s", name, loc)
		}
		out = append(out, v)
	}
	return out, succeeded()
}

// Count waits for loc to be present and returns how many elements match.
func (p *Page) Count(ctx context.Context, loc driver.Locator) (n int, res Result) {
	defer p.record("count", time.Now(), &res)
	m, res := p.await(ctx, loc, First(), present, 0)
	if !res.OK() {
		return 0, res
	}
	return len(m.all), succeeded()
}

// Elements waits for loc to be present, settles, and returns every match.
func (p *Page) Elements(ctx context.Context, loc driver.Locator) (els []driver.Element, res Result) {
	defer p.record("elements", time.Now(), &res)
	return p.elements(ctx, loc)
}

func (p *Page) elements(ctx context.Context, loc driver.Locator) ([]driver.Element, Result) {
	if _, res := p.await(ctx, loc, First(), present, 0); !res.OK() {
		return nil, res
	}
	if res := p.settleDown(ctx, "elements"); !res.OK() {
		return nil, res
	}
	els, err := p.drv.FindElements(ctx, loc)
	if err != nil {
		return nil, failed(err, "find %s", loc)
	}
	if len(els) == 0 {
		return nil, notFound("%s disappeared while settling", loc)
	}
	return els, succeeded()
}

// RandomIndex returns a uniformly random index into the matches of loc, or 0
// for a single match. No match at all is NotFound.
func (p *Page) RandomIndex(ctx context.Context, loc driver.Locator) (index int, res Result) {
	defer p.record("random_index", time.Now(), &res)
	els, res := p.elements(ctx, loc)
	if !res.OK() {
		return 0, res
	}
	if len(els) == 1 {
		return 0, succeeded()
	}
	return p.rng.IntN(len(els)), succeeded()
}

// CheckPageElement waits up to timeout for the first match of loc to be
// visible, settles, then confirms its tag and text can be read. A zero
// timeout uses the page timeout.
func (p *Page) CheckPageElement(ctx context.Context, loc driver.Locator, timeout time.Duration) (res Result) {
	defer p.record("check_page_element", time.Now(), &res)
	m, res := p.await(ctx, loc, First(), visible, timeout)
	if !res.OK() {
		return res
	}
	if res := p.settleDown(ctx, "check_page_element"); !res.OK() {
		return res
	}
	if _, err := m.el.TagName(ctx); err != nil {
		return failed(err, "tag of %s", loc)
	}
	if _, err := m.el.Text(ctx); err != nil {
		return failed(err, "text of %s", loc)
	}
	return succeeded()
}

// CheckFieldErrorMessage compares the concatenated text of every match of
// loc with expected, the way field validation messages split across several
// nodes read to a user.
func (p *Page) CheckFieldErrorMessage(ctx context.Context, loc driver.Locator, expected string) (res Result) {
	defer p.record("check_field_error_message", time.Now(), &res)
	texts, res := p.texts(ctx, loc)
	if !res.OK() {
		return res
	}
	got := strings.Join(texts, "")
	p.logger.Debug("Field error message.", zap.String("got", got), zap.String("want", expected))
	if got != expected {
		return mismatched("%s reads %q, want %q", loc, got, expected)
	}
	return succeeded()
}
