package cdp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// FindElements queries the focused tab, retrying until something matches or
// the implicit wait elapses.
func (d *Driver) FindElements(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	tabCtx, err := d.currentTab()
	if err != nil {
		return nil, err
	}
	sel, opt, err := queryFor(loc)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	deadline := time.Now().Add(d.implicitWait)
	d.mu.Unlock()

	for {
		var nodes []*cdp.Node
		if err := runOn(ctx, tabCtx, chromedp.Nodes(sel, &nodes, opt, chromedp.AtLeast(0))); err != nil {
			return nil, fmt.Errorf("find %s: %w", loc, err)
		}
		if len(nodes) > 0 || !time.Now().Before(deadline) {
			out := make([]driver.Element, len(nodes))
			for i, n := range nodes {
				out[i] = &Element{tab: tabCtx, node: n}
			}
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(implicitPoll):
		}
	}
}

func (d *Driver) FindElement(ctx context.Context, loc driver.Locator) (driver.Element, error) {
	els, err := d.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, loc)
	}
	return els[0], nil
}

// queryFor maps a locator onto a chromedp selector and query option. CSS
// expressible strategies use querySelectorAll; the rest go through XPath.
func queryFor(loc driver.Locator) (string, chromedp.QueryOption, error) {
	if css, ok := loc.CSSEquivalent(); ok {
		return css, chromedp.ByQueryAll, nil
	}
	switch loc.By {
	case driver.ByXPath:
		return loc.Value, chromedp.BySearch, nil
	case driver.ByLinkText:
		return fmt.Sprintf("//a[normalize-space(.)=%s]", xpathLiteral(loc.Value)), chromedp.BySearch, nil
	case driver.ByPartialLinkText:
		return fmt.Sprintf("//a[contains(., %s)]", xpathLiteral(loc.Value)), chromedp.BySearch, nil
	}
	return "", nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedLocator, loc.By)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// Element is a DOM node in a specific tab.
type Element struct {
	tab  context.Context
	node *cdp.Node
}

var _ driver.Element = (*Element)(nil)

func (e *Element) run(ctx context.Context, actions ...chromedp.Action) error {
	return runOn(ctx, e.tab, actions...)
}

// resolve returns a remote object handle for the node.
func (e *Element) resolve(ctx context.Context) (cdpruntime.RemoteObjectID, error) {
	obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", driver.ErrStaleElement, err)
	}
	return obj.ObjectID, nil
}

// call runs fn (a JS function using this) on the node and decodes into res.
func (e *Element) call(ctx context.Context, fn string, res any, args ...any) error {
	return e.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, err := e.resolve(ctx)
		if err != nil {
			return err
		}
		params, err := nodeCall(id, fn, args)
		if err != nil {
			return err
		}
		obj, exc, err := params.Do(ctx)
		if err != nil {
			return fmt.Errorf("call on node: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("script raised: %s", exc.Error())
		}
		if res == nil || obj == nil || len(obj.Value) == 0 {
			return nil
		}
		if err := json.Unmarshal([]byte(obj.Value), res); err != nil {
			return fmt.Errorf("decode script result: %w", err)
		}
		return nil
	}))
}

// nodeCall builds the Runtime.callFunctionOn request for fn bound to the
// remote object id, with args passed by value.
func nodeCall(id cdpruntime.RemoteObjectID, fn string, args []any) (*cdpruntime.CallFunctionOnParams, error) {
	callArgs := make([]*cdpruntime.CallArgument, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode script argument: %w", err)
		}
		callArgs = append(callArgs, &cdpruntime.CallArgument{Value: raw})
	}
	return cdpruntime.CallFunctionOn(fn).
		WithObjectID(id).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithAwaitPromise(true), nil
}

func (e *Element) focus() chromedp.Action {
	return dom.Focus().WithBackendNodeID(e.node.BackendNodeID)
}

func (e *Element) Click(ctx context.Context) error {
	return e.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	return e.run(ctx, e.focus(), chromedp.KeyEvent(text))
}

func (e *Element) ClearByKeys(ctx context.Context) error {
	return e.run(ctx,
		e.focus(),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Backspace),
	)
}

func (e *Element) PressEnter(ctx context.Context) error {
	return e.run(ctx, e.focus(), chromedp.KeyEvent(kb.Enter))
}

func (e *Element) PressKeyChord(ctx context.Context, key driver.Key) error {
	k := string(key)
	switch key {
	case driver.KeyEnd:
		k = kb.End
	case driver.KeyHome:
		k = kb.Home
	}
	return e.run(ctx, e.focus(), chromedp.KeyEvent(k, chromedp.KeyModifiers(input.ModifierCtrl)))
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, `function(){ return (this.innerText || "").trim(); }`, &s)
	return s, err
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	var s string
	err := e.call(ctx, `function(n){
		if (this.hasAttribute(n)) { return this.getAttribute(n); }
		const v = this[n];
		return (v === undefined || v === null) ? "" : String(v);
	}`, &s, name)
	return s, err
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	return strings.ToLower(e.node.LocalName), nil
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	var shown bool
	err := e.call(ctx, `function(){
		const s = window.getComputedStyle(this);
		if (s.visibility === "hidden" || s.display === "none" || s.opacity === "0") { return false; }
		return this.getClientRects().length > 0;
	}`, &shown)
	return shown, err
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := e.call(ctx, `function(){ return !this.disabled && !this.closest("fieldset[disabled]"); }`, &enabled)
	return enabled, err
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	var ignored any
	return e.call(ctx, `function(){ this.scrollIntoView(true); }`, &ignored)
}

func (e *Element) Hover(ctx context.Context) error {
	var ignored any
	return e.call(ctx, `function(){
		for (const type of ["mouseover", "mouseenter", "mousemove"]) {
			this.dispatchEvent(new MouseEvent(type, {bubbles: type !== "mouseenter", view: window}));
		}
	}`, &ignored)
}

func (e *Element) SelectByIndex(ctx context.Context, index int) error {
	var ok bool
	err := e.call(ctx, `function(i){
		if (this.tagName !== "SELECT" || i < 0 || i >= this.options.length) { return false; }
		this.selectedIndex = i;
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	}`, &ok, index)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot select option %d", index)
	}
	return nil
}
