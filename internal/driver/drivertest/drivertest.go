// Package drivertest provides an in-memory driver.Driver for unit tests. Pages
// are plain HTML strings matched with goquery; navigation, window handling and
// key input are simulated closely enough to exercise the page layer.
//
// Element state conventions:
//   - hidden, or style containing "display:none", makes an element invisible
//   - disabled makes it not enabled
//   - clicking <a href> navigates; target="_blank" or data-new-window opens
//     a new window on that URL instead
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// PNG is the fixed payload returned by Screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Driver is a scripted, goroutine-safe fake browser.
type Driver struct {
	mu sync.Mutex

	// Site maps URLs to HTML documents. Unknown URLs render an empty body.
	site map[string]string

	windows []*window
	current *window
	nextID  int

	urlScript []string
	failures  map[string]error

	// Recorded interactions, in call order.
	Clicks       []string
	Typed        map[string]string
	Scripts      []string
	Selected     map[string]int
	Chords       []string
	Hovered      []string
	Enters       []string
	Refreshes    int
	Maximized    bool
	ImplicitWait time.Duration
	QuitCalls    int
	Screenshots  int
}

type window struct {
	handle  string
	history []string
	doc     *goquery.Document
}

func (w *window) url() string {
	if len(w.history) == 0 {
		return "about:blank"
	}
	return w.history[len(w.history)-1]
}

// New returns a driver with one blank window.
func New() *Driver {
	d := &Driver{
		site:     make(map[string]string),
		failures: make(map[string]error),
		Typed:    make(map[string]string),
		Selected: make(map[string]int),
	}
	d.current = d.openWindowLocked("")
	return d
}

var _ driver.Driver = (*Driver)(nil)

// AddPage registers the HTML served for url.
func (d *Driver) AddPage(url, html string) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.site[url] = html
	return d
}

// ScriptURLs makes successive CurrentURL calls return urls in order. The
// last entry repeats once the script is exhausted.
func (d *Driver) ScriptURLs(urls ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urlScript = append([]string(nil), urls...)
}

// FailOn makes the named method return err until cleared with a nil err.
func (d *Driver) FailOn(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, method)
		return
	}
	d.failures[method] = err
}

// SetContent re-renders the current window with html, as a script on the
// page would. The registered page for the URL is updated too, so Refresh
// keeps the new content.
func (d *Driver) SetContent(html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return
	}
	d.site[d.current.url()] = html
	d.current.doc = mustParse(html)
}

// OpenWindow simulates the application opening a new window on url.
func (d *Driver) OpenWindow(url string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openWindowLocked(url).handle
}

func (d *Driver) openWindowLocked(url string) *window {
	d.nextID++
	w := &window{handle: fmt.Sprintf("window-%d", d.nextID)}
	d.windows = append(d.windows, w)
	if url != "" {
		d.navigateLocked(w, url)
	} else {
		w.doc = mustParse("")
	}
	return w
}

func (d *Driver) navigateLocked(w *window, url string) {
	w.history = append(w.history, url)
	w.doc = mustParse(d.site[url])
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("drivertest: invalid html: %v", err))
	}
	return doc
}

func (d *Driver) failure(method string) error {
	return d.failures[method]
}

func (d *Driver) currentLocked() (*window, error) {
	if d.current == nil {
		return nil, driver.ErrNoSuchWindow
	}
	return d.current, nil
}

// -- driver.Driver --

func (d *Driver) Get(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("Get"); err != nil {
		return err
	}
	w, err := d.currentLocked()
	if err != nil {
		return err
	}
	d.navigateLocked(w, url)
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("CurrentURL"); err != nil {
		return "", err
	}
	if len(d.urlScript) > 0 {
		u := d.urlScript[0]
		if len(d.urlScript) > 1 {
			d.urlScript = d.urlScript[1:]
		}
		return u, nil
	}
	w, err := d.currentLocked()
	if err != nil {
		return "", err
	}
	return w.url(), nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.currentLocked()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(w.doc.Find("title").First().Text()), nil
}

func (d *Driver) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.currentLocked()
	if err != nil {
		return err
	}
	d.Refreshes++
	w.doc = mustParse(d.site[w.url()])
	return nil
}

func (d *Driver) Back(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.currentLocked()
	if err != nil {
		return err
	}
	if len(w.history) > 1 {
		w.history = w.history[:len(w.history)-1]
		w.doc = mustParse(d.site[w.url()])
	}
	return nil
}

func (d *Driver) FindElements(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("FindElements"); err != nil {
		return nil, err
	}
	w, err := d.currentLocked()
	if err != nil {
		return nil, err
	}
	sel, err := match(w.doc.Selection, loc)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		out = append(out, &Element{d: d, sel: s})
	})
	return out, nil
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

func match(root *goquery.Selection, loc driver.Locator) (*goquery.Selection, error) {
	if css, ok := loc.CSSEquivalent(); ok {
		return root.Find(css), nil
	}
	switch loc.By {
	case driver.ByLinkText:
		return root.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.TrimSpace(s.Text()) == loc.Value
		}), nil
	case driver.ByPartialLinkText:
		return root.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), loc.Value)
		}), nil
	}
	return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedLocator, loc.By)
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("ExecuteScript"); err != nil {
		return nil, err
	}
	d.Scripts = append(d.Scripts, script)
	return nil, nil
}

func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("WindowHandles"); err != nil {
		return nil, err
	}
	out := make([]string, len(d.windows))
	for i, w := range d.windows {
		out[i] = w.handle
	}
	return out, nil
}

func (d *Driver) CurrentWindowHandle(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.currentLocked()
	if err != nil {
		return "", err
	}
	return w.handle, nil
}

func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.windows {
		if w.handle == handle {
			d.current = w
			return nil
		}
	}
	return fmt.Errorf("%w: %s", driver.ErrNoSuchWindow, handle)
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, err := d.currentLocked()
	if err != nil {
		return err
	}
	for i, candidate := range d.windows {
		if candidate == w {
			d.windows = append(d.windows[:i], d.windows[i+1:]...)
			break
		}
	}
	d.current = nil
	return nil
}

func (d *Driver) Maximize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("Maximize"); err != nil {
		return err
	}
	d.Maximized = true
	return nil
}

func (d *Driver) SetImplicitWait(ctx context.Context, wait time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ImplicitWait = wait
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure("Screenshot"); err != nil {
		return nil, err
	}
	d.Screenshots++
	return append([]byte(nil), PNG...), nil
}

func (d *Driver) Quit(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QuitCalls++
	d.windows = nil
	d.current = nil
	return d.failure("Quit")
}

// WindowCount returns the number of open windows.
func (d *Driver) WindowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// -- driver.Element --

// Element is a node of the fake document.
type Element struct {
	d   *Driver
	sel *goquery.Selection
}

var _ driver.Element = (*Element)(nil)

// Describe names an element for recording: its id, else its trimmed text.
func Describe(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok {
		return id
	}
	return strings.TrimSpace(s.Text())
}

func (e *Element) name() string { return Describe(e.sel) }

func (e *Element) Click(ctx context.Context) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.d.failure("Click"); err != nil {
		return err
	}
	if !visible(e.sel) {
		return errors.New("element not interactable")
	}
	e.d.Clicks = append(e.d.Clicks, e.name())

	if target, ok := e.sel.Attr("data-new-window"); ok {
		e.d.openWindowLocked(target)
		return nil
	}
	href, ok := e.sel.Attr("href")
	if !ok || goquery.NodeName(e.sel) != "a" {
		return nil
	}
	if t, _ := e.sel.Attr("target"); t == "_blank" {
		e.d.openWindowLocked(href)
		return nil
	}
	if w, err := e.d.currentLocked(); err == nil {
		e.d.navigateLocked(w, href)
	}
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.d.failure("SendKeys"); err != nil {
		return err
	}
	e.d.Typed[e.name()] += text
	e.sel.SetAttr("value", e.d.Typed[e.name()])
	return nil
}

func (e *Element) ClearByKeys(ctx context.Context) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.Typed[e.name()] = ""
	e.sel.SetAttr("value", "")
	return nil
}

func (e *Element) PressEnter(ctx context.Context) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.Enters = append(e.d.Enters, e.name())
	return nil
}

func (e *Element) PressKeyChord(ctx context.Context, key driver.Key) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.Chords = append(e.d.Chords, "ctrl+"+string(key))
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if !visible(e.sel) {
		return "", nil
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	return goquery.NodeName(e.sel), nil
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return visible(e.sel), nil
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	_, disabled := e.sel.Attr("disabled")
	return !disabled, nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.Scripts = append(e.d.Scripts, "scrollIntoView:"+e.name())
	return nil
}

func (e *Element) Hover(ctx context.Context) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.Hovered = append(e.d.Hovered, e.name())
	return nil
}

func (e *Element) SelectByIndex(ctx context.Context, index int) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if goquery.NodeName(e.sel) != "select" {
		return fmt.Errorf("element %q is not a select", e.name())
	}
	if n := e.sel.Find("option").Length(); index < 0 || index >= n {
		return fmt.Errorf("option index %d out of range [0,%d)", index, n)
	}
	e.d.Selected[e.name()] = index
	return nil
}

// visible walks up the ancestors, since a hidden parent hides its children.
func visible(s *goquery.Selection) bool {
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		if _, hidden := cur.Attr("hidden"); hidden {
			return false
		}
		style, _ := cur.Attr("style")
		if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			return false
		}
	}
	return true
}
