// Package cdp drives Chrome and Edge over the DevTools protocol.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// implicitPoll is how often FindElements retries while the implicit wait runs.
const implicitPoll = 100 * time.Millisecond

// Driver is a driver.Driver backed by a chromedp browser. Each window handle
// is a page target id.
type Driver struct {
	logger *zap.Logger
	opts   Options

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu           sync.Mutex
	tabs         map[target.ID]*tab
	order        []target.ID
	current      target.ID
	implicitWait time.Duration
	quit         bool
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ driver.Driver = (*Driver)(nil)

// New launches the browser and attaches to its first tab.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Driver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger = logger.Named("cdp").With(zap.String("browser", string(opts.Browser)))

	// The allocator and browser must not inherit the caller's deadline; the
	// browser lives until Quit.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), allocatorOptions(opts)...)
	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(logger.Sugar().Infof),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	}
	if opts.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(logger.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	d := &Driver{
		logger:        logger,
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[target.ID]*tab),
	}

	// The first Run allocates the browser and must use the context returned
	// by NewContext itself.
	startErr := make(chan error, 1)
	go func() { startErr <- chromedp.Run(browserCtx) }()
	select {
	case err := <-startErr:
		if err != nil {
			d.release()
			return nil, fmt.Errorf("failed to launch %s: %w", opts.Browser, err)
		}
	case <-ctx.Done():
		d.release()
		return nil, fmt.Errorf("launch of %s interrupted: %w", opts.Browser, ctx.Err())
	}

	first := chromedp.FromContext(browserCtx).Target.TargetID
	d.tabs[first] = &tab{ctx: browserCtx, cancel: browserCancel}
	d.order = []target.ID{first}
	d.current = first

	if opts.GrantMedia {
		perms := []browser.PermissionType{
			browser.PermissionTypeAudioCapture,
			browser.PermissionTypeVideoCapture,
			browser.PermissionTypeNotifications,
		}
		if err := d.run(ctx, browser.GrantPermissions(perms)); err != nil {
			logger.Warn("Could not grant media permissions.", zap.Error(err))
		}
	}

	logger.Info("Browser launched.", zap.String("target", string(first)), zap.Bool("headless", opts.Headless))
	return d, nil
}

func (d *Driver) release() {
	d.browserCancel()
	d.allocCancel()
}

// currentTab returns the context of the focused tab.
func (d *Driver) currentTab() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return nil, errors.New("session has quit")
	}
	t, ok := d.tabs[d.current]
	if !ok {
		return nil, fmt.Errorf("%w: no window is focused", driver.ErrNoSuchWindow)
	}
	return t.ctx, nil
}

// run executes actions on the focused tab, bounded by ctx.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := d.currentTab()
	if err != nil {
		return err
	}
	return runOn(ctx, tabCtx, actions...)
}

// runOn executes actions on tabCtx and triages the failure: caller
// cancellation first, then a closed tab, then the backend error.
func runOn(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if tabCtx.Err() != nil {
		return fmt.Errorf("%w: tab closed: %v", driver.ErrNoSuchWindow, err)
	}
	return err
}

// -- Navigation --

func (d *Driver) Get(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	if err := d.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (d *Driver) Refresh(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *Driver) Back(ctx context.Context) error {
	return d.run(ctx, chromedp.NavigateBack())
}

// -- Scripts --

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	var out any
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		out, err = callFunction(ctx, script, args)
		return err
	}))
	return out, err
}

// callFunction runs script as the body of a function whose arguments are
// args. Elements are resolved to remote objects; everything else is passed
// by value.
func callFunction(ctx context.Context, script string, args []any) (any, error) {
	callArgs := make([]*cdpruntime.CallArgument, 0, len(args))
	var this cdpruntime.RemoteObjectID
	for _, a := range args {
		if el, ok := a.(*Element); ok {
			obj, err := el.resolve(ctx)
			if err != nil {
				return nil, err
			}
			if this == "" {
				this = obj
			}
			callArgs = append(callArgs, &cdpruntime.CallArgument{ObjectID: obj})
			continue
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode script argument: %w", err)
		}
		callArgs = append(callArgs, &cdpruntime.CallArgument{Value: raw})
	}

	decl := "function(){" + script + "}"
	if this == "" {
		// Without an element there is no object to call on; evaluate an
		// immediately invoked wrapper in the page instead.
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode script arguments: %w", err)
		}
		expr := fmt.Sprintf("(%s).apply(window, %s)", decl, encoded)
		res, exc, err := cdpruntime.Evaluate(expr).WithReturnByValue(true).WithAwaitPromise(true).Do(ctx)
		return decodeResult(res, exc, err)
	}
	res, exc, err := cdpruntime.CallFunctionOn(decl).
		WithObjectID(this).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		Do(ctx)
	return decodeResult(res, exc, err)
}

func decodeResult(res *cdpruntime.RemoteObject, exc *cdpruntime.ExceptionDetails, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("script raised: %s", exc.Error())
	}
	if res == nil || res.Type == cdpruntime.TypeUndefined || len(res.Value) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(res.Value), &out); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return out, nil
}

// -- Windows --

// WindowHandles lists page targets in the order this driver first saw them.
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	infos, err := chromedp.Targets(d.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	live := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			live[info.TargetID] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.order[:0]
	for _, id := range d.order {
		if live[id] {
			kept = append(kept, id)
			delete(live, id)
		}
	}
	for _, info := range infos {
		if live[info.TargetID] {
			kept = append(kept, info.TargetID)
		}
	}
	d.order = kept

	handles := make([]string, len(d.order))
	for i, id := range d.order {
		handles[i] = string(id)
	}
	return handles, nil
}

func (d *Driver) CurrentWindowHandle(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tabs[d.current]; !ok {
		return "", driver.ErrNoSuchWindow
	}
	return string(d.current), nil
}

func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	id := target.ID(handle)

	d.mu.Lock()
	t, ok := d.tabs[id]
	d.mu.Unlock()

	if !ok {
		tabCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
		// Attach with the tab context itself so the attachment outlives ctx.
		attached := make(chan error, 1)
		go func() { attached <- chromedp.Run(tabCtx) }()
		select {
		case err := <-attached:
			if err != nil {
				cancel()
				return fmt.Errorf("%w: %s: %v", driver.ErrNoSuchWindow, handle, err)
			}
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		}
		t = &tab{ctx: tabCtx, cancel: cancel}
		d.mu.Lock()
		d.tabs[id] = t
		d.mu.Unlock()
	}

	if err := runOn(ctx, t.ctx, page.BringToFront()); err != nil {
		return fmt.Errorf("activate %s: %w", handle, err)
	}
	d.mu.Lock()
	d.current = id
	d.mu.Unlock()
	return nil
}

// Close closes the focused tab. The browser keeps running even when the
// first tab is closed.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	id := d.current
	t, ok := d.tabs[id]
	d.mu.Unlock()
	if !ok {
		return driver.ErrNoSuchWindow
	}

	if err := runOn(ctx, t.ctx, page.Close()); err != nil {
		return fmt.Errorf("close %s: %w", id, err)
	}

	d.mu.Lock()
	delete(d.tabs, id)
	d.current = ""
	d.mu.Unlock()
	if t.ctx != d.browserCtx {
		t.cancel()
	}
	return nil
}

// -- Browser --

func (d *Driver) Maximize(ctx context.Context) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, _, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return fmt.Errorf("get window: %w", err)
		}
		bounds := &browser.Bounds{WindowState: browser.WindowStateMaximized}
		if d.opts.Headless {
			// Headless windows cannot be maximized; size them explicitly.
			bounds = &browser.Bounds{
				WindowState: browser.WindowStateNormal,
				Width:       int64(d.opts.Width),
				Height:      int64(d.opts.Height),
			}
		}
		return browser.SetWindowBounds(windowID, bounds).Do(ctx)
	}))
}

func (d *Driver) SetImplicitWait(ctx context.Context, wait time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.implicitWait = wait
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Quit closes the browser. It is safe to call more than once.
func (d *Driver) Quit(ctx context.Context) error {
	d.mu.Lock()
	if d.quit {
		d.mu.Unlock()
		return nil
	}
	d.quit = true
	tabs := d.tabs
	d.tabs = map[target.ID]*tab{}
	d.mu.Unlock()

	for _, t := range tabs {
		if t.ctx != d.browserCtx {
			t.cancel()
		}
	}
	// Cancel closes the browser gracefully and waits for the process.
	if err := chromedp.Cancel(d.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Debug("Graceful browser close failed.", zap.Error(err))
	}
	d.allocCancel()
	d.logger.Info("Browser closed.")
	return nil
}
