// Package w3c drives browsers through a W3C WebDriver endpoint. Firefox runs
// behind a locally started geckodriver; any other endpoint can be wrapped.
package w3c

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/firefox"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/driver"
)

// Options configures a WebDriver session.
type Options struct {
	Browser         schemas.Browser
	GeckoDriverPath string
	Port            int
	Binary          string
	Headless        bool
	Width           int
	Height          int
	Args            []string
	GrantMedia      bool
	// RemoteURL connects to an already running endpoint instead of starting
	// geckodriver.
	RemoteURL string
	Debug     bool
	// Output receives the geckodriver process output. Defaults to io.Discard.
	Output io.Writer
}

// OptionsFromConfig builds Options for firefox from the browser config section.
func OptionsFromConfig(headless bool, cfg config.BrowserConfig) Options {
	return Options{
		Browser:         schemas.BrowserFirefox,
		GeckoDriverPath: cfg.GeckoDriverPath,
		Port:            cfg.GeckoDriverPort,
		Binary:          cfg.FirefoxBinary,
		Headless:        headless,
		Width:           cfg.WindowWidth,
		Height:          cfg.WindowHeight,
		Args:            cfg.Args,
		GrantMedia:      cfg.GrantMediaPermissions,
		Debug:           cfg.Debug,
	}
}

// capabilities builds the session capabilities for o.
func capabilities(o Options) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": string(o.Browser)}
	if o.Browser != schemas.BrowserFirefox {
		return caps
	}

	ff := firefox.Capabilities{
		Binary: o.Binary,
		Args:   append([]string{}, o.Args...),
		Prefs:  map[string]interface{}{},
	}
	if o.Headless {
		ff.Args = append(ff.Args, "-headless")
	}
	if o.Width > 0 && o.Height > 0 {
		ff.Args = append(ff.Args, fmt.Sprintf("--width=%d", o.Width), fmt.Sprintf("--height=%d", o.Height))
	}
	if o.GrantMedia {
		ff.Prefs["media.navigator.streams.fake"] = true
		ff.Prefs["media.navigator.permission.disabled"] = true
		ff.Prefs["permissions.default.microphone"] = 1
		ff.Prefs["permissions.default.camera"] = 1
		ff.Prefs["permissions.default.desktop-notification"] = 1
	}
	caps.AddFirefox(ff)
	return caps
}

// Driver adapts a selenium.WebDriver to driver.Driver. WebDriver calls are
// synchronous HTTP requests; ctx is checked before each one.
type Driver struct {
	wd      selenium.WebDriver
	service *selenium.Service
	logger  *zap.Logger

	mu   sync.Mutex
	quit bool
}

var _ driver.Driver = (*Driver)(nil)

// New starts geckodriver (unless RemoteURL is set) and opens a session.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger = logger.Named("w3c").With(zap.String("browser", string(opts.Browser)))
	selenium.SetDebug(opts.Debug)

	url := opts.RemoteURL
	var service *selenium.Service
	if url == "" {
		if opts.Browser != schemas.BrowserFirefox {
			return nil, fmt.Errorf("no local driver service for %q; set a remote url", opts.Browser)
		}
		out := opts.Output
		if out == nil {
			out = io.Discard
		}
		var err error
		service, err = selenium.NewGeckoDriverService(opts.GeckoDriverPath, opts.Port, selenium.Output(out))
		if err != nil {
			return nil, fmt.Errorf("failed to start geckodriver: %w", err)
		}
		url = fmt.Sprintf("http://127.0.0.1:%d", opts.Port)
	}

	wd, err := selenium.NewRemote(capabilities(opts), url)
	if err != nil {
		if service != nil {
			_ = service.Stop()
		}
		return nil, fmt.Errorf("failed to open webdriver session at %s: %w", url, err)
	}
	logger.Info("WebDriver session opened.", zap.String("url", url), zap.String("session", wd.SessionID()))
	return &Driver{wd: wd, service: service, logger: logger}, nil
}

// Wrap adapts an existing session. Quit ends the session but stops no service.
func Wrap(wd selenium.WebDriver, logger *zap.Logger) *Driver {
	return &Driver{wd: wd, logger: logger.Named("w3c")}
}

// do runs fn unless ctx is already done.
func do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(fn())
}

// translate maps WebDriver error codes onto the driver sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var se *selenium.Error
	if errors.As(err, &se) {
		switch se.Err {
		case "no such element":
			return fmt.Errorf("%w: %s", driver.ErrNoSuchElement, se.Message)
		case "no such window":
			return fmt.Errorf("%w: %s", driver.ErrNoSuchWindow, se.Message)
		case "stale element reference":
			return fmt.Errorf("%w: %s", driver.ErrStaleElement, se.Message)
		}
	}
	return err
}

func (d *Driver) Get(ctx context.Context, url string) error {
	return do(ctx, func() error { return d.wd.Get(url) })
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := do(ctx, func() (err error) { url, err = d.wd.CurrentURL(); return })
	return url, err
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	err := do(ctx, func() (err error) { title, err = d.wd.Title(); return })
	return title, err
}

func (d *Driver) Refresh(ctx context.Context) error {
	return do(ctx, d.wd.Refresh)
}

func (d *Driver) Back(ctx context.Context) error {
	return do(ctx, d.wd.Back)
}

func (d *Driver) FindElements(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	var found []selenium.WebElement
	err := do(ctx, func() (err error) { found, err = d.wd.FindElements(string(loc.By), loc.Value); return })
	if errors.Is(err, driver.ErrNoSuchElement) {
		return []driver.Element{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	out := make([]driver.Element, len(found))
	for i, we := range found {
		out[i] = &Element{wd: d.wd, we: we}
	}
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

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	wireArgs := make([]interface{}, len(args))
	for i, a := range args {
		if el, ok := a.(*Element); ok {
			wireArgs[i] = el.we
			continue
		}
		wireArgs[i] = a
	}
	var out any
	err := do(ctx, func() (err error) { out, err = d.wd.ExecuteScript(script, wireArgs); return })
	return out, err
}

func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	var handles []string
	err := do(ctx, func() (err error) { handles, err = d.wd.WindowHandles(); return })
	return handles, err
}

func (d *Driver) CurrentWindowHandle(ctx context.Context) (string, error) {
	var handle string
	err := do(ctx, func() (err error) { handle, err = d.wd.CurrentWindowHandle(); return })
	return handle, err
}

func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	return do(ctx, func() error { return d.wd.SwitchWindow(handle) })
}

func (d *Driver) Close(ctx context.Context) error {
	return do(ctx, d.wd.Close)
}

func (d *Driver) Maximize(ctx context.Context) error {
	return do(ctx, func() error { return d.wd.MaximizeWindow("") })
}

func (d *Driver) SetImplicitWait(ctx context.Context, wait time.Duration) error {
	return do(ctx, func() error { return d.wd.SetImplicitWaitTimeout(wait) })
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := do(ctx, func() (err error) { png, err = d.wd.Screenshot(); return })
	return png, err
}

// Quit ends the session and stops geckodriver. Later calls are no-ops.
func (d *Driver) Quit(ctx context.Context) error {
	d.mu.Lock()
	if d.quit {
		d.mu.Unlock()
		return nil
	}
	d.quit = true
	d.mu.Unlock()

	var errs []error
	if err := d.wd.Quit(); err != nil {
		errs = append(errs, fmt.Errorf("quit session: %w", err))
	}
	if d.service != nil {
		if err := d.service.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop geckodriver: %w", err))
		}
	}
	d.logger.Info("WebDriver session closed.")
	return errors.Join(errs...)
}
