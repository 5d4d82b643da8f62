package cdp

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
)

// Options configures a Chromium-family browser session.
type Options struct {
	Browser  schemas.Browser
	ExecPath string
	Headless bool
	Width    int
	Height   int
	// Args are extra switches in "--name" or "--name=value" form.
	Args           []string
	GrantMedia     bool
	StartupTimeout time.Duration
	Debug          bool
}

// OptionsFromConfig builds Options for browser from the browser config section.
func OptionsFromConfig(browser schemas.Browser, headless bool, cfg config.BrowserConfig) Options {
	opts := Options{
		Browser:        browser,
		ExecPath:       cfg.ChromeBinary,
		Headless:       headless,
		Width:          cfg.WindowWidth,
		Height:         cfg.WindowHeight,
		Args:           cfg.Args,
		GrantMedia:     cfg.GrantMediaPermissions,
		StartupTimeout: cfg.StartupTimeout,
		Debug:          cfg.Debug,
	}
	if browser == schemas.BrowserEdge {
		opts.ExecPath = cfg.EdgeBinary
		if opts.ExecPath == "" {
			opts.ExecPath = findEdge()
		}
	}
	return opts
}

// allocatorOptions translates Options into chromedp allocator options. The
// fixed switches mirror what the suites expect from every Chromium session.
func allocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(o.Width, o.Height),
	)
	if o.GrantMedia {
		opts = append(opts,
			chromedp.Flag("use-fake-device-for-media-stream", true),
			chromedp.Flag("use-fake-ui-for-media-stream", true),
		)
	}

	// The defaults include --headless; undo it for a visible window.
	if !o.Headless {
		opts = append(opts,
			chromedp.Flag("headless", false),
			chromedp.Flag("hide-scrollbars", false),
			chromedp.Flag("mute-audio", false),
		)
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.StartupTimeout > 0 {
		opts = append(opts, chromedp.WSURLReadTimeout(o.StartupTimeout))
	}

	for _, arg := range o.Args {
		name, value := parseArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseArg splits "--name=value" into its parts. Switches without a value
// become boolean true. chromedp wants the name without leading dashes.
func parseArg(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil
	}
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return name, true
	}
	return name, value
}

// edgeCandidates lists the usual Edge executable names for goos.
func edgeCandidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"}
	case "windows":
		return []string{
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
			"msedge.exe",
		}
	default:
		return []string{"microsoft-edge", "microsoft-edge-stable", "microsoft-edge-beta", "msedge"}
	}
}

func findEdge() string {
	candidates := edgeCandidates(runtime.GOOS)
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path
		}
	}
	return candidates[0]
}

func (o Options) validate() error {
	switch o.Browser {
	case schemas.BrowserChrome, schemas.BrowserEdge:
	default:
		return fmt.Errorf("cdp backend cannot drive %q", o.Browser)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", o.Width, o.Height)
	}
	return nil
}
