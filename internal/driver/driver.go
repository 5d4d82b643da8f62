// Package driver defines the capability surface the page interaction layer
// needs from a live browser, independent of the automation protocol behind it.
package driver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSuchElement is returned by FindElement when nothing matches.
	ErrNoSuchElement = errors.New("no such element")
	// ErrNoSuchWindow is returned when a window handle is unknown or closed.
	ErrNoSuchWindow = errors.New("no such window")
	// ErrUnsupportedLocator is returned when a backend cannot evaluate a strategy.
	ErrUnsupportedLocator = errors.New("unsupported locator strategy")
	// ErrStaleElement is returned when an element was detached from the document.
	ErrStaleElement = errors.New("stale element reference")
)

// Driver is a single live connection to a browser process. Implementations
// are not safe for concurrent use; one goroutine drives a session at a time.
type Driver interface {
	Get(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	Back(ctx context.Context) error

	// FindElements returns every element matching loc. No match is an empty
	// slice and a nil error. Backends honor the implicit wait here.
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
	// FindElement returns the first match or ErrNoSuchElement.
	FindElement(ctx context.Context, loc Locator) (Element, error)

	// ExecuteScript runs script as a function body. Element arguments are
	// passed as DOM nodes and available as arguments[i].
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)

	// WindowHandles lists open top level windows and tabs, oldest first.
	WindowHandles(ctx context.Context) ([]string, error)
	CurrentWindowHandle(ctx context.Context) (string, error)
	SwitchWindow(ctx context.Context, handle string) error
	// Close closes the current window. Focus is undefined afterwards until
	// SwitchWindow is called.
	Close(ctx context.Context) error

	Maximize(ctx context.Context) error
	SetImplicitWait(ctx context.Context, d time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)

	// Quit ends the session and releases the browser process.
	Quit(ctx context.Context) error
}

// Element is a handle to one node in the current document.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	// ClearByKeys empties an input by sending select-all followed by a delete
	// key, which fires the same input events a user would.
	ClearByKeys(ctx context.Context) error
	PressEnter(ctx context.Context) error
	// PressKeyChord sends key while the platform control modifier is held.
	PressKeyChord(ctx context.Context, key Key) error

	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute or property value; "" when absent.
	Attribute(ctx context.Context, name string) (string, error)
	TagName(ctx context.Context) (string, error)
	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)

	ScrollIntoView(ctx context.Context) error
	Hover(ctx context.Context) error
	// SelectByIndex chooses the option at index of a <select> element.
	SelectByIndex(ctx context.Context, index int) error
}

// Key names a special key for PressKeyChord.
type Key string

const (
	KeyEnd  Key = "End"
	KeyHome Key = "Home"
	KeyA    Key = "a"
)
