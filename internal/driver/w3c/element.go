package w3c

import (
	"context"
	"fmt"

	"github.com/tebeka/selenium"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// Element adapts a selenium.WebElement.
type Element struct {
	wd selenium.WebDriver
	we selenium.WebElement
}

var _ driver.Element = (*Element)(nil)

func (e *Element) script(ctx context.Context, js string, args ...interface{}) error {
	return do(ctx, func() error {
		_, err := e.wd.ExecuteScript(js, append([]interface{}{e.we}, args...))
		return err
	})
}

func (e *Element) Click(ctx context.Context) error {
	return do(ctx, e.we.Click)
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	return do(ctx, func() error { return e.we.SendKeys(text) })
}

// ClearByKeys holds control for the "a" only; NullKey releases modifiers.
func (e *Element) ClearByKeys(ctx context.Context) error {
	return do(ctx, func() error {
		if err := e.we.SendKeys(selenium.ControlKey + "a" + selenium.NullKey); err != nil {
			return err
		}
		return e.we.SendKeys(selenium.BackspaceKey)
	})
}

func (e *Element) PressEnter(ctx context.Context) error {
	return do(ctx, func() error { return e.we.SendKeys(selenium.EnterKey) })
}

func (e *Element) PressKeyChord(ctx context.Context, key driver.Key) error {
	return do(ctx, func() error {
		return e.we.SendKeys(selenium.ControlKey + wireKey(key) + selenium.NullKey)
	})
}

func wireKey(key driver.Key) string {
	switch key {
	case driver.KeyEnd:
		return selenium.EndKey
	case driver.KeyHome:
		return selenium.HomeKey
	}
	return string(key)
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var s string
	err := do(ctx, func() (err error) { s, err = e.we.Text(); return })
	return s, err
}

// Attribute returns "" for absent attributes; the library reports those as
// an error.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	var s string
	err := do(ctx, func() error {
		v, err := e.we.GetAttribute(name)
		if err != nil && err.Error() == "nil return value" {
			return nil
		}
		s = v
		return err
	})
	return s, err
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	var s string
	err := do(ctx, func() (err error) { s, err = e.we.TagName(); return })
	return s, err
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	var b bool
	err := do(ctx, func() (err error) { b, err = e.we.IsDisplayed(); return })
	return b, err
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	var b bool
	err := do(ctx, func() (err error) { b, err = e.we.IsEnabled(); return })
	return b, err
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.script(ctx, "arguments[0].scrollIntoView(true);")
}

func (e *Element) Hover(ctx context.Context) error {
	return e.script(ctx, `const el = arguments[0];
for (const type of ["mouseover", "mouseenter", "mousemove"]) {
	el.dispatchEvent(new MouseEvent(type, {bubbles: type !== "mouseenter", view: window}));
}`)
}

func (e *Element) SelectByIndex(ctx context.Context, index int) error {
	return do(ctx, func() error {
		options, err := e.we.FindElements(selenium.ByTagName, "option")
		if err != nil {
			return err
		}
		if index < 0 || index >= len(options) {
			return fmt.Errorf("option index %d out of range [0,%d)", index, len(options))
		}
		return options[index].Click()
	})
}
