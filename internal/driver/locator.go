package driver

import (
	"fmt"
	"strings"
)

// By is a element location strategy, using the W3C WebDriver names.
type By string

const (
	ByCSS             By = "css selector"
	ByXPath           By = "xpath"
	ByID              By = "id"
	ByName            By = "name"
	ByTagName         By = "tag name"
	ByClassName       By = "class name"
	ByLinkText        By = "link text"
	ByPartialLinkText By = "partial link text"
)

// Locator is an immutable (strategy, selector) pair identifying zero or more
// elements.
type Locator struct {
	By    By
	Value string
}

func CSS(sel string) Locator              { return Locator{By: ByCSS, Value: sel} }
func XPath(expr string) Locator           { return Locator{By: ByXPath, Value: expr} }
func ID(id string) Locator                { return Locator{By: ByID, Value: id} }
func Name(name string) Locator            { return Locator{By: ByName, Value: name} }
func TagName(tag string) Locator          { return Locator{By: ByTagName, Value: tag} }
func ClassName(class string) Locator      { return Locator{By: ByClassName, Value: class} }
func LinkText(text string) Locator        { return Locator{By: ByLinkText, Value: text} }
func PartialLinkText(text string) Locator { return Locator{By: ByPartialLinkText, Value: text} }

// String renders the locator in the textual form accepted by ParseLocator.
func (l Locator) String() string {
	return prefixFor[l.By] + "=" + l.Value
}

// IsZero reports whether l is the zero Locator.
func (l Locator) IsZero() bool { return l.By == "" && l.Value == "" }

var prefixFor = map[By]string{
	ByCSS:             "css",
	ByXPath:           "xpath",
	ByID:              "id",
	ByName:            "name",
	ByTagName:         "tag",
	ByClassName:       "class",
	ByLinkText:        "link",
	ByPartialLinkText: "partial",
}

var byPrefix = func() map[string]By {
	m := make(map[string]By, len(prefixFor))
	for by, p := range prefixFor {
		m[p] = by
	}
	return m
}()

// ParseLocator parses "strategy=selector", e.g. "css=a.login" or
// "xpath=//button[text()='Go']". Only the first '=' separates the parts.
func ParseLocator(s string) (Locator, error) {
	prefix, value, ok := strings.Cut(s, "=")
	if !ok {
		return Locator{}, fmt.Errorf("%w: %q has no strategy prefix", ErrUnsupportedLocator, s)
	}
	by, known := byPrefix[strings.TrimSpace(prefix)]
	if !known {
		return Locator{}, fmt.Errorf("%w: %q", ErrUnsupportedLocator, prefix)
	}
	if value == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty selector", s)
	}
	return Locator{By: by, Value: value}, nil
}

// CSSEquivalent translates strategies that have a direct CSS form. ok is
// false for xpath and link text strategies.
func (l Locator) CSSEquivalent() (css string, ok bool) {
	switch l.By {
	case ByCSS:
		return l.Value, true
	case ByID:
		return fmt.Sprintf(`[id=%q]`, l.Value), true
	case ByName:
		return fmt.Sprintf(`[name=%q]`, l.Value), true
	case ByTagName:
		return l.Value, true
	case ByClassName:
		return "." + l.Value, true
	}
	return "", false
}
