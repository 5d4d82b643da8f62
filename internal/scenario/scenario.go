// Package scenario runs declarative browser tests written in YAML.
//
//	name: login
//	start: ${BASE_URL}/login
//	steps:
//	  - action: fill
//	    locator: id=email
//	    value: qa+${RANDOM}@example.com
//	  - action: click
//	    locator: css=button[type=submit]
//	  - action: expect_url
//	    expect: /dashboard
//
// Each scenario is one test case: opening start is the setup phase, the
// steps are the call phase.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// Action names a step.
type Action string

const (
	ActionGo               Action = "go"
	ActionClick            Action = "click"
	ActionHoverClick       Action = "hover_click"
	ActionFill             Action = "fill"
	ActionPressEnter       Action = "press_enter"
	ActionSelect           Action = "select"
	ActionExpectURL        Action = "expect_url"
	ActionExpectText       Action = "expect_text"
	ActionExpectFieldError Action = "expect_field_error"
	ActionExpectCount      Action = "expect_count"
	ActionExpectVisible    Action = "expect_visible"
	ActionExpectStatus     Action = "expect_status"
	ActionNewTabLink       Action = "new_tab_link"
	ActionSameTabLink      Action = "same_tab_link"
	ActionNewWindowLink    Action = "new_window_link"
	ActionSwitchNewWindow  Action = "switch_new_window"
	ActionSwitchOldWindow  Action = "switch_old_window"
	ActionCloseWindow      Action = "close_window"
	ActionScrollIntoView   Action = "scroll_into_view"
	ActionScrollBottom     Action = "scroll_bottom"
	ActionScrollTop        Action = "scroll_top"
	ActionBack             Action = "back"
	ActionRefresh          Action = "refresh"
	ActionScreenshot       Action = "screenshot"
)

// requirement lists the fields an action needs.
type requirement struct {
	locator, target, value, expect, count, index bool
}

var actions = map[Action]requirement{
	ActionGo:               {value: true},
	ActionClick:            {locator: true},
	ActionHoverClick:       {locator: true, target: true},
	ActionFill:             {locator: true},
	ActionPressEnter:       {locator: true},
	ActionSelect:           {locator: true, index: true},
	ActionExpectURL:        {expect: true},
	ActionExpectText:       {locator: true, expect: true},
	ActionExpectFieldError: {locator: true},
	ActionExpectCount:      {locator: true, count: true},
	ActionExpectVisible:    {locator: true},
	ActionExpectStatus:     {value: true},
	ActionNewTabLink:       {locator: true},
	ActionSameTabLink:      {locator: true},
	ActionNewWindowLink:    {locator: true},
	ActionSwitchNewWindow:  {},
	ActionSwitchOldWindow:  {},
	ActionCloseWindow:      {index: true},
	ActionScrollIntoView:   {locator: true},
	ActionScrollBottom:     {},
	ActionScrollTop:        {},
	ActionBack:             {},
	ActionRefresh:          {},
	ActionScreenshot:       {},
}

// Scenario is one YAML document.
type Scenario struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	Steps []Step `yaml:"steps"`

	// Path is the file the scenario was loaded from, "" when parsed from bytes.
	Path string `yaml:"-"`
}

// Step is a single action. Only the fields the action uses are read.
type Step struct {
	Action  Action `yaml:"action"`
	Locator string `yaml:"locator"`
	// Target is the element clicked after hovering Locator.
	Target string `yaml:"target"`
	// Index selects among several matches, an option for select, or a
	// window for close_window.
	Index *int `yaml:"index"`
	// Pick is first or random; empty uses the configured default.
	Pick   string `yaml:"pick"`
	Value  string `yaml:"value"`
	Expect string `yaml:"expect"`
	// Status is the expected HTTP status for expect_status, 200 when unset.
	Status   int           `yaml:"status"`
	Count    *int          `yaml:"count"`
	Offset   int           `yaml:"offset"`
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.Path = path
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// LoadAll loads every path, reporting all invalid files together.
func LoadAll(paths []string) ([]*Scenario, error) {
	var (
		out  []*Scenario
		errs []error
	)
	for _, p := range paths {
		sc, err := Load(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, sc)
	}
	return out, errors.Join(errs...)
}

// Parse decodes and validates one scenario. Unknown keys are rejected so a
// misspelt field fails loudly instead of being ignored.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks every step and reports all problems together.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Start == "" {
		errs = append(errs, errors.New("start is required"))
	}
	if len(s.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	for i, st := range s.Steps {
		if err := st.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, st.Action, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the step against its action's requirements.
func (st Step) Validate() error {
	req, ok := actions[st.Action]
	if !ok {
		return fmt.Errorf("unknown action %q", st.Action)
	}

	var errs []error
	missing := func(field string) { errs = append(errs, fmt.Errorf("%s is required", field)) }
	if req.locator {
		if st.Locator == "" {
			missing("locator")
		} else if _, err := driver.ParseLocator(st.Locator); err != nil {
			errs = append(errs, err)
		}
	}
	if req.target {
		if st.Target == "" {
			missing("target")
		} else if _, err := driver.ParseLocator(st.Target); err != nil {
			errs = append(errs, err)
		}
	}
	if req.value && st.Value == "" {
		missing("value")
	}
	if req.expect && st.Expect == "" {
		missing("expect")
	}
	if req.count && st.Count == nil {
		missing("count")
	}
	if req.index && st.Index == nil {
		missing("index")
	}
	if st.Index != nil && *st.Index < 0 {
		errs = append(errs, fmt.Errorf("index must not be negative, got %d", *st.Index))
	}
	switch st.Pick {
	case "", "first", "random":
	default:
		errs = append(errs, fmt.Errorf("pick can only accept following values first, random, got %q", st.Pick))
	}
	if st.Pick != "" && st.Index != nil && !req.index {
		errs = append(errs, errors.New("pick and index are mutually exclusive"))
	}
	if st.Timeout < 0 || st.Interval < 0 {
		errs = append(errs, errors.New("timeout and interval must not be negative"))
	}
	return errors.Join(errs...)
}
