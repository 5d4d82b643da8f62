package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/driver"
	"github.com/xkilldash9x/uiharness/internal/harness"
	"github.com/xkilldash9x/uiharness/internal/page"
)

const (
	setupFailedMessage = "Setting up a test failed!"
	randomLength       = 8
)

// ErrExpectation marks a step whose check ran but did not hold.
var ErrExpectation = errors.New("expectation not met")

// resultError carries a failed page.Result through error returns.
type resultError struct {
	res page.Result
}

func (e *resultError) Error() string { return e.res.String() }
func (e *resultError) Unwrap() error { return e.res.Err }

func check(res page.Result) error {
	if res.OK() {
		return nil
	}
	return &resultError{res: res}
}

// Runner executes scenarios one after another on a single session.
type Runner struct {
	h        *harness.Harness
	pageOpts []page.Option
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner runs scenarios through h. pageOpts are applied to every page
// after the configured interaction settings.
func NewRunner(h *harness.Harness, pageOpts ...page.Option) *Runner {
	return &Runner{
		h:        h,
		pageOpts: pageOpts,
		logger:   h.Session().Logger().Named("scenario"),
		now:      time.Now,
	}
}

// Run executes sc and reports it. A failed step stops the scenario, captures
// a screenshot and names the step in the result message.
func (r *Runner) Run(ctx context.Context, sc *Scenario) *schemas.TestResult {
	res := &schemas.TestResult{
		ID:       uuid.NewString(),
		Name:     sc.Name,
		FullName: "scenario/" + sc.Name,
		Phase:    schemas.PhaseSetup,
		Start:    r.now(),
		Options:  r.h.Session().Options(),
	}
	logger := r.logger.With(zap.String("scenario", sc.Name))
	p := r.h.NewPage(r.pageOpts...)

	start := expand(p, sc.Start)
	if err := check(p.GoTo(ctx, start)); err != nil {
		logger.Error(setupFailedMessage, zap.String("start", start), zap.Error(err))
		res.Status = schemas.StatusBroken
		res.Message = fmt.Sprintf("%s %v", setupFailedMessage, err)
		return r.finish(ctx, res)
	}

	res.Phase = schemas.PhaseCall
	res.Status = schemas.StatusPassed
	for i, st := range sc.Steps {
		att, err := r.step(ctx, p, st)
		if att != nil {
			res.Attachments = append(res.Attachments, *att)
		}
		if err == nil {
			continue
		}
		logger.Warn("Scenario step failed.", zap.Int("step", i+1), zap.String("action", string(st.Action)), zap.Error(err))
		res.Status = schemas.StatusFailed
		res.Message = fmt.Sprintf("step %d (%s): %v", i+1, st.Action, err)
		if shot, err := r.h.Screenshot(ctx); err != nil {
			logger.Warn("Failed to capture screenshot.", zap.Error(err))
		} else {
			res.Attachments = append(res.Attachments, shot)
		}
		break
	}
	return r.finish(ctx, res)
}

func (r *Runner) finish(ctx context.Context, res *schemas.TestResult) *schemas.TestResult {
	res.Stop = r.now()
	r.h.Report(ctx, res)
	return res
}

// step runs one action. Screenshot steps return an attachment.
func (r *Runner) step(ctx context.Context, p *page.Page, st Step) (*schemas.Attachment, error) {
	loc, target, err := st.locators()
	if err != nil {
		return nil, err
	}
	pick := st.pick()

	switch st.Action {
	case ActionGo:
		return nil, check(p.GoTo(ctx, expand(p, st.Value)))
	case ActionClick:
		return nil, check(p.Click(ctx, loc, pick))
	case ActionHoverClick:
		return nil, check(p.HoverClick(ctx, loc, target))
	case ActionFill:
		return nil, check(p.Fill(ctx, loc, expand(p, st.Value), pick))
	case ActionPressEnter:
		return nil, check(p.PressEnter(ctx, loc, pick))
	case ActionSelect:
		return nil, check(p.SelectOption(ctx, loc, *st.Index))
	case ActionExpectURL:
		return nil, check(p.CheckForNewURL(ctx, expand(p, st.Expect), st.Interval, st.Timeout))
	case ActionExpectText:
		texts, res := p.Texts(ctx, loc)
		if err := check(res); err != nil {
			return nil, err
		}
		want := expand(p, st.Expect)
		for _, t := range texts {
			if strings.Contains(t, want) {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("%w: no %s contains %q, got %q", ErrExpectation, loc, want, texts)
	case ActionExpectFieldError:
		return nil, check(p.CheckFieldErrorMessage(ctx, loc, st.Expect))
	case ActionExpectCount:
		n, res := p.Count(ctx, loc)
		if err := check(res); err != nil {
			return nil, err
		}
		if n != *st.Count {
			return nil, fmt.Errorf("%w: %s matched %d elements, want %d", ErrExpectation, loc, n, *st.Count)
		}
		return nil, nil
	case ActionExpectVisible:
		return nil, check(p.CheckPageElement(ctx, loc, st.Timeout))
	case ActionExpectStatus:
		link := expand(p, st.Value)
		code, res := p.LinkStatus(ctx, link)
		if err := check(res); err != nil {
			return nil, err
		}
		want := st.Status
		if want == 0 {
			want = 200
		}
		if code != want {
			return nil, fmt.Errorf("%w: %s returned %d, want %d", ErrExpectation, link, code, want)
		}
		return nil, nil
	case ActionNewTabLink:
		return nil, check(p.CheckNewPageLinkWorks(ctx, loc, expand(p, st.Expect), pick))
	case ActionSameTabLink:
		return nil, check(p.CheckSamePageLinkWorks(ctx, loc, expand(p, st.Expect), pick))
	case ActionNewWindowLink:
		return nil, check(p.CheckNewWindowLinkWorks(ctx, loc, expand(p, st.Expect), pick))
	case ActionSwitchNewWindow:
		return nil, check(p.SwitchToNewWindow(ctx, st.Interval, st.Timeout))
	case ActionSwitchOldWindow:
		return nil, check(p.SwitchToOldWindow(ctx))
	case ActionCloseWindow:
		return nil, check(p.CloseWindow(ctx, *st.Index))
	case ActionScrollIntoView:
		return nil, check(p.ScrollIntoView(ctx, loc, pick, st.Offset))
	case ActionScrollBottom:
		return nil, check(p.ScrollToBottom(ctx))
	case ActionScrollTop:
		return nil, check(p.ScrollToTop(ctx))
	case ActionBack:
		return nil, check(p.Back(ctx))
	case ActionRefresh:
		return nil, check(p.Refresh(ctx))
	case ActionScreenshot:
		att, err := r.h.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		if st.Value != "" {
			att.Name = st.Value
		}
		return &att, nil
	default:
		return nil, fmt.Errorf("unknown action %q", st.Action)
	}
}

func (st Step) locators() (loc, target driver.Locator, err error) {
	if st.Locator != "" {
		if loc, err = driver.ParseLocator(st.Locator); err != nil {
			return loc, target, err
		}
	}
	if st.Target != "" {
		if target, err = driver.ParseLocator(st.Target); err != nil {
			return loc, target, err
		}
	}
	return loc, target, nil
}

// pick returns nil for the page default.
func (st Step) pick() page.Pick {
	switch {
	case st.Index != nil:
		return page.At(*st.Index)
	case st.Pick == "first":
		return page.First()
	case st.Pick == "random":
		return page.Random(nil)
	default:
		return nil
	}
}

// expand substitutes ${VAR} from the process environment, which holds the
// loaded env file. ${RANDOM} becomes a fresh random string.
func expand(p *page.Page, s string) string {
	return os.Expand(s, func(key string) string {
		if key == "RANDOM" {
			return p.RandomString(randomLength)
		}
		if n, ok := strings.CutPrefix(key, "RANDOM_"); ok {
			if size, err := strconv.Atoi(n); err == nil {
				return p.RandomString(size)
			}
		}
		return os.Getenv(key)
	})
}
