// Package page is the interaction layer page objects are built on. Each
// operation wraps raw driver calls in explicit presence, visibility or
// clickability waits and reports a tagged Result instead of a boolean, so a
// test can tell a slow page from a missing element from a broken backend.
//
// Every wait polls at a fixed interval, honors context cancellation and is
// bounded by the page timeout unless the call supplies its own.
package page

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/xkilldash9x/uiharness/api/schemas"
	"github.com/xkilldash9x/uiharness/internal/config"
	"github.com/xkilldash9x/uiharness/internal/driver"
	"github.com/xkilldash9x/uiharness/internal/observability"
)

const (
	defaultTimeout       = 50 * time.Second
	defaultPollInterval  = 500 * time.Millisecond
	defaultSettleDelay   = 500 * time.Millisecond
	defaultWindowPoll    = time.Second
	defaultWindowTimeout = 10 * time.Second
	defaultScrollOffset  = 150
	defaultLinkCheckRate = 5
	defaultHTTPTimeout   = 30 * time.Second
)

// Observer is notified after every public operation with its name, result
// and wall time.
type Observer func(op string, res Result, elapsed time.Duration)

// Page drives one browser session on behalf of a page object. A Page is not
// safe for concurrent use, matching the driver underneath it.
type Page struct {
	drv    driver.Driver
	exec   schemas.ExecContext
	logger *zap.Logger

	timeout       time.Duration
	poll          time.Duration
	settle        time.Duration
	windowPoll    time.Duration
	windowTimeout time.Duration
	scrollOffset  int
	pick          Pick
	// configRandom defers building the configured random pick until every
	// option ran, so it draws from the final rng.
	configRandom bool

	observers []Observer
	http      *http.Client
	limiter   *rate.Limiter
	rng       *rand.Rand
}

// Option configures a Page.
type Option func(*Page)

// WithTimeout bounds every element and URL wait.
func WithTimeout(d time.Duration) Option {
	return func(p *Page) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPollInterval sets how often element waits re-query the document.
func WithPollInterval(d time.Duration) Option {
	return func(p *Page) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithSettleDelay sets the fixed pause taken before acting on a located
// element and after window changes. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Page) {
		if d >= 0 {
			p.settle = d
		}
	}
}

// WithWindowPolling sets the quantum and ceiling used while waiting for a
// new window and while polling URLs during link checks.
func WithWindowPolling(interval, timeout time.Duration) Option {
	return func(p *Page) {
		if interval > 0 {
			p.windowPoll = interval
		}
		if timeout > 0 {
			p.windowTimeout = timeout
		}
	}
}

// WithScrollOffset sets how far ScrollIntoView scrolls back up after
// revealing an element.
func WithScrollOffset(px int) Option {
	return func(p *Page) { p.scrollOffset = px }
}

// WithDefaultPick sets the disambiguation used when a call passes a nil Pick.
func WithDefaultPick(pick Pick) Option {
	return func(p *Page) {
		if pick != nil {
			p.pick = pick
			p.configRandom = false
		}
	}
}

// WithObserver registers o. Observers run in registration order.
func WithObserver(o Observer) Option {
	return func(p *Page) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithLogger replaces the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Page) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHTTPClient sets the client used by LinkStatus.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Page) {
		if c != nil {
			p.http = c
		}
	}
}

// WithLinkCheckRate caps LinkStatus requests per second. A value <= 0
// removes the cap.
func WithLinkCheckRate(perSecond float64) Option {
	return func(p *Page) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithRand sets the source behind RandomIndex, RandomString and the random
// pick built from configuration.
func WithRand(src rand.Source) Option {
	return func(p *Page) {
		if src != nil {
			p.rng = rand.New(src)
		}
	}
}

// FromConfig applies the interaction section of the configuration.
func FromConfig(cfg config.InteractionConfig) Option {
	return func(p *Page) {
		for _, opt := range []Option{
			WithTimeout(cfg.Timeout),
			WithPollInterval(cfg.PollInterval),
			WithSettleDelay(cfg.SettleDelay),
			WithWindowPolling(cfg.WindowPollInterval, cfg.WindowTimeout),
			WithLinkCheckRate(cfg.LinkCheckRate),
		} {
			opt(p)
		}
		if cfg.ScrollOffset > 0 {
			p.scrollOffset = cfg.ScrollOffset
		}
		if pick, err := PickFromConfig(cfg.Disambiguation); err == nil {
			p.pick = pick
			_, p.configRandom = pick.(randomPick)
		}
	}
}

// New binds a Page to drv and the execution context of its session.
func New(drv driver.Driver, exec schemas.ExecContext, opts ...Option) *Page {
	p := &Page{
		drv:           drv,
		exec:          exec,
		logger:        observability.GetLogger().Named("page"),
		timeout:       defaultTimeout,
		poll:          defaultPollInterval,
		settle:        defaultSettleDelay,
		windowPoll:    defaultWindowPoll,
		windowTimeout: defaultWindowTimeout,
		scrollOffset:  defaultScrollOffset,
		pick:          First(),
		http:          &http.Client{Timeout: defaultHTTPTimeout},
		limiter:       rate.NewLimiter(rate.Limit(defaultLinkCheckRate), 1),
		rng:           rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.configRandom {
		p.pick = randomPick{rng: p.rng}
	}
	return p
}

// Driver exposes the underlying driver for calls the layer does not wrap.
func (p *Page) Driver() driver.Driver { return p.drv }

// Exec returns the execution context the page was built for.
func (p *Page) Exec() schemas.ExecContext { return p.exec }

// Logger returns the page logger.
func (p *Page) Logger() *zap.Logger { return p.logger }

// Timeout returns the default wait ceiling.
func (p *Page) Timeout() time.Duration { return p.timeout }

// -- Waiting --

// readiness is the state an element has to reach before it is acted on.
type readiness int

const (
	present readiness = iota
	visible
	clickable
)

func (r readiness) String() string {
	switch r {
	case visible:
		return "visible"
	case clickable:
		return "clickable"
	default:
		return "present"
	}
}

func (r readiness) satisfied(ctx context.Context, el driver.Element) (bool, error) {
	if r == present {
		return true, nil
	}
	shown, err := el.IsDisplayed(ctx)
	if err != nil || !shown || r == visible {
		return shown, err
	}
	return el.IsEnabled(ctx)
}

// match is the element an await settled on, plus everything the locator
// matched at that moment.
type match struct {
	el    driver.Element
	index int
	all   []driver.Element
}

// await polls until pick selects an element matching loc that satisfies
// need. A zero timeout uses the page timeout and a nil pick the page default.
func (p *Page) await(ctx context.Context, loc driver.Locator, pick Pick, need readiness, timeout time.Duration) (match, Result) {
	if pick == nil {
		pick = p.pick
	}
	if timeout <= 0 {
		timeout = p.timeout
	}

	var (
		found   match
		picked  bool
		lastErr error
	)
	err := wait.PollUntilContextTimeout(ctx, p.poll, timeout, true, func(ctx context.Context) (bool, error) {
		els, err := p.drv.FindElements(ctx, loc)
		if err != nil {
			if fatal(err) {
				return false, err
			}
			lastErr = err
			return false, nil
		}
		i, ok, err := pick.Choose(ctx, els)
		if err != nil {
			lastErr = err
			return false, nil
		}
		if !ok {
			return false, nil
		}
		picked = true
		ready, err := need.satisfied(ctx, els[i])
		if err != nil {
			lastErr = err
			return false, nil
		}
		if !ready {
			return false, nil
		}
		found = match{el: els[i], index: i, all: els}
		return true, nil
	})
	if err == nil {
		return found, succeeded()
	}

	what := loc.String() + " (" + pick.String() + ") to be " + need.String()
	return match{}, p.stopped(ctx, err, what, !picked, lastErr)
}

// stopped turns a poll error into a Result. The caller's own context is
// checked first so cancellation from a surrounding test is never reported as
// an element timing out.
func (p *Page) stopped(ctx context.Context, err error, what string, missing bool, lastErr error) Result {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return failed(ctxErr, "waiting for %s", what)
	}
	if !wait.Interrupted(err) {
		return failed(err, "waiting for %s", what)
	}
	if lastErr != nil {
		what += ", last error: " + lastErr.Error()
	}
	if missing {
		return notFound("%s", what)
	}
	return timedOut("%s", what)
}

// fatal reports errors no amount of polling can fix.
func fatal(err error) bool {
	return errors.Is(err, driver.ErrUnsupportedLocator) || errors.Is(err, driver.ErrNoSuchWindow)
}

// sleep pauses for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// settleDown takes the settle pause, reporting cancellation as a failure.
func (p *Page) settleDown(ctx context.Context, op string) Result {
	if err := sleep(ctx, p.settle); err != nil {
		return failed(err, "%s", op)
	}
	return succeeded()
}

// record logs the outcome of op and notifies observers. It is deferred by
// every public operation with a pointer to the named result.
func (p *Page) record(op string, start time.Time, res *Result) {
	elapsed := time.Since(start)
	if res.OK() {
		p.logger.Debug("Interaction succeeded.", zap.String("op", op), zap.Duration("elapsed", elapsed))
	} else {
		p.logger.Warn("Interaction did not succeed.",
			zap.String("op", op),
			zap.Stringer("outcome", res.Outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.Err))
	}
	for _, o := range p.observers {
		o(op, *res, elapsed)
	}
}
