package schemas

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ErrInvalidValue is wrapped by every Parse function when the input is not a
// member of its closed set.
var ErrInvalidValue = errors.New("invalid option value")

// -- Run Option Sets --

// Browser names a browser vendor the harness can drive.
type Browser string

const (
	BrowserChrome  Browser = "chrome"
	BrowserEdge    Browser = "edge"
	BrowserFirefox Browser = "firefox"
	BrowserSafari  Browser = "safari" // Accepted by the option parser, rejected at driver construction.
)

// Client names the application tenant under test.
type Client string

const (
	ClientLevelUp Client = "levelup"
)

// Environment names the deployment the tests run against.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvRelease    Environment = "release"
	EnvStage1     Environment = "stage1"
)

// LogLevel is the verbosity requested on the command line.
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// Browsers lists every accepted browser value, in declaration order.
func Browsers() []Browser {
	return []Browser{BrowserChrome, BrowserEdge, BrowserFirefox, BrowserSafari}
}

// Clients lists every accepted client value.
func Clients() []Client { return []Client{ClientLevelUp} }

// Environments lists every accepted environment value.
func Environments() []Environment {
	return []Environment{EnvProduction, EnvRelease, EnvStage1}
}

// LogLevels lists every accepted log level value.
func LogLevels() []LogLevel {
	return []LogLevel{LogDebug, LogInfo, LogWarning, LogError}
}

func (b Browser) String() string     { return string(b) }
func (c Client) String() string      { return string(c) }
func (e Environment) String() string { return string(e) }
func (l LogLevel) String() string    { return string(l) }

// ZapLevel maps the command line verbosity onto a zap level.
func (l LogLevel) ZapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogWarning:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseBrowser validates s against the browser set.
func ParseBrowser(s string) (Browser, error) {
	return parseMember("browser name", s, Browsers())
}

// ParseClient validates s against the client set.
func ParseClient(s string) (Client, error) {
	return parseMember("client name", s, Clients())
}

// ParseEnvironment validates s against the environment set.
func ParseEnvironment(s string) (Environment, error) {
	return parseMember("environment name", s, Environments())
}

// ParseLogLevel validates s against the log level set.
func ParseLogLevel(s string) (LogLevel, error) {
	return parseMember("logging level", s, LogLevels())
}

// parseMember performs an exact, case sensitive membership check. The error
// names every allowed value so the operator can correct the flag.
func parseMember[T ~string](what, s string, allowed []T) (T, error) {
	for _, v := range allowed {
		if string(v) == s {
			return v, nil
		}
	}
	names := make([]string, len(allowed))
	for i, v := range allowed {
		names[i] = string(v)
	}
	var zero T
	return zero, fmt.Errorf("%w: %s can only accept following values %s, got %q",
		ErrInvalidValue, what, strings.Join(names, ", "), s)
}

// -- Run Options --

// RawRunOptions carries the unvalidated strings exactly as they arrived from
// flags, environment or config.
type RawRunOptions struct {
	Browser     string `mapstructure:"browser" yaml:"browser"`
	Client      string `mapstructure:"client" yaml:"client"`
	Environment string `mapstructure:"env" yaml:"env"`
	Logging     string `mapstructure:"logging" yaml:"logging"`
	Headless    string `mapstructure:"headless" yaml:"headless"`
}

// RunOptions is the validated form of RawRunOptions. A value of this type is
// only obtainable through ParseRunOptions, so every field is a set member.
type RunOptions struct {
	Browser     Browser
	Client      Client
	Environment Environment
	LogLevel    LogLevel
	Headless    bool
}

// ParseRunOptions validates every field and reports all violations together.
func ParseRunOptions(raw RawRunOptions) (RunOptions, error) {
	var (
		opts RunOptions
		errs []error
		err  error
	)
	if opts.Browser, err = ParseBrowser(raw.Browser); err != nil {
		errs = append(errs, err)
	}
	if opts.Client, err = ParseClient(raw.Client); err != nil {
		errs = append(errs, err)
	}
	if opts.Environment, err = ParseEnvironment(raw.Environment); err != nil {
		errs = append(errs, err)
	}
	if opts.LogLevel, err = ParseLogLevel(raw.Logging); err != nil {
		errs = append(errs, err)
	}
	if opts.Headless, err = parseHeadless(raw.Headless); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return RunOptions{}, errors.Join(errs...)
	}
	return opts, nil
}

func parseHeadless(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, fmt.Errorf("%w: headless can only accept following values true, false, got %q", ErrInvalidValue, s)
	}
	return b, nil
}

// Raw converts validated options back to their string form, mostly for
// reporting and for respawning sessions with identical settings.
func (o RunOptions) Raw() RawRunOptions {
	return RawRunOptions{
		Browser:     string(o.Browser),
		Client:      string(o.Client),
		Environment: string(o.Environment),
		Logging:     string(o.LogLevel),
		Headless:    strconv.FormatBool(o.Headless),
	}
}

// Labels returns the options as sorted key/value pairs for report parameters.
func (o RunOptions) Labels() [][2]string {
	m := map[string]string{
		"browser":  string(o.Browser),
		"client":   string(o.Client),
		"env":      string(o.Environment),
		"headless": strconv.FormatBool(o.Headless),
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

// ExecContext identifies what a session is pointed at. Page objects receive
// it at construction and branch on Client or Environment when locators or
// URLs differ between tenants.
type ExecContext struct {
	Browser     Browser
	Client      Client
	Environment Environment
}

// Exec returns the execution context carried by these options.
func (o RunOptions) Exec() ExecContext {
	return ExecContext{Browser: o.Browser, Client: o.Client, Environment: o.Environment}
}
