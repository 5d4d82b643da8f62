// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/uiharness/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Run() schemas.RawRunOptions
	Browser() BrowserConfig
	Interaction() InteractionConfig
	Links() LinksConfig
	Artifacts() ArtifactsConfig
	Results() ResultsConfig
	Metrics() MetricsConfig
	Scenario() ScenarioConfig

	// Run Setters, fed by command line flags.
	SetRunOptions(raw schemas.RawRunOptions)
	SetBrowserHeadless(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig          `mapstructure:"logger" yaml:"logger"`
	RunCfg         schemas.RawRunOptions `mapstructure:"run" yaml:"run"`
	BrowserCfg     BrowserConfig         `mapstructure:"browser" yaml:"browser"`
	InteractionCfg InteractionConfig     `mapstructure:"interaction" yaml:"interaction"`
	LinksCfg       LinksConfig           `mapstructure:"links" yaml:"links"`
	ArtifactsCfg   ArtifactsConfig       `mapstructure:"artifacts" yaml:"artifacts"`
	ResultsCfg     ResultsConfig         `mapstructure:"results" yaml:"results"`
	MetricsCfg     MetricsConfig         `mapstructure:"metrics" yaml:"metrics"`
	ScenarioCfg    ScenarioConfig        `mapstructure:"scenario" yaml:"scenario"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Run() schemas.RawRunOptions     { return c.RunCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Interaction() InteractionConfig { return c.InteractionCfg }
func (c *Config) Links() LinksConfig             { return c.LinksCfg }
func (c *Config) Artifacts() ArtifactsConfig     { return c.ArtifactsCfg }
func (c *Config) Results() ResultsConfig         { return c.ResultsCfg }
func (c *Config) Metrics() MetricsConfig         { return c.MetricsCfg }
func (c *Config) Scenario() ScenarioConfig       { return c.ScenarioCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRunOptions(raw schemas.RawRunOptions) { c.RunCfg = raw }
func (c *Config) SetBrowserHeadless(b bool) {
	if b {
		c.RunCfg.Headless = "true"
	} else {
		c.RunCfg.Headless = "false"
	}
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds the capabilities every driver session is started with.
type BrowserConfig struct {
	// Args are extra command line switches appended to the fixed set.
	Args         []string      `mapstructure:"args" yaml:"args"`
	WindowWidth  int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int           `mapstructure:"window_height" yaml:"window_height"`
	ImplicitWait time.Duration `mapstructure:"implicit_wait" yaml:"implicit_wait"`
	// StartupTimeout bounds driver construction, including browser launch.
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	// GrantMediaPermissions allows microphone, camera and notifications
	// without a prompt and feeds fake media devices.
	GrantMediaPermissions bool   `mapstructure:"grant_media_permissions" yaml:"grant_media_permissions"`
	ChromeBinary          string `mapstructure:"chrome_binary" yaml:"chrome_binary"`
	EdgeBinary            string `mapstructure:"edge_binary" yaml:"edge_binary"`
	FirefoxBinary         string `mapstructure:"firefox_binary" yaml:"firefox_binary"`
	GeckoDriverPath       string `mapstructure:"geckodriver_path" yaml:"geckodriver_path"`
	GeckoDriverPort       int    `mapstructure:"geckodriver_port" yaml:"geckodriver_port"`
	Debug                 bool   `mapstructure:"debug" yaml:"debug"`
}

// InteractionConfig tunes the polling waits of the page interaction layer.
type InteractionConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// SettleDelay is the fixed pause taken before clicks and after window changes.
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	WindowPollInterval time.Duration `mapstructure:"window_poll_interval" yaml:"window_poll_interval"`
	WindowTimeout      time.Duration `mapstructure:"window_timeout" yaml:"window_timeout"`
	ScrollOffset       int           `mapstructure:"scroll_offset" yaml:"scroll_offset"`
	// Disambiguation picks among multiple matches when no index is given: first or random.
	Disambiguation string `mapstructure:"disambiguation" yaml:"disambiguation"`
	// LinkCheckRate caps link status probes per second.
	LinkCheckRate float64 `mapstructure:"link_check_rate" yaml:"link_check_rate"`
}

// LinksConfig configures the HTTP client behind link status checks.
type LinksConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// IgnoreTLSErrors accepts self-signed certificates on staging hosts.
	IgnoreTLSErrors bool   `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ProxyURL        string `mapstructure:"proxy_url" yaml:"proxy_url"`
	// FollowRedirects reports the status of the final response instead of
	// the first redirect.
	FollowRedirects bool `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	ForceHTTP2      bool `mapstructure:"force_http2" yaml:"force_http2"`
}

// ArtifactsConfig holds the locations for files produced by a run.
type ArtifactsConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ReportDir     string `mapstructure:"report_dir" yaml:"report_dir"`
	// EnvDir is where the search for .env-<client>-<env> starts.
	EnvDir string `mapstructure:"env_dir" yaml:"env_dir"`
}

// ResultsConfig holds the optional results database connection details.
type ResultsConfig struct {
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// ScenarioConfig controls scenario execution.
type ScenarioConfig struct {
	Parallel int `mapstructure:"parallel" yaml:"parallel"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uiharness")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Run --
	v.SetDefault("run.browser", string(schemas.BrowserChrome))
	v.SetDefault("run.client", string(schemas.ClientLevelUp))
	v.SetDefault("run.env", string(schemas.EnvProduction))
	v.SetDefault("run.logging", string(schemas.LogInfo))
	v.SetDefault("run.headless", "false")

	// -- Browser --
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1480)
	v.SetDefault("browser.implicit_wait", "5s")
	v.SetDefault("browser.startup_timeout", "60s")
	v.SetDefault("browser.grant_media_permissions", true)
	v.SetDefault("browser.geckodriver_path", "geckodriver")
	v.SetDefault("browser.geckodriver_port", 4444)
	v.SetDefault("browser.debug", false)

	// -- Interaction --
	v.SetDefault("interaction.timeout", "50s")
	v.SetDefault("interaction.poll_interval", "500ms")
	v.SetDefault("interaction.settle_delay", "500ms")
	v.SetDefault("interaction.window_poll_interval", "1s")
	v.SetDefault("interaction.window_timeout", "10s")
	v.SetDefault("interaction.scroll_offset", 150)
	v.SetDefault("interaction.disambiguation", "first")
	v.SetDefault("interaction.link_check_rate", 5.0)

	// -- Links --
	v.SetDefault("links.timeout", "30s")
	v.SetDefault("links.ignore_tls_errors", false)
	v.SetDefault("links.proxy_url", "")
	v.SetDefault("links.follow_redirects", true)
	v.SetDefault("links.force_http2", true)

	// -- Artifacts --
	v.SetDefault("artifacts.screenshot_dir", "screenshots")
	v.SetDefault("artifacts.report_dir", "allure-results")
	v.SetDefault("artifacts.env_dir", ".")

	// -- Scenario --
	v.SetDefault("scenario.parallel", 1)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("results.database_url", "UIHARNESS_RESULTS_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the URL if Unmarshal didn't pick it up
	if cfg.ResultsCfg.DatabaseURL == "" {
		cfg.ResultsCfg.DatabaseURL = os.Getenv("UIHARNESS_RESULTS_DATABASE_URL")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every path-valued setting.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.ArtifactsCfg.ScreenshotDir,
		&c.ArtifactsCfg.ReportDir,
		&c.ArtifactsCfg.EnvDir,
		&c.MetricsCfg.TextfilePath,
		&c.BrowserCfg.ChromeBinary,
		&c.BrowserCfg.EdgeBinary,
		&c.BrowserCfg.FirefoxBinary,
		&c.BrowserCfg.GeckoDriverPath,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Run options are not checked here; they are validated by the session
// bootstrap so the error lists the allowed values.
func (c *Config) Validate() error {
	if c.BrowserCfg.WindowWidth <= 0 || c.BrowserCfg.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive integers")
	}
	if c.BrowserCfg.ImplicitWait < 0 {
		return fmt.Errorf("browser.implicit_wait must not be negative")
	}
	if err := c.InteractionCfg.Validate(); err != nil {
		return fmt.Errorf("interaction configuration invalid: %w", err)
	}
	if c.LinksCfg.Timeout <= 0 {
		return fmt.Errorf("links.timeout must be a positive duration")
	}
	if c.LinksCfg.ProxyURL != "" {
		if u, err := url.Parse(c.LinksCfg.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("links.proxy_url must be an absolute URL, got %q", c.LinksCfg.ProxyURL)
		}
	}
	if c.ArtifactsCfg.ScreenshotDir == "" {
		return fmt.Errorf("artifacts.screenshot_dir is a required configuration field")
	}
	if c.ScenarioCfg.Parallel <= 0 {
		return fmt.Errorf("scenario.parallel must be a positive integer")
	}
	return nil
}

// Validate checks the InteractionConfig settings.
func (i *InteractionConfig) Validate() error {
	if i.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if i.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if i.PollInterval > i.Timeout {
		return fmt.Errorf("poll_interval must not exceed timeout")
	}
	if i.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if i.WindowPollInterval <= 0 || i.WindowTimeout <= 0 {
		return fmt.Errorf("window_poll_interval and window_timeout must be positive durations")
	}
	switch i.Disambiguation {
	case "first", "random":
	default:
		return fmt.Errorf("disambiguation must be one of first, random")
	}
	if i.LinkCheckRate <= 0 {
		return fmt.Errorf("link_check_rate must be positive")
	}
	return nil
}
