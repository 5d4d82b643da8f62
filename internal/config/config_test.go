// File: internal/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "uiharness", cfg.Logger().ServiceName)
	assert.Equal(t, "chrome", cfg.Run().Browser)
	assert.Equal(t, "levelup", cfg.Run().Client)
	assert.Equal(t, "production", cfg.Run().Environment)
	assert.Equal(t, "INFO", cfg.Run().Logging)
	assert.Equal(t, "false", cfg.Run().Headless)
	assert.Equal(t, 5*time.Second, cfg.Browser().ImplicitWait)
	assert.Equal(t, 1920, cfg.Browser().WindowWidth)
	assert.Equal(t, 1480, cfg.Browser().WindowHeight)
	assert.True(t, cfg.Browser().GrantMediaPermissions)
	assert.Equal(t, 50*time.Second, cfg.Interaction().Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Interaction().PollInterval)
	assert.Equal(t, 150, cfg.Interaction().ScrollOffset)
	assert.Equal(t, "first", cfg.Interaction().Disambiguation)
	assert.Equal(t, "screenshots", cfg.Artifacts().ScreenshotDir)
	assert.Equal(t, 1, cfg.Scenario().Parallel)
	assert.Equal(t, 30*time.Second, cfg.Links().Timeout)
	assert.True(t, cfg.Links().FollowRedirects)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate(), "A valid config should not produce a validation error")

		invalidWindow := *cfg
		invalidWindow.BrowserCfg.WindowWidth = 0
		err := invalidWindow.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.window_width and browser.window_height must be positive integers")

		invalidParallel := *cfg
		invalidParallel.ScenarioCfg.Parallel = 0
		err = invalidParallel.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scenario.parallel must be a positive integer")

		missingScreens := *cfg
		missingScreens.ArtifactsCfg.ScreenshotDir = ""
		err = missingScreens.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "artifacts.screenshot_dir")

		relativeProxy := *cfg
		relativeProxy.LinksCfg.ProxyURL = "proxy.internal:3128"
		err = relativeProxy.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "links.proxy_url must be an absolute URL")

		proxied := *cfg
		proxied.LinksCfg.ProxyURL = "http://proxy.internal:3128"
		assert.NoError(t, proxied.Validate())
	})

	t.Run("Interaction Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Interaction()
		assert.NoError(t, valid.Validate())

		zeroTimeout := valid
		zeroTimeout.Timeout = 0
		assert.ErrorContains(t, zeroTimeout.Validate(), "timeout must be a positive duration")

		slowPoll := valid
		slowPoll.PollInterval = 2 * valid.Timeout
		assert.ErrorContains(t, slowPoll.Validate(), "poll_interval must not exceed timeout")

		badStrategy := valid
		badStrategy.Disambiguation = "last"
		assert.ErrorContains(t, badStrategy.Validate(), "disambiguation must be one of first, random")

		randomStrategy := valid
		randomStrategy.Disambiguation = "random"
		assert.NoError(t, randomStrategy.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
run:
  browser: firefox
  env: stage1
interaction:
  timeout: 10s
  disambiguation: random
browser:
  args: ["--lang=en-US"]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "firefox", cfg.Run().Browser)
		assert.Equal(t, "stage1", cfg.Run().Environment)
		// Defaults survive for keys the file does not mention.
		assert.Equal(t, "levelup", cfg.Run().Client)
		assert.Equal(t, 10*time.Second, cfg.Interaction().Timeout)
		assert.Equal(t, "random", cfg.Interaction().Disambiguation)
		assert.Equal(t, []string{"--lang=en-US"}, cfg.Browser().Args)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("scenario.parallel", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "scenario.parallel must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
results:
  database_url: "postgres://configfile/db"
`)))

		testDBURL := "postgres://envvar/db"
		t.Setenv("UIHARNESS_RESULTS_DATABASE_URL", testDBURL)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, testDBURL, cfg.Results().DatabaseURL, "env var must override the config file")
	})

	t.Run("Home Relative Paths Are Expanded", func(t *testing.T) {
		home, err := homedir.Dir()
		require.NoError(t, err)

		v := viper.New()
		SetDefaults(v)
		v.Set("artifacts.screenshot_dir", "~/shots")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "shots"), cfg.Artifacts().ScreenshotDir)
	})
}

// -- Setter Tests --

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(true)
	assert.Equal(t, "true", cfg.Run().Headless)
	cfg.SetBrowserHeadless(false)
	assert.Equal(t, "false", cfg.Run().Headless)

	raw := cfg.Run()
	raw.Browser = "edge"
	cfg.SetRunOptions(raw)
	assert.Equal(t, "edge", cfg.Run().Browser)
}

// -- Loading --

func TestLoad(t *testing.T) {
	t.Run("should fall back to defaults without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, "chrome", cfg.Run().Browser)
		assert.Equal(t, 50*time.Second, cfg.Interaction().Timeout)
	})

	t.Run("should layer file, environment and flags", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "harness.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
run:
  browser: firefox
  env: stage1
interaction:
  timeout: 20s
`), 0o644))
		t.Setenv("UIHARNESS_RUN_ENV", "release")

		v := viper.New()
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("logging", "INFO", "")
		require.NoError(t, fs.Parse([]string{"--logging=DEBUG"}))
		require.NoError(t, v.BindPFlag("run.logging", fs.Lookup("logging")))

		cfg, err := Load(v, path)
		require.NoError(t, err)
		assert.Equal(t, "firefox", cfg.Run().Browser, "file overrides default")
		assert.Equal(t, "release", cfg.Run().Environment, "environment overrides file")
		assert.Equal(t, "DEBUG", cfg.Run().Logging, "flag overrides everything")
		assert.Equal(t, 20*time.Second, cfg.Interaction().Timeout)
	})

	t.Run("should fail for a missing explicit file", func(t *testing.T) {
		_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}
