package harness

import (
	"flag"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flags are the run options accepted on the go test command line, e.g.
//
//	go test ./e2e/... -args --browser=firefox --env=stage1 --headless
type Flags struct {
	fs *flag.FlagSet

	browser  string
	client   string
	env      string
	logging  string
	headless headlessFlag
	config   string
}

// runKeys maps flag names to configuration keys.
var runKeys = map[string]string{
	"browser":  "run.browser",
	"client":   "run.client",
	"env":      "run.env",
	"logging":  "run.logging",
	"headless": "run.headless",
}

// RegisterFlags adds the run option flags to fs. Defaults are left empty so
// configuration and environment values apply unless a flag is given.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.browser, "browser", "", "browser to drive: chrome, edge, firefox, safari")
	fs.StringVar(&f.client, "client", "", "client under test: levelup")
	fs.StringVar(&f.env, "env", "", "environment: production, release, stage1")
	fs.StringVar(&f.logging, "logging", "", "log level: DEBUG, INFO, WARNING, ERROR")
	fs.Var(&f.headless, "headless", "run the browser without a window: true, false")
	fs.StringVar(&f.config, "config", "", "config file (default is ./config.yaml)")
	return f
}

// ConfigPath is the --config value, "" for the default lookup.
func (f *Flags) ConfigPath() string { return f.config }

// Bind merges the flags into v. Only flags set on the command line override
// configuration; unset flags keep file, environment and default values.
func (f *Flags) Bind(v *viper.Viper) error {
	pfs := pflag.NewFlagSet(f.fs.Name(), pflag.ContinueOnError)
	pfs.AddGoFlagSet(f.fs)
	f.fs.Visit(func(gf *flag.Flag) {
		if pf := pfs.Lookup(gf.Name); pf != nil {
			pf.Changed = true
		}
	})
	for name, key := range runKeys {
		if err := v.BindPFlag(key, pfs.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// headlessFlag keeps the raw text so validation can report bad values with
// the allowed set, while a bare --headless still means true.
type headlessFlag struct {
	value string
}

func (h *headlessFlag) String() string { return h.value }

func (h *headlessFlag) Set(s string) error {
	h.value = s
	return nil
}

// Type reports "string" so viper reads the raw value.
func (h *headlessFlag) Type() string { return "string" }

func (h *headlessFlag) IsBoolFlag() bool { return true }
