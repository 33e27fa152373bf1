// Package config loads the harness settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Malformed values never stop a run: booleans that
// aren't "true" read as false and retry counts that aren't a non-negative
// integer read as 0. Only a YAML file that can't be read or parsed is an error.
//
// Example file:
//
//	browser: firefox
//	trace: true
//	retry:
//	  max: 2
//
// The flat key "retry.max: 2" is accepted as well.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/amp-labs/e2e-harness/artifacts"
	"github.com/amp-labs/e2e-harness/attemptlog"
	"github.com/amp-labs/e2e-harness/browser"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable LoadFromEnv reads the file path from.
const PathEnv = "E2E_CONFIG"

// ErrEmptyPath is returned by LoadFile for an empty path.
var ErrEmptyPath = errors.New("config path is empty")

// Backend selects the browser automation library.
type Backend string

const (
	BackendPlaywright Backend = "playwright"
	BackendChromedp   Backend = "chromedp"
)

// Retry holds the retry policy.
type Retry struct {
	Max Retries `yaml:"max" env:"E2E_RETRY_MAX"`
}

// Config is the complete set of recognized options.
type Config struct {
	Browser          string  `yaml:"browser"          env:"E2E_BROWSER"`
	Headed           Flag    `yaml:"headed"           env:"E2E_HEADED"`
	RecordVideo      Flag    `yaml:"recordVideo"      env:"E2E_RECORD_VIDEO"`
	Trace            Flag    `yaml:"trace"            env:"E2E_TRACE"`
	ScreenshotOnFail Flag    `yaml:"screenshotOnFail" env:"E2E_SCREENSHOT_ON_FAIL"`
	Retry            Retry   `yaml:"retry"`
	ArtifactsDir     string  `yaml:"artifactsDir"     env:"E2E_ARTIFACTS_DIR"`
	AttemptLog       string  `yaml:"attemptLog"       env:"E2E_ATTEMPT_LOG"`
	Backend          Backend `yaml:"backend"          env:"E2E_BACKEND"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Browser:          string(browser.Chromium),
		ScreenshotOnFail: true,
		ArtifactsDir:     artifacts.DefaultRoot,
		AttemptLog:       attemptlog.DefaultPath,
		Backend:          BackendPlaywright,
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.LoadEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadFromEnv is Load with the file path taken from E2E_CONFIG.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(PathEnv))
}

// LoadFile overlays the YAML file at path. Keys missing from the file keep
// their current value.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is the intended file to load
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. It accepts both the nested
// retry.max form and the flat "retry.max" key; the flat key wins when both
// are present.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config

	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}

	var flat struct {
		RetryMax *Retries `yaml:"retry.max"`
	}

	if err := node.Decode(&flat); err != nil {
		return err
	}

	if flat.RetryMax != nil {
		c.Retry.Max = *flat.RetryMax
	}

	return nil
}

// LoadEnv overlays the environment. Unset variables keep the current value.
func (c *Config) LoadEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	return nil
}

// Kind returns the browser to launch.
func (c Config) Kind() browser.Kind {
	return browser.ParseKind(c.Browser)
}

// MaxRetries returns how often a failed test is re-run.
func (c Config) MaxRetries() int {
	return max(0, int(c.Retry.Max))
}

// Artifacts returns the capture settings for tests without tags.
func (c Config) Artifacts() artifacts.Config {
	return artifacts.Config{
		ScreenshotOnFail: bool(c.ScreenshotOnFail),
		TraceEnabled:     bool(c.Trace),
		RecordVideo:      bool(c.RecordVideo),
	}
}
