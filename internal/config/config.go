// Package config holds the heuristics the resolver depends on: host
// denylist, selectors, attribute names and timings. They track one search
// site's current markup, so they live in data rather than code.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/andybalholm/cascadia"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"hires/internal/activation"
	"hires/internal/candidate"
	"hires/internal/observe"
)

const (
	MinPollInterval = 50 * time.Millisecond
	MaxPollInterval = 150 * time.Millisecond
)

// Config is the top-level resolver configuration.
type Config struct {
	Timing    TimingConfig    `yaml:"timing"`
	Filter    FilterConfig    `yaml:"filter"`
	Scan      ScanConfig      `yaml:"scan"`
	Selectors SelectorsConfig `yaml:"selectors"`
}

// TimingConfig bounds every wait the resolver makes.
type TimingConfig struct {
	Deadline         time.Duration `yaml:"deadline"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	FinalScanTimeout time.Duration `yaml:"final_scan_timeout"`
	CleanupTimeout   time.Duration `yaml:"cleanup_timeout"`
	FastPathLevels   int           `yaml:"fast_path_levels"`
	AncestorLevels   int           `yaml:"ancestor_levels"`
	MinPollArea      int           `yaml:"min_poll_area"`
}

// FilterConfig rejects candidates that cannot be originals.
type FilterConfig struct {
	Denylist     []string `yaml:"denylist"`
	MinURLLength int      `yaml:"min_url_length"`
}

// ScanConfig names where addresses hide in markup.
type ScanConfig struct {
	LazyAttributes []string `yaml:"lazy_attributes"`
	AnchorParams   []string `yaml:"anchor_params"`
}

// SelectorsConfig locates host page regions.
type SelectorsConfig struct {
	Preview     []string `yaml:"preview"`
	Interactive string   `yaml:"interactive"`
	Dismiss     []string `yaml:"dismiss"`
	Thumbnails  string   `yaml:"thumbnails"`
}

// Default returns the configuration for the current Google Images layout.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file. Omitted settings take their
// defaults; an explicitly empty list stays empty.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	t := &c.Timing
	if t.Deadline <= 0 {
		t.Deadline = 4 * time.Second
	}
	if t.PollInterval <= 0 {
		t.PollInterval = 100 * time.Millisecond
	}
	if t.PollInterval < MinPollInterval {
		t.PollInterval = MinPollInterval
	}
	if t.PollInterval > MaxPollInterval {
		t.PollInterval = MaxPollInterval
	}
	if t.FinalScanTimeout <= 0 {
		t.FinalScanTimeout = 250 * time.Millisecond
	}
	if t.CleanupTimeout <= 0 {
		t.CleanupTimeout = 2 * time.Second
	}
	if t.FastPathLevels <= 0 {
		t.FastPathLevels = 2
	}
	if t.AncestorLevels <= 0 {
		t.AncestorLevels = 2
	}
	if t.MinPollArea <= 0 {
		t.MinPollArea = 40000
	}

	if c.Filter.Denylist == nil {
		c.Filter.Denylist = []string{
			"gstatic.com",
			"google.com",
			"googleapis.com",
			"lh*.googleusercontent.com",
			"ggpht.com",
			"googleadservices.com",
		}
	}
	if c.Filter.MinURLLength <= 0 {
		c.Filter.MinURLLength = 20
	}

	if c.Scan.LazyAttributes == nil {
		c.Scan.LazyAttributes = []string{"data-src", "data-iurl", "data-ou", "data-lazy-src", "data-srcset", "srcset"}
	}
	if c.Scan.AnchorParams == nil {
		c.Scan.AnchorParams = []string{"imgurl", "mediaurl", "iurl"}
	}

	if c.Selectors.Preview == nil {
		c.Selectors.Preview = []string{"#islsp", "#Sva75c", `div[jsname="CGzTgf"]`, `[role="dialog"]`}
	}
	if c.Selectors.Interactive == "" {
		c.Selectors.Interactive = `a, button, [role="button"], [jsaction], [tabindex]`
	}
	if c.Selectors.Dismiss == nil {
		c.Selectors.Dismiss = []string{`[aria-label="Close"]`, `button[jsname="tqp7ud"]`, `a[jsname="tqp7ud"]`}
	}
	if c.Selectors.Thumbnails == "" {
		c.Selectors.Thumbnails = `#islrg img, #search g-img img, div[data-lpage] img, div[data-ri] img`
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Timing.Deadline <= 0 {
		err = multierr.Append(err, fmt.Errorf("timing.deadline must be positive"))
	}
	if c.Timing.PollInterval < MinPollInterval || c.Timing.PollInterval > MaxPollInterval {
		err = multierr.Append(err, fmt.Errorf("timing.poll_interval must be between %s and %s", MinPollInterval, MaxPollInterval))
	}
	if c.Timing.FinalScanTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("timing.final_scan_timeout must be positive"))
	}
	if c.Timing.CleanupTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("timing.cleanup_timeout must be positive"))
	}
	if _, e := c.Policy(); e != nil {
		err = multierr.Append(err, e)
	}

	selectors := map[string]string{
		"selectors.interactive": c.Selectors.Interactive,
		"selectors.thumbnails":  c.Selectors.Thumbnails,
	}
	for i, s := range c.Selectors.Preview {
		selectors[fmt.Sprintf("selectors.preview[%d]", i)] = s
	}
	for i, s := range c.Selectors.Dismiss {
		selectors[fmt.Sprintf("selectors.dismiss[%d]", i)] = s
	}
	for name, s := range selectors {
		if _, e := cascadia.Compile(s); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", name, e))
		}
	}
	return err
}

// Scanner builds the candidate scanner for this configuration.
func (c *Config) Scanner() (*candidate.Scanner, error) {
	return candidate.NewScanner(candidate.Rules{
		LazyAttributes:   c.Scan.LazyAttributes,
		AnchorParams:     c.Scan.AnchorParams,
		PreviewSelectors: c.Selectors.Preview,
	})
}

// Policy builds the candidate filter for this configuration.
func (c *Config) Policy() (*candidate.Policy, error) {
	return candidate.NewPolicy(c.Filter.Denylist, c.Filter.MinURLLength)
}

// Activation returns the activation controller settings.
func (c *Config) Activation() activation.Config {
	return activation.Config{
		PreviewSelectors:    c.Selectors.Preview,
		InteractiveSelector: c.Selectors.Interactive,
		DismissSelectors:    c.Selectors.Dismiss,
	}
}

// Observe returns the observation window settings.
func (c *Config) Observe() observe.Config {
	return observe.Config{
		PollInterval:     c.Timing.PollInterval,
		FinalScanTimeout: c.Timing.FinalScanTimeout,
		AncestorLevels:   c.Timing.AncestorLevels,
		MinPollArea:      c.Timing.MinPollArea,
	}
}
