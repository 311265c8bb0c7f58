package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hires/internal/config"
)

type Scraper interface {
	Name() string
	Scrape(ctx context.Context, target string, opts Options) (Content, error)
}

type Content interface {
	ToHTML() (string, error)
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToJSON() ([]byte, error)
	ToCSV() (string, error)
}

type Options struct {
	Headers    map[string]string
	WaitFor    string // load/element/time/idle
	WaitTarget string
	Timeout    time.Duration // page load
	Selector   string        // thumbnail selector override
	ShowUI     bool
	ProxyURL   string // --proxy flag or HIRES_PROXY env var
	Index      int    // 1-based thumbnail to start from
	Count      int
	Watch      bool   // resolve right-clicked thumbnails until interrupted
	SavePath   string // write the rendered results page here
	SaveLevel  string // full/html/css
	SaveScope  string // css level selector
	Config     *config.Config
	Logger     *zap.Logger
}

// Thumbnails returns the selector that finds thumbnails on a results page.
func (o Options) Thumbnails() string {
	if o.Selector != "" {
		return o.Selector
	}
	return o.Conf().Selectors.Thumbnails
}

// Conf returns the configured heuristics, or the defaults.
func (o Options) Conf() *config.Config {
	if o.Config == nil {
		return config.Default()
	}
	return o.Config
}

// Window returns the [start, end) slice of n thumbnails selected by Index
// and Count. Count <= 0 selects everything from Index on.
func (o Options) Window(n int) (int, int) {
	start := o.Index - 1
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if o.Count > 0 && start+o.Count < n {
		end = start + o.Count
	}
	return start, end
}

// Log returns the configured logger, or a no-op one.
func (o Options) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
