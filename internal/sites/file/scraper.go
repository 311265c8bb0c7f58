// Package file resolves thumbnails in a results page saved with --save.
package file

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"hires/internal/hostdoc/memdoc"
	"hires/internal/output"
	"hires/internal/resolver"
	"hires/internal/scraper"
)

// offlineDeadline caps observation: a saved page never changes, so only
// the fast path and the final scan can find anything.
const offlineDeadline = 300 * time.Millisecond

func init() {
	scraper.Register(&FileScraper{})
}

type FileScraper struct{}

func (s *FileScraper) Name() string { return "file" }

func (s *FileScraper) Scrape(ctx context.Context, path string, opts scraper.Options) (scraper.Content, error) {
	if path == "" {
		return nil, fmt.Errorf("a saved page path is required for --site file")
	}
	logger := opts.Log().Named("file")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	began := time.Now()
	doc, err := memdoc.Load(f)
	if err != nil {
		return nil, err
	}

	ropts, err := resolver.NewOptions(opts.Conf(), logger)
	if err != nil {
		return nil, err
	}
	if ropts.Deadline > offlineDeadline {
		ropts.Deadline = offlineDeadline
	}

	refs := doc.FindAll(opts.Thumbnails())
	start, end := opts.Window(len(refs))
	if start == end {
		return nil, fmt.Errorf("no thumbnails matched %q", opts.Thumbnails())
	}

	engine := resolver.NewEngine(doc, nil, ropts)
	results := output.NewResults(s.Name(), "", path, time.Since(began))
	for i := start; i < end; i++ {
		if ctx.Err() != nil {
			break
		}
		ref := refs[i]
		src, ok := doc.Attr(ref, "src")
		if !ok || src == "" {
			src, _ = doc.Attr(ref, "data-src")
		}

		engine.Capture(ref)
		t := time.Now()
		original, _ := engine.Resolve(ctx, src)
		results.Add(i+1, src, original, time.Since(t))
		logger.Debug("thumbnail done", zap.Int("index", i+1), zap.Bool("resolved", original != ""))
	}
	return results, nil
}
