package google

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"hires/internal/browser"
	"hires/internal/output"
	"hires/internal/resolver"
	"hires/internal/scraper"
)

func init() {
	scraper.Register(&GoogleScraper{})
}

// GoogleScraper searches Google Images and resolves the original address
// behind each result thumbnail.
type GoogleScraper struct{}

func (s *GoogleScraper) Name() string { return "google" }

// SearchURL returns the image search address for query.
func SearchURL(query string) string {
	return "https://www.google.com/search?tbm=isch&q=" + url.QueryEscape(query)
}

func (s *GoogleScraper) Scrape(ctx context.Context, query string, opts scraper.Options) (scraper.Content, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required for --site google")
	}
	logger := opts.Log().Named("google")

	ropts, err := resolver.NewOptions(opts.Conf(), logger)
	if err != nil {
		return nil, err
	}

	b, err := browser.New(browser.Config{
		ProxyURL: opts.ProxyURL,
		Headless: !opts.ShowUI && !opts.Watch,
		Stealth:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}
	defer b.Close()

	client := NewClient(b, logger)
	defer client.Close()

	searchURL := SearchURL(query)
	result, err := client.Open(ctx, searchURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search google: %w", err)
	}
	logger.Info("results page loaded",
		zap.String("url", result.URL),
		zap.Duration("load_time", result.LoadTime))

	if opts.SavePath != "" {
		if err := client.Save(opts.SavePath, opts.SaveLevel, opts.SaveScope); err != nil {
			return nil, fmt.Errorf("failed to save results page: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Saved results page to %s\n", opts.SavePath)
	}

	tracker := &resolver.Tracker{}
	engine := resolver.NewEngine(client.Document(), tracker, ropts)
	results := output.NewResults(s.Name(), query, result.URL, result.LoadTime)

	if opts.Watch {
		return s.watch(ctx, client, engine, results, logger)
	}

	thumbs, err := client.Thumbnails(ctx, opts.Thumbnails(), opts.Index-1+opts.Count)
	if err != nil {
		return nil, err
	}
	start, end := opts.Window(len(thumbs))
	if start == end {
		return nil, fmt.Errorf("no thumbnails matched %q", opts.Thumbnails())
	}

	for i := start; i < end; i++ {
		if ctx.Err() != nil {
			logger.Warn("interrupted", zap.Int("done", i-start))
			break
		}
		t := thumbs[i]
		engine.Capture(t.Ref)
		began := time.Now()
		resp := engine.Handle(ctx, resolver.Request{
			Action:     resolver.ActionGetOriginalURL,
			TargetHint: t.Src,
		})
		original := ""
		if resp.OriginalURL != nil {
			original = *resp.OriginalURL
		}
		results.Add(i+1, t.Src, original, time.Since(began))
		logger.Debug("thumbnail done",
			zap.Int("index", i+1),
			zap.Bool("resolved", original != ""))
	}

	return results, nil
}

// watch resolves every thumbnail the user right-clicks until ctx ends. A new
// right-click supersedes the one still resolving. Each goroutine resolves the
// ref it was handed; the tracker only serves the request path.
func (s *GoogleScraper) watch(ctx context.Context, client *Client, engine *resolver.Engine, results *output.Results, logger *zap.Logger) (scraper.Content, error) {
	captures, err := client.Captures(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(os.Stderr, "Right-click a thumbnail to resolve it, Ctrl+C to finish")

	var (
		mu sync.Mutex
		wg sync.WaitGroup
		n  int
	)
	for t := range captures {
		engine.Capture(t.Ref)
		n++
		wg.Add(1)
		go func(index int, t Thumbnail) {
			defer wg.Done()
			began := time.Now()
			original, ok := engine.ResolveRef(ctx, t.Ref)
			if ok {
				fmt.Fprintf(os.Stderr, "[%d] %s\n", index, original)
			} else {
				fmt.Fprintf(os.Stderr, "[%d] no original found\n", index)
			}
			mu.Lock()
			results.Add(index, t.Src, original, time.Since(began))
			mu.Unlock()
		}(n, t)
	}
	wg.Wait()
	logger.Info("watch finished", zap.Int("captured", n), zap.Int("resolved", results.Resolved()))
	return results, nil
}
