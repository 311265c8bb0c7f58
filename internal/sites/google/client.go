package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"hires/internal/browser"
	"hires/internal/extractor"
	"hires/internal/fetcher"
	"hires/internal/hostdoc"
	"hires/internal/scraper"
)

const (
	captureBinding = "hires_capture"
	maxScrolls     = 5
)

// consentSelectors accept the cookie interstitial shown in some regions.
var consentSelectors = []string{
	`#L2AGLb`,
	`button[aria-label="Accept all"]`,
	`form[action*="consent"] button`,
}

// Thumbnail is a result image on the search page.
type Thumbnail struct {
	Ref hostdoc.Ref `json:"ref"`
	Src string      `json:"src"`
}

// parseCapture decodes a capture binding payload.
func parseCapture(payload string) (Thumbnail, error) {
	var t Thumbnail
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to parse capture payload: %w", err)
	}
	if t.Ref == "" {
		return Thumbnail{}, fmt.Errorf("capture payload has no element")
	}
	return t, nil
}

// Client drives one Google Images results page.
type Client struct {
	browser *browser.Browser
	page    *rod.Page
	doc     *Document
	logger  *zap.Logger
}

// NewClient creates a new Client instance.
func NewClient(b *browser.Browser, logger *zap.Logger) *Client {
	return &Client{browser: b, logger: logger}
}

// Open loads searchURL and waits for results according to opts.
func (c *Client) Open(ctx context.Context, searchURL string, opts scraper.Options) (*fetcher.FetchResult, error) {
	wait := fetcher.WaitStrategy(opts.WaitFor)
	target := opts.WaitTarget
	if wait == "" {
		wait, target = fetcher.WaitStrategyElement, opts.Thumbnails()
	}

	result, err := fetcher.NewFetcher(c.browser).Fetch(ctx, fetcher.Request{
		URL:        searchURL,
		Headers:    opts.Headers,
		Wait:       wait,
		WaitTarget: target,
		Timeout:    opts.Timeout,
		Setup: func(page *rod.Page) error {
			_, err := page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`)
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load results page: %w", err)
	}
	c.page = result.Page

	doc, err := NewDocument(c.page, c.logger)
	if err != nil {
		return nil, err
	}
	c.doc = doc

	if clicked, _ := doc.ClickFirst(ctx, consentSelectors); clicked {
		c.logger.Info("accepted consent interstitial")
		if err := c.page.Context(ctx).Timeout(opts.Timeout).WaitLoad(); err != nil {
			return nil, fmt.Errorf("failed to wait for page load: %w", err)
		}
		if _, err := c.page.Context(ctx).Timeout(opts.Timeout).Element(opts.Thumbnails()); err != nil {
			return nil, fmt.Errorf("failed to wait for element '%s': %w", opts.Thumbnails(), err)
		}
		if err := doc.install(); err != nil {
			return nil, err
		}
		if info, err := c.page.Info(); err == nil {
			result.URL, result.Title = info.URL, info.Title
		}
	}

	return result, nil
}

// Document returns the host document of the opened page.
func (c *Client) Document() *Document {
	return c.doc
}

// Thumbnails lists result images, scrolling to load more until at least
// want are present. want <= 0 takes whatever the first screen holds.
func (c *Client) Thumbnails(ctx context.Context, selector string, want int) ([]Thumbnail, error) {
	if c.doc == nil {
		return nil, fmt.Errorf("page is not open")
	}
	for i := 0; i < maxScrolls && want > 0; i++ {
		v, err := c.doc.eval(ctx, countJS, selector)
		if err != nil {
			return nil, fmt.Errorf("failed to count thumbnails: %w", err)
		}
		if v.Int() >= want {
			break
		}
		if _, err := c.doc.eval(ctx, scrollJS); err != nil {
			return nil, fmt.Errorf("failed to scroll: %w", err)
		}
		select {
		case <-time.After(700 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	v, err := c.doc.eval(ctx, thumbnailsJS, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	var thumbs []Thumbnail
	if err := decode(v, &thumbs); err != nil {
		return nil, err
	}
	return thumbs, nil
}

// Captures reports every thumbnail the user right-clicks until ctx ends.
// The returned channel is closed when ctx ends.
func (c *Client) Captures(ctx context.Context) (<-chan Thumbnail, error) {
	if c.page == nil {
		return nil, fmt.Errorf("page is not open")
	}
	if err := (proto.RuntimeAddBinding{Name: captureBinding}).Call(c.page); err != nil {
		return nil, fmt.Errorf("failed to add binding: %w", err)
	}
	if _, err := c.page.EvalOnNewDocument("(" + captureJS + ")();"); err != nil {
		return nil, fmt.Errorf("failed to install capture hook: %w", err)
	}

	out := make(chan Thumbnail, 1)
	wait := c.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != captureBinding {
			return
		}
		t, err := parseCapture(e.Payload)
		if err != nil {
			c.logger.Debug("ignoring capture", zap.Error(err))
			return
		}
		// drop the older capture if the consumer is still busy
		select {
		case <-out:
		default:
		}
		out <- t
	})
	go func() {
		wait()
		close(out)
	}()

	if _, err := c.page.Context(ctx).Eval(captureJS); err != nil {
		return nil, fmt.Errorf("failed to install capture hook: %w", err)
	}
	return out, nil
}

// Save writes the rendered results page to path. level is an extractor
// level; the css level keeps only the elements matching selector.
func (c *Client) Save(path, level, selector string) error {
	if c.page == nil {
		return fmt.Errorf("page is not open")
	}
	if level == "" {
		level = "full"
	}
	html, err := extractor.NewExtractor(c.page).Extract(level, selector)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Close closes the page.
func (c *Client) Close() {
	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}
}
