package fetcher

import (
	"context"
	"fmt"
	"time"

	"hires/internal/browser"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// WaitStrategy 等待策略类型
type WaitStrategy string

const (
	WaitStrategyLoad    WaitStrategy = "load"    // 等待页面完全加载
	WaitStrategyElement WaitStrategy = "element" // 等待指定元素出现
	WaitStrategyTime    WaitStrategy = "time"    // 等待固定时间
	WaitStrategyIdle    WaitStrategy = "idle"    // 等待网络空闲（图片与媒体请求除外）
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetchResult 抓取结果
type FetchResult struct {
	Page     *rod.Page     // 页面对象，由调用方负责关闭
	Title    string        // 页面标题
	URL      string        // 最终URL
	LoadTime time.Duration // 加载耗时
}

// Request 描述一次页面加载
type Request struct {
	URL        string
	Headers    map[string]string
	Wait       WaitStrategy
	WaitTarget string // element 策略的选择器，time 策略的毫秒数
	Timeout    time.Duration
	// Setup 在导航前执行，可用于注入脚本或绑定
	Setup func(page *rod.Page) error
}

// Fetcher 页面抓取器
type Fetcher struct {
	browser *browser.Browser
}

// NewFetcher 创建新的 Fetcher 实例
func NewFetcher(b *browser.Browser) *Fetcher {
	return &Fetcher{browser: b}
}

// Fetch 打开新页面，导航到 req.URL 并按等待策略等待页面就绪
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*FetchResult, error) {
	startTime := time.Now()

	page, err := f.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	fail := func(err error) (*FetchResult, error) {
		page.Close()
		return nil, err
	}

	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})

	if len(req.Headers) > 0 {
		headerList := make([]string, 0, len(req.Headers)*2)
		for k, v := range req.Headers {
			headerList = append(headerList, k, v)
		}
		if _, err := page.SetExtraHeaders(headerList); err != nil {
			return fail(fmt.Errorf("failed to set headers: %w", err))
		}
	}

	if req.Setup != nil {
		if err := req.Setup(page); err != nil {
			return fail(fmt.Errorf("failed to prepare page: %w", err))
		}
	}

	if err := page.Context(ctx).Timeout(req.Timeout).Navigate(req.URL); err != nil {
		return fail(fmt.Errorf("failed to navigate: %w", err))
	}

	if err := applyWaitStrategy(ctx, page, req); err != nil {
		return fail(fmt.Errorf("wait strategy failed: %w", err))
	}

	info, err := page.Info()
	if err != nil {
		return fail(fmt.Errorf("failed to get page info: %w", err))
	}

	return &FetchResult{
		Page:     page,
		Title:    info.Title,
		URL:      info.URL,
		LoadTime: time.Since(startTime),
	}, nil
}

// applyWaitStrategy 应用等待策略
func applyWaitStrategy(ctx context.Context, page *rod.Page, req Request) error {
	p := page.Context(ctx).Timeout(req.Timeout)

	switch req.Wait {
	case WaitStrategyElement:
		if req.WaitTarget == "" {
			return fmt.Errorf("wait target is required for element strategy")
		}
		if _, err := p.Element(req.WaitTarget); err != nil {
			return fmt.Errorf("failed to wait for element '%s': %w", req.WaitTarget, err)
		}

	case WaitStrategyTime:
		if req.WaitTarget == "" {
			return fmt.Errorf("wait target is required for time strategy")
		}
		duration, err := time.ParseDuration(req.WaitTarget + "ms")
		if err != nil {
			return fmt.Errorf("invalid wait time '%s': %w", req.WaitTarget, err)
		}
		select {
		case <-time.After(duration):
		case <-ctx.Done():
			return ctx.Err()
		}

	case WaitStrategyIdle:
		if err := p.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
		// 图片与媒体请求会持续发生，不计入空闲判断
		wait := p.WaitRequestIdle(
			500*time.Millisecond, nil, nil,
			[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia},
		)
		wait()

	default:
		if err := p.WaitLoad(); err != nil {
			return fmt.Errorf("failed to wait for page load: %w", err)
		}
	}

	return nil
}
