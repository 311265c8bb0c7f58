package extractor

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Extractor 内容提取器
type Extractor struct {
	page *rod.Page
}

// NewExtractor 创建新的 Extractor 实例
func NewExtractor(page *rod.Page) *Extractor {
	return &Extractor{
		page: page,
	}
}

// Extract 根据级别提取当前渲染后的页面
// level: 提取级别 (full/html/css)
// selector: 选择器 (仅用于 css 级别)
func (e *Extractor) Extract(level, selector string) (string, error) {
	switch level {
	case "full":
		return e.extractFull()
	case "html":
		return e.extractHTML()
	case "css":
		return e.extractByCSS(selector)
	default:
		return "", fmt.Errorf("unsupported level: %s", level)
	}
}

// extractFull 提取完整HTML文档（包含head）。
// 内部属性（懒加载地址、内联脚本）原样保留，保存的页面可离线解析。
func (e *Extractor) extractFull() (string, error) {
	result, err := e.page.Timeout(10 * time.Second).Eval(`() => {
		return document.documentElement.outerHTML;
	}`)
	if err != nil {
		return "", fmt.Errorf("failed to get full HTML: %w", err)
	}

	html := result.Value.Str()
	// 添加 DOCTYPE 声明（如果不存在）
	if !strings.Contains(html, "<!DOCTYPE") {
		html = "<!DOCTYPE html>\n" + html
	}
	return html, nil
}

// extractHTML 提取body内的所有HTML标签（包含script和style标签）
func (e *Extractor) extractHTML() (string, error) {
	result, err := e.page.Timeout(10 * time.Second).Eval(`() => {
		const body = document.body;
		return body ? body.innerHTML : '';
	}`)
	if err != nil {
		return "", fmt.Errorf("failed to extract body HTML: %w", err)
	}
	return result.Value.Str(), nil
}

// extractByCSS 使用 CSS 选择器提取内容
func (e *Extractor) extractByCSS(selector string) (string, error) {
	if selector == "" {
		return "", fmt.Errorf("selector is required for css level")
	}
	elements, err := e.page.Timeout(10 * time.Second).Elements(selector)
	if err != nil {
		return "", fmt.Errorf("failed to query CSS selector: %w", err)
	}

	parts := make([]string, 0, len(elements))
	for _, element := range elements {
		html, err := element.HTML()
		if err != nil {
			return "", fmt.Errorf("failed to get element HTML: %w", err)
		}
		parts = append(parts, html)
	}
	return strings.Join(parts, "\n"), nil
}
