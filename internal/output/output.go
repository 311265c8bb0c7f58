package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Row 一张缩略图的解析结果
type Row struct {
	Index     int    `json:"index"`
	Thumbnail string `json:"thumbnail"`
	// Original 为解析出的原图地址；未解析时回退为缩略图地址
	Original string        `json:"original"`
	Resolved bool          `json:"resolved"`
	Elapsed  time.Duration `json:"-"`
}

// Results 实现 scraper.Content
type Results struct {
	site     string
	query    string
	source   string
	rows     []Row
	loadTime time.Duration
}

// NewResults 创建新的 Results 实例
func NewResults(site, query, source string, loadTime time.Duration) *Results {
	return &Results{site: site, query: query, source: source, loadTime: loadTime}
}

// Add 追加一行；original 为空表示未解析，此时回退为缩略图地址
func (r *Results) Add(index int, thumbnail, original string, elapsed time.Duration) {
	row := Row{Index: index, Thumbnail: thumbnail, Original: original, Resolved: original != "", Elapsed: elapsed}
	if !row.Resolved {
		row.Original = thumbnail
	}
	r.rows = append(r.rows, row)
}

// Rows 返回已收集的结果
func (r *Results) Rows() []Row {
	return r.rows
}

// Resolved 返回成功解析的行数
func (r *Results) Resolved() int {
	n := 0
	for _, row := range r.rows {
		if row.Resolved {
			n++
		}
	}
	return n
}

func (r *Results) title() string {
	if r.query == "" {
		return fmt.Sprintf("Original images (%s)", r.site)
	}
	return fmt.Sprintf("Original images (%s): %s", r.site, r.query)
}

func status(row Row) string {
	if row.Resolved {
		return "resolved"
	}
	return "fallback"
}

// ToHTML 输出为HTML表格
func (r *Results) ToHTML() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(r.title())))
	if r.source != "" {
		sb.WriteString(fmt.Sprintf("<p>Source: <a href=%q>%s</a></p>\n", r.source, html.EscapeString(r.source)))
	}
	sb.WriteString("<table>\n<thead><tr><th>#</th><th>Status</th><th>Original</th><th>Thumbnail</th><th>Time</th></tr></thead>\n<tbody>\n")
	for _, row := range r.rows {
		sb.WriteString(fmt.Sprintf("<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			row.Index, status(row), html.EscapeString(row.Original), html.EscapeString(row.Thumbnail), row.Elapsed.Round(time.Millisecond)))
	}
	sb.WriteString("</tbody>\n</table>\n")
	return sb.String(), nil
}

// ToText 每行一个原图地址，便于管道处理
func (r *Results) ToText() (string, error) {
	var sb strings.Builder
	for _, row := range r.rows {
		sb.WriteString(row.Original)
		if !row.Resolved {
			sb.WriteString("\t(thumbnail)")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// ToMarkdown 先生成HTML，表格单独转换为Markdown表格，其余交给转换器
func (r *Results) ToMarkdown() (string, error) {
	content, err := r.ToHTML()
	if err != nil {
		return "", err
	}

	// 预处理 HTML，表格替换为占位符，转换后再填回
	withPlaceholders, tables := convertTablesInHTML(content)

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(withPlaceholders)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	for i, table := range tables {
		markdown = strings.Replace(markdown, tablePlaceholder(i), strings.TrimSpace(table), 1)
	}
	return strings.TrimSpace(markdown) + "\n", nil
}

// jsonOutput JSON输出结构
type jsonOutput struct {
	Site     string    `json:"site"`
	Query    string    `json:"query,omitempty"`
	Source   string    `json:"source,omitempty"`
	LoadTime int64     `json:"load_time"`
	Resolved int       `json:"resolved"`
	Results  []jsonRow `json:"results"`
}

type jsonRow struct {
	Row
	ElapsedMS int64 `json:"elapsed_ms"`
}

// ToJSON 输出JSON格式数据
func (r *Results) ToJSON() ([]byte, error) {
	rows := make([]jsonRow, 0, len(r.rows))
	for _, row := range r.rows {
		rows = append(rows, jsonRow{Row: row, ElapsedMS: row.Elapsed.Milliseconds()})
	}
	data, err := json.MarshalIndent(jsonOutput{
		Site:     r.site,
		Query:    r.query,
		Source:   r.source,
		LoadTime: r.loadTime.Milliseconds(),
		Resolved: r.Resolved(),
		Results:  rows,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// ToCSV 输出CSV
func (r *Results) ToCSV() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Index", "Resolved", "Original", "Thumbnail", "ElapsedMS"})
	for _, row := range r.rows {
		_ = w.Write([]string{
			strconv.Itoa(row.Index),
			strconv.FormatBool(row.Resolved),
			row.Original,
			row.Thumbnail,
			strconv.FormatInt(row.Elapsed.Milliseconds(), 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.String(), nil
}

var tablePattern = regexp.MustCompile(`(?is)<table\b[^>]*>.*?</table>`)

func tablePlaceholder(i int) string {
	return "MARKDOWNTABLE" + strconv.Itoa(i)
}

// convertTablesInHTML 将HTML中的所有表格替换为占位符，并返回转换好的Markdown表格
func convertTablesInHTML(htmlContent string) (string, []string) {
	var tables []string
	out := tablePattern.ReplaceAllStringFunc(htmlContent, func(table string) string {
		converted, ok := convertHTMLTableToMarkdown(table)
		if !ok {
			return table
		}
		tables = append(tables, converted)
		return "<p>" + tablePlaceholder(len(tables)-1) + "</p>"
	})
	return out, tables
}

// convertHTMLTableToMarkdown 将HTML表格转换为Markdown表格
func convertHTMLTableToMarkdown(tableHTML string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		// 解析失败，保留原HTML
		return "", false
	}

	var builder strings.Builder
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		// 提取表头行（优先从thead找，其次从第一个tr找）
		headerRow := table.Find("thead tr").First()
		if headerRow.Length() == 0 {
			headerRow = table.Find("tr").First()
		}
		headers := cellTexts(headerRow.Find("th, td"))
		if len(headers) < 1 {
			return
		}

		writeMarkdownRow(&builder, headers)
		sep := make([]string, len(headers))
		for j := range sep {
			sep[j] = "---"
		}
		writeMarkdownRow(&builder, sep)

		dataRows := table.Find("tbody tr")
		if dataRows.Length() == 0 {
			dataRows = table.Find("tr").Slice(1, goquery.ToEnd)
		}
		dataRows.Each(func(j int, row *goquery.Selection) {
			if cells := cellTexts(row.Find("td, th")); len(cells) >= 1 {
				writeMarkdownRow(&builder, cells)
			}
		})
	})

	if builder.Len() == 0 {
		return "", false
	}
	return builder.String(), true
}

func cellTexts(cells *goquery.Selection) []string {
	out := []string{}
	cells.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.ReplaceAll(strings.TrimSpace(cell.Text()), "|", `\|`))
	})
	return out
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}
