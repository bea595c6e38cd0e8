// Package scraper fetches published knowledge pages. Markdown and plain
// text are used as served; HTML is rewritten into the heading layout the
// knowledge parser reads.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/pkg/logger"
)

const maxBodySize = 10 << 20

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int     // 0 fetches only the given page
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth cannot be negative")
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", ".md", ".markdown", ".txt", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

// New returns a scraper restricted to the host of baseURL.
func New(baseURL string) (*Scraper, error) {
	return NewWithConfig(ScraperConfig{
		BaseURL: baseURL,
	})
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if s.baseHost != "" && parsedURL.Host != s.baseHost {
		return false
	}

	// Check extensions
	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			if !strings.Contains(lastSegment(ext), ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

// Fetch downloads a single page and returns it as knowledge markdown.
func (s *Scraper) Fetch(ctx context.Context, urlStr string) (models.Page, error) {
	page, _, err := s.fetch(ctx, urlStr, 0)
	return page, err
}

// Scrape fetches urlStr and, up to MaxDepth, the same-host pages it links
// to. Failures below the first page are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, urlStr string) ([]models.Page, error) {
	var pages []models.Page
	visited := make(map[string]bool)

	if err := s.scrapeRecursive(ctx, urlStr, 0, visited, &pages); err != nil {
		return pages, err
	}
	return pages, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, visited map[string]bool, pages *[]models.Page) error {
	if depth > s.config.MaxDepth || visited[urlStr] {
		return nil
	}

	if depth > 0 && !s.shouldProcessURL(urlStr) {
		return nil
	}

	visited[urlStr] = true

	page, links, err := s.fetch(ctx, urlStr, depth)
	if err != nil {
		return err
	}
	*pages = append(*pages, page)

	if depth == s.config.MaxDepth {
		return nil
	}

	for _, link := range links {
		if err := s.scrapeRecursive(ctx, link, depth+1, visited, pages); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Error scraping URL: %v", err)
		}
	}

	return nil
}

func (s *Scraper) fetch(ctx context.Context, urlStr string, depth int) (models.Page, []string, error) {
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Page{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Page{}, nil, fmt.Errorf("invalid URL %s: %w", urlStr, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Page{}, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	contentType := resp.Header.Get("Content-Type")
	page := models.Page{
		URL:         urlStr,
		ContentType: contentType,
		Depth:       depth,
	}

	if isPlainText(contentType, urlStr) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return models.Page{}, nil, fmt.Errorf("failed to read %s: %w", urlStr, err)
		}
		page.Content = strings.ReplaceAll(string(body), "\r\n", "\n")
		page.Title = markdownTitle(page.Content)
		return page, nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Page{}, nil, err
	}

	page.Title = strings.TrimSpace(doc.Find("title").Text())
	page.Content = s.extractMainContent(doc)

	return page, s.extractLinks(doc, urlStr), nil
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	root := doc.Find("body")
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}

	if content := toMarkdown(root); content != "" {
		return content
	}
	return cleanContent(root.Text())
}

func (s *Scraper) extractLinks(doc *goquery.Document, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug("Error parsing URL: %v", err)
			return
		}

		// Make sure the URL is absolute
		abs := baseURL.ResolveReference(ref)
		abs.Fragment = ""
		links = append(links, abs.String())
	})

	return links
}

// toMarkdown renders block elements as lines. Headings keep their level so
// "## ", "### " and "#### " sections survive; a paragraph that starts with
// bold text keeps the bold markers.
func toMarkdown(root *goquery.Selection) string {
	const blocks = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, dt, dd"

	var lines []string
	root.Find(blocks).Each(func(_ int, sel *goquery.Selection) {
		if sel.ParentsFiltered("p, li, pre, blockquote").Length() > 0 {
			return
		}

		text := collapse(sel.Text())
		if text == "" {
			return
		}

		switch goquery.NodeName(sel) {
		case "h1":
			lines = append(lines, "# "+text)
		case "h2":
			lines = append(lines, "## "+text)
		case "h3":
			lines = append(lines, "### "+text)
		case "h4":
			lines = append(lines, "#### "+text)
		case "p", "dt":
			lines = append(lines, boldLead(sel, text))
		default:
			lines = append(lines, text)
		}
	})

	return strings.Join(lines, "\n")
}

// boldLead renders <p><strong>回答:</strong> text</p> as "**回答:** text".
func boldLead(sel *goquery.Selection, text string) string {
	first := sel.Children().First()
	if first.Length() == 0 {
		return text
	}
	if name := goquery.NodeName(first); name != "strong" && name != "b" {
		return text
	}

	bold := collapse(first.Text())
	if bold == "" || !strings.HasPrefix(text, bold) {
		return text
	}

	rest := strings.TrimSpace(strings.TrimPrefix(text, bold))
	if rest == "" {
		return "**" + bold + "**"
	}
	return "**" + bold + "** " + rest
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = collapse(content)

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isPlainText(contentType, urlStr string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/markdown") || strings.HasPrefix(ct, "text/x-markdown") || strings.HasPrefix(ct, "text/plain") {
		return true
	}
	if strings.Contains(ct, "html") {
		return false
	}

	path := strings.ToLower(urlStr)
	if u, err := url.Parse(urlStr); err == nil {
		path = strings.ToLower(u.Path)
	}
	return strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".markdown")
}

func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
