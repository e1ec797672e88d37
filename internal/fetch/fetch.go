// Package fetch retrieves job postings and profile pages and reduces them to text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"resumecrew/internal/errors"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultUserAgent     = "Mozilla/5.0 (compatible; ResumeCrew/1.0)"
	DefaultMaxBodyBytes  = 5 << 20
	DefaultMinTextLength = 500
)

// Page is the fetched content of a URL.
type Page struct {
	URL         string
	HTML        string
	Text        string
	ContentType string
	StatusCode  int
	Rendered    bool // true when the headless browser produced HTML
}

// Options configures a Fetcher.
type Options struct {
	Timeout         time.Duration
	UserAgent       string
	MaxBodyBytes    int64
	Headers         map[string]string
	BrowserFallback bool
	BrowserTimeout  time.Duration
	MinTextLength   int
}

// DefaultOptions returns plain HTTP fetching without the browser fallback.
func DefaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		BrowserTimeout: DefaultTimeout,
		MinTextLength:  DefaultMinTextLength,
	}
}

// RenderFunc returns the rendered HTML of a page.
type RenderFunc func(ctx context.Context, url string, timeout time.Duration) (string, error)

// Fetcher downloads pages over HTTP, falling back to a headless browser for
// pages whose text only appears after scripts run.
type Fetcher struct {
	opts   Options
	client *http.Client
	render RenderFunc
	logger *errors.Logger
}

// New creates a Fetcher. A nil client gets one with opts.Timeout.
func New(opts Options, client *http.Client, logger *errors.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = DefaultMinTextLength
	}
	if opts.BrowserTimeout <= 0 {
		opts.BrowserTimeout = opts.Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &Fetcher{opts: opts, client: client, render: RenderWithBrowser, logger: logger}
}

// WithRenderer replaces the headless browser, mainly for tests.
func (f *Fetcher) WithRenderer(render RenderFunc) *Fetcher {
	f.render = render
	return f
}

// Fetch downloads rawURL and extracts its main text using selectors.
// Transport and read failures are NETWORK_FAILURE; an HTTP error status is not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, selectors []string) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, errors.NewNetworkFailure("invalid URL", err).WithContext("url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewNetworkFailure("failed to create request", err).WithContext("url", rawURL)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	for key, value := range f.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkFailure("HTTP request failed", err).WithContext("url", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, errors.NewNetworkFailure("failed to read response body", err).WithContext("url", rawURL)
	}

	// Profile sites answer scrapers with 999 or an auth wall; whatever text
	// came back is still handed on.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("Page returned a non-success status, using its body anyway",
			"url", rawURL,
			"status", resp.StatusCode,
			"body_bytes", len(body))
	}

	page := &Page{
		URL:         rawURL,
		HTML:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if !isHTML(page.ContentType, body) {
		page.Text = cleanWhitespace(strings.ToValidUTF8(page.HTML, ""))
		return page, nil
	}

	page.Text, err = ExtractMainText(page.HTML, selectors)
	if err != nil {
		return nil, errors.NewNetworkFailure("failed to parse page", err).WithContext("url", rawURL)
	}

	if f.opts.BrowserFallback && len(page.Text) < f.opts.MinTextLength {
		f.rerender(ctx, page, selectors)
	}

	f.logger.Debug("Fetched page",
		"url", rawURL,
		"status", page.StatusCode,
		"text_length", len(page.Text),
		"rendered", page.Rendered)
	return page, nil
}

// rerender replaces page content with browser output when that yields more text.
// A browser failure keeps the plain HTTP result.
func (f *Fetcher) rerender(ctx context.Context, page *Page, selectors []string) {
	html, err := f.render(ctx, page.URL, f.opts.BrowserTimeout)
	if err != nil {
		f.logger.Warn("Browser rendering failed, keeping HTTP content", "url", page.URL, "error", err)
		return
	}
	text, err := ExtractMainText(html, selectors)
	if err != nil || len(text) <= len(page.Text) {
		return
	}
	page.HTML = html
	page.Text = text
	page.Rendered = true
}

// Text fetches rawURL and returns only its extracted text.
func (f *Fetcher) Text(ctx context.Context, rawURL string, selectors []string) (string, error) {
	page, err := f.Fetch(ctx, rawURL, selectors)
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}

// ExtractMainText parses HTML and returns the text of the first element
// matching contentSelectors, or the body when none match.
func ExtractMainText(html string, contentSelectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, svg, .ad, .advertisement, .cookie-banner, .popup").Remove()

	var content *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			content = selection.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	// Block elements end lines so headings and list items stay separated.
	content.Find("p, li, h1, h2, h3, h4, h5, h6, br, div, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return cleanWhitespace(content.Text()), nil
}

// JobPostingSelectors are tried in order on job board pages.
func JobPostingSelectors() []string {
	return []string{
		".job__description",
		".job-description",
		"#job-description",
		".posting-content",
		".job-details",
		"[data-testid='job-description']",
		".description__text",
		"main",
		"article",
	}
}

// ProfileSelectors are tried in order on LinkedIn and GitHub profile pages.
func ProfileSelectors() []string {
	return []string{
		".core-section-container",
		".top-card-layout",
		"[itemtype='http://schema.org/Person']",
		".js-profile-editable-area",
		"main",
		"article",
	}
}

func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
