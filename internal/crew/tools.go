package crew

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// Tool names usable in a crew definition.
const (
	ToolScrapeWebsite  = "scrape_website"
	ToolSearchInternet = "search_internet"
	ToolReadResume     = "read_resume"
)

// KnownTools lists every tool a definition may reference.
var KnownTools = []string{ToolScrapeWebsite, ToolSearchInternet, ToolReadResume}

// Parameter describes one string argument of a tool.
type Parameter struct {
	Name        string
	Description string
	Required    bool
}

// Tool is a function the model may call while working on a task.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Toolset maps tool names to the instances bound for one request.
type Toolset map[string]Tool

// NewToolset indexes tools by name.
func NewToolset(tools ...Tool) Toolset {
	set := make(Toolset, len(tools))
	for _, t := range tools {
		set[t.Name()] = t
	}
	return set
}

// Select returns the tools an agent is allowed to use, in the agent's order.
func (s Toolset) Select(names []string) ([]Tool, error) {
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("tool %q is not available", name)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func stringArg(args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", name)
	}
	return strings.TrimSpace(s), nil
}

// Scraper is satisfied by fetch.Fetcher.
type Scraper interface {
	Text(ctx context.Context, url string, selectors []string) (string, error)
}

// ScrapeTool returns the readable text of a web page.
type ScrapeTool struct {
	scraper  Scraper
	maxChars int
}

// NewScrapeTool wraps a scraper. maxChars <= 0 disables truncation.
func NewScrapeTool(s Scraper, maxChars int) *ScrapeTool {
	return &ScrapeTool{scraper: s, maxChars: maxChars}
}

func (t *ScrapeTool) Name() string { return ToolScrapeWebsite }

func (t *ScrapeTool) Description() string {
	return "Read the text content of a website. Use it to inspect a job posting, profile or repository page."
}

func (t *ScrapeTool) Parameters() []Parameter {
	return []Parameter{{Name: "website_url", Description: "Absolute http(s) URL of the page to read", Required: true}}
}

func (t *ScrapeTool) Call(ctx context.Context, args map[string]any) (string, error) {
	url, err := stringArg(args, "website_url")
	if err != nil {
		return "", err
	}
	text, err := t.scraper.Text(ctx, url, nil)
	if err != nil {
		return "", err
	}
	return truncate(text, t.maxChars), nil
}

// SearchTool queries the Serper Google search API.
type SearchTool struct {
	client   *http.Client
	endpoint string
	apiKey   string
	results  int
}

// NewSearchTool builds a search tool bound to one Serper API key.
func NewSearchTool(client *http.Client, endpoint, apiKey string, results int) *SearchTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if results <= 0 {
		results = 5
	}
	return &SearchTool{client: client, endpoint: endpoint, apiKey: apiKey, results: results}
}

func (t *SearchTool) Name() string { return ToolSearchInternet }

func (t *SearchTool) Description() string {
	return "Search the internet for a query and return the top results with title, link and snippet."
}

func (t *SearchTool) Parameters() []Parameter {
	return []Parameter{{Name: "search_query", Description: "The query to search for", Required: true}}
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (t *SearchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "search_query")
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(serperRequest{Query: query, Num: t.results})
	if err != nil {
		return "", fmt.Errorf("failed to encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("X-API-KEY", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}
	if len(parsed.Organic) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	b.WriteString("Search results:\n")
	for i, r := range parsed.Organic {
		if i == t.results {
			break
		}
		fmt.Fprintf(&b, "Title: %s\nLink: %s\nSnippet: %s\n---\n", r.Title, r.Link, r.Snippet)
	}
	return b.String(), nil
}

// ReadFileTool exposes the extracted resume text. The path is fixed at
// construction; the model cannot choose what to read.
type ReadFileTool struct {
	path string
}

func NewReadFileTool(path string) *ReadFileTool {
	return &ReadFileTool{path: path}
}

func (t *ReadFileTool) Name() string { return ToolReadResume }

func (t *ReadFileTool) Description() string {
	return "Read the candidate's current resume as plain text."
}

func (t *ReadFileTool) Parameters() []Parameter { return nil }

func (t *ReadFileTool) Call(ctx context.Context, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return "", fmt.Errorf("failed to read resume: %w", err)
	}
	return string(data), nil
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[truncated]"
}
