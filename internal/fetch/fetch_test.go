package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumecrew/internal/errors"
)

const postingHTML = `<html><head><title>Job</title><script>var x = 1;</script></head>
<body>
<nav>Home | Jobs</nav>
<div class="job-description">
<h1>Senior Go Engineer</h1>
<p>Build   distributed systems.</p>
<ul><li>Go</li><li>Kubernetes</li></ul>
</div>
<footer>Copyright</footer>
</body></html>`

func TestFetchExtractsPostingText(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, postingHTML)
	}))
	defer server.Close()

	f := New(DefaultOptions(), server.Client(), nil)
	page, err := f.Fetch(context.Background(), server.URL, JobPostingSelectors())
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "Senior Go Engineer\nBuild distributed systems.\nGo\nKubernetes", page.Text)
	assert.NotContains(t, page.Text, "Copyright")
	assert.False(t, page.Rendered)
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no scheme", "example.com/job"},
		{"unsupported scheme", "ftp://example.com/job"},
		{"unreachable", "http://127.0.0.1:1/job"},
	}

	f := New(DefaultOptions(), nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.Fetch(context.Background(), tt.url, nil)
			require.Error(t, err)
			assert.Nil(t, page)
			assert.True(t, errors.HasCode(err, errors.ErrCodeNetworkFailure), "got %v", err)
		})
	}
}

func TestFetchKeepsBodyOfErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"linkedin 999", 999},
		{"not found", http.StatusNotFound},
		{"auth wall", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, `<html><body><h1>Jane Doe - Senior Engineer at Acme</h1></body></html>`)
			}))
			defer server.Close()

			text, err := New(DefaultOptions(), server.Client(), nil).Text(context.Background(), server.URL, ProfileSelectors())
			require.NoError(t, err)
			assert.Contains(t, text, "Jane Doe - Senior Engineer at Acme")
		})
	}
}

func TestFetchHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(DefaultOptions(), server.Client(), nil).Fetch(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNetworkFailure))
}

func TestFetchBrowserFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
	}))
	defer server.Close()

	rendered := `<html><body><main>` + strings.Repeat("<p>Rendered requirement</p>", 5) + `</main></body></html>`

	opts := DefaultOptions()
	opts.BrowserFallback = true
	opts.MinTextLength = 20

	var calls int
	f := New(opts, server.Client(), nil).WithRenderer(func(ctx context.Context, url string, timeout time.Duration) (string, error) {
		calls++
		return rendered, nil
	})

	page, err := f.Fetch(context.Background(), server.URL, JobPostingSelectors())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, page.Rendered)
	assert.Contains(t, page.Text, "Rendered requirement")

	t.Run("renderer failure keeps HTTP content", func(t *testing.T) {
		f := New(opts, server.Client(), nil).WithRenderer(func(context.Context, string, time.Duration) (string, error) {
			return "", fmt.Errorf("chrome not installed")
		})
		page, err := f.Fetch(context.Background(), server.URL, nil)
		require.NoError(t, err)
		assert.False(t, page.Rendered)
		assert.Empty(t, page.Text)
	})
}

func TestFetchPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "  line one  \n\n line two ")
	}))
	defer server.Close()

	text, err := New(DefaultOptions(), server.Client(), nil).Text(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestExtractMainTextFallsBackToBody(t *testing.T) {
	text, err := ExtractMainText(`<html><body><p>Only body</p><script>ignored()</script></body></html>`, []string{".nothing"})
	require.NoError(t, err)
	assert.Equal(t, "Only body", text)
}
