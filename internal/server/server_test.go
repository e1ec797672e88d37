package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumecrew/internal/archive"
	"resumecrew/internal/config"
	"resumecrew/internal/errors"
	"resumecrew/internal/observability"
	"resumecrew/internal/pipeline"
)

type fakeCustomizer struct {
	got    pipeline.Request
	calls  int
	err    error
	result *pipeline.Result
}

func (f *fakeCustomizer) Customize(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeHealth struct{ healthy bool }

func (f fakeHealth) IsHealthy() bool { return f.healthy }
func (f fakeHealth) Stats() map[string]any {
	return map[string]any{"model": "test-model"}
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	s := NewServer(cfg, nil)
	t.Cleanup(func() {
		if s.RateLimiter != nil {
			s.RateLimiter.Close()
		}
	})
	return s
}

func multipartBody(t *testing.T, fields map[string]string, resume []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if resume != nil {
		fw, err := mw.CreateFormFile("resume", "resume.docx")
		require.NoError(t, err)
		_, err = fw.Write(resume)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"job_url":        "https://jobs.example.com/1",
		"linkedin_url":   "https://linkedin.example.com/in/jane",
		"github_url":     "https://github.com/jane",
		"gemini_api_key": "g-key",
		"serper_api_key": "s-key",
	}
}

func TestCustomizeHandlerReturnsArchive(t *testing.T) {
	entry := filepath.Join(t.TempDir(), "tailored_resume.docx")
	require.NoError(t, os.WriteFile(entry, []byte("docx"), 0600))
	zipData, err := archive.Package([]string{entry})
	require.NoError(t, err)
	customizer := &fakeCustomizer{result: &pipeline.Result{
		RequestID:   "req-1",
		Archive:     zipData,
		Filename:    pipeline.ArchiveName,
		ContentType: archive.ContentType,
	}}
	s := newTestServer(t, ServerConfig{Pipeline: customizer})

	body, contentType := multipartBody(t, validFields(), []byte("docx bytes"))
	req := httptest.NewRequest(http.MethodPost, "/customize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=customized_resume_and_interview_materials.zip`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))

	assert.Equal(t, "https://jobs.example.com/1", customizer.got.JobURL)
	assert.Equal(t, "https://github.com/jane", customizer.got.GitHubURL)
	assert.Equal(t, "g-key", customizer.got.GeminiAPIKey)
	assert.Equal(t, []byte("docx bytes"), customizer.got.Resume)
	assert.Equal(t, "resume.docx", customizer.got.ResumeName)
}

func TestCustomizeHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing input", errors.NewMissingInputError([]string{"job_url"}), http.StatusBadRequest, errors.ErrCodeMissingInput},
		{"malformed", errors.NewMalformedDocumentError("bad docx", nil), http.StatusUnprocessableEntity, errors.ErrCodeMalformedDocument},
		{"network", errors.NewNetworkFailure("fetch failed", nil), http.StatusBadGateway, errors.ErrCodeNetworkFailure},
		{"orchestrator", errors.NewOrchestratorFailure("crew failed", nil), http.StatusBadGateway, errors.ErrCodeOrchestratorFailure},
		{"io", errors.NewIOFailure("disk full", nil), http.StatusInternalServerError, errors.ErrCodeIOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, ServerConfig{Pipeline: &fakeCustomizer{err: tt.err}})

			body, contentType := multipartBody(t, validFields(), []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/customize", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestCustomizeHandlerRendersFormForBrowsers(t *testing.T) {
	s := newTestServer(t, ServerConfig{Pipeline: &fakeCustomizer{err: errors.NewMissingInputError([]string{"resume"})}})

	fields := validFields()
	delete(fields, "gemini_api_key")
	body, contentType := multipartBody(t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, "/customize", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	page := rec.Body.String()
	assert.Contains(t, page, "Missing required inputs")
	assert.Contains(t, page, `value="https://jobs.example.com/1"`)
	assert.NotContains(t, page, "s-key")
}

func TestCustomizeNonMultipartIsMissingInput(t *testing.T) {
	svc := pipeline.NewService(pipeline.Options{WorkDir: t.TempDir()})
	s := newTestServer(t, ServerConfig{Pipeline: svc})

	req := httptest.NewRequest(http.MethodPost, "/customize", strings.NewReader(""))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrCodeMissingInput, resp.Code)
	assert.Equal(t, errors.MissingInputMessage, resp.Message)
}

func TestCustomizeUploadTooLarge(t *testing.T) {
	customizer := &fakeCustomizer{}
	s := newTestServer(t, ServerConfig{Pipeline: customizer, MaxUploadSize: 16})

	body, contentType := multipartBody(t, validFields(), bytes.Repeat([]byte("a"), 17))
	req := httptest.NewRequest(http.MethodPost, "/customize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, customizer.calls)
}

func TestFormHandler(t *testing.T) {
	s := newTestServer(t, ServerConfig{
		Pipeline:    &fakeCustomizer{},
		DefaultKeys: config.CredentialsConfig{SerperAPIKey: "server-serper"},
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	for _, field := range []string{"job_url", "linkedin_url", "github_url", "gemini_api_key", "serper_api_key", "resume"} {
		assert.Contains(t, page, `name="`+field+`"`)
	}
	assert.Contains(t, page, "server default configured")
	assert.NotContains(t, page, "server-serper")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	customizer := &fakeCustomizer{err: errors.NewMissingInputError(nil)}
	s := newTestServer(t, ServerConfig{Pipeline: customizer, APIKeys: []string{"secret-key-123"}})

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "X-API-Key", "wrong", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "secret-key-123", http.StatusBadRequest},
		{"bearer", "Authorization", "Bearer secret-key-123", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/customize", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t, ServerConfig{
		Pipeline:      &fakeCustomizer{err: errors.NewMissingInputError(nil)},
		RateLimit:     &config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1, ByIP: true},
		Observability: newPrometheusManager(t),
	})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/customize", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusBadRequest, send("10.0.0.2"))

	stats := s.RateLimiter.GetStats()
	assert.Equal(t, 2, stats["active_limiters"])

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_rate_limit_hits")
}

func newPrometheusManager(t *testing.T) *observability.ObservabilityManager {
	t.Helper()
	om, err := observability.NewObservabilityManager(observability.ObservabilityConfig{
		ServiceName:    "resumecrew-test",
		Enabled:        true,
		MetricsEnabled: true,
		SampleRate:     1,
		Prometheus:     observability.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })
	return om
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		healthy    bool
		wantStatus int
		want       string
	}{
		{"healthy", true, http.StatusOK, "healthy"},
		{"breaker open", false, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, ServerConfig{Version: "1.2.3", AI: fakeHealth{healthy: tt.healthy}})
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp["status"])
			assert.Equal(t, "1.2.3", resp["version"])
		})
	}
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t, ServerConfig{MaxUploadSize: 1 << 20, AI: fakeHealth{healthy: true}})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]any{"enabled": false}, resp["rate_limiting"])
	server := resp["server"].(map[string]any)
	assert.EqualValues(t, (1<<20)+multipartOverhead, server["max_request_size_bytes"])
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "bogus, 203.0.113.7, 10.0.0.1"}, "10.0.0.9:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.9:80", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestLimiterCleanup(t *testing.T) {
	m := NewRateLimiter(60, 1, time.Hour, nil)
	defer m.Close()

	m.GetLimiter("ip:1")
	m.mu.Lock()
	m.lastSeen["ip:1"] = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()
	m.GetLimiter("ip:2")

	m.cleanup(time.Hour)
	assert.Equal(t, 1, m.GetStats()["active_limiters"])
}

func TestBuildTLSConfigRequiresCertificates(t *testing.T) {
	s := newTestServer(t, ServerConfig{TLSConfig: config.TLSConfig{Mode: "server"}})
	_, err := s.buildTLSConfig()
	assert.ErrorContains(t, err, "certificate and key are required")

	err = s.configureTLS(&http.Server{})
	assert.Error(t, err)

	s.TLSConfig.Mode = "bogus"
	assert.ErrorContains(t, s.configureTLS(&http.Server{}), "invalid TLS mode")

	s.TLSConfig.Mode = ""
	assert.NoError(t, s.configureTLS(&http.Server{}))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcdefgh****", maskAPIKey("abcdefghijkl"))
}
