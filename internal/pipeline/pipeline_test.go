package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumecrew/internal/crew"
	"resumecrew/internal/document"
	"resumecrew/internal/errors"
	"resumecrew/internal/notify"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls []string
}

func (f *fakeFetcher) Text(_ context.Context, url string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := f.fail[url]; err != nil {
		return "", err
	}
	return f.pages[url], nil
}

type fakeOrchestrator struct {
	factory *fakeFactory
}

func (o *fakeOrchestrator) Run(_ context.Context, inputs map[string]string) (*Artifacts, error) {
	f := o.factory
	f.inputs = inputs
	resume, err := os.ReadFile(inputs[InputResumeTextPath])
	if err != nil {
		return nil, err
	}
	f.resumeText = string(resume)
	if f.afterRun != nil {
		f.afterRun(filepath.Dir(inputs[InputResumeTextPath]))
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &Artifacts{
		Resume:    "# Jane Doe\n  Senior Engineer  \n\nGo, Kubernetes\n",
		Interview: "Q1: Why us?\nA1: Mission.",
		Usage:     crew.Usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42},
	}, nil
}

type fakeFactory struct {
	creds      []crew.Credentials
	inputs     map[string]string
	resumeText string
	newErr     error
	runErr     error
	afterRun   func(scopeDir string)
}

func (f *fakeFactory) NewOrchestrator(_ context.Context, creds crew.Credentials) (Orchestrator, error) {
	f.creds = append(f.creds, creds)
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &fakeOrchestrator{factory: f}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	stages   map[string]bool
	tokens   int64
	cleanups int
}

func (r *fakeRecorder) RecordRequest(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) RecordStage(_ context.Context, stage string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = make(map[string]bool)
	}
	r.stages[stage] = err == nil
}

func (r *fakeRecorder) RecordTokens(_ context.Context, _, _, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens += total
}

func (r *fakeRecorder) RecordCleanupFailure(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups++
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Publish(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Status)
	}
	return out
}

const (
	jobURL      = "https://jobs.example.com/123"
	linkedInURL = "https://www.linkedin.com/in/jane"
)

type harness struct {
	workDir  string
	fetcher  *fakeFetcher
	factory  *fakeFactory
	recorder *fakeRecorder
	notifier *fakeNotifier
	service  *Service
}

func newHarness(t *testing.T, defaults crew.Credentials) *harness {
	t.Helper()
	h := &harness{
		workDir: t.TempDir(),
		fetcher: &fakeFetcher{pages: map[string]string{
			jobURL:      "Senior Go Engineer at Example",
			linkedInURL: "Jane Doe, engineer",
		}},
		factory:  &fakeFactory{},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
	}
	h.service = NewService(Options{
		WorkDir:  h.workDir,
		Defaults: defaults,
		Fetcher:  h.fetcher,
		Factory:  h.factory,
		Metrics:  h.recorder,
		Notifier: h.notifier,
		Logger:   errors.NewNopLogger(),
	})
	return h
}

func (h *harness) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "transient files left behind")
}

func resumeDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, document.Write(&buf, paragraphs))
	return buf.Bytes()
}

func validRequest(t *testing.T) Request {
	return Request{
		JobURL:       jobURL,
		LinkedInURL:  linkedInURL,
		GitHubURL:    "https://github.com/jane",
		GeminiAPIKey: "gemini-key",
		SerperAPIKey: "serper-key",
		Resume:       resumeDocx(t, "Jane Doe", "Engineer", "5 years experience"),
		ResumeName:   "jane.docx",
	}
}

func readArchive(t *testing.T, r *bytes.Reader) (names []string, paragraphs map[string][]string) {
	t.Helper()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	paragraphs = make(map[string][]string)
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		paragraphs[f.Name], err = document.Paragraphs(body)
		require.NoError(t, err)
	}
	return names, paragraphs
}

func TestCustomize(t *testing.T) {
	h := newHarness(t, crew.Credentials{})

	result, err := h.service.Customize(context.Background(), validRequest(t))
	require.NoError(t, err)

	assert.Equal(t, ArchiveName, result.Filename)
	assert.Equal(t, "application/zip", result.ContentType)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, int32(42), result.Usage.TotalTokens)

	names, paragraphs := readArchive(t, result.Archive)
	assert.Equal(t, []string{"tailored_resume.docx", "interview_materials.docx"}, names)
	assert.Equal(t, []string{"# Jane Doe", "Senior Engineer", "", "Go, Kubernetes", ""}, paragraphs["tailored_resume.docx"])
	assert.Equal(t, []string{"Q1: Why us?", "A1: Mission."}, paragraphs["interview_materials.docx"])

	assert.Equal(t, []crew.Credentials{{GeminiAPIKey: "gemini-key", SerperAPIKey: "serper-key"}}, h.factory.creds)
	assert.Equal(t, "Senior Go Engineer at Example", h.factory.inputs[InputJobDescription])
	assert.Equal(t, "Jane Doe, engineer", h.factory.inputs[InputLinkedInProfile])
	assert.Equal(t, "https://github.com/jane", h.factory.inputs[InputGitHubURL])
	assert.Equal(t, "Jane Doe\nEngineer\n5 years experience", h.factory.resumeText)

	assert.Equal(t, []string{jobURL, linkedInURL}, h.fetcher.calls)
	assert.Equal(t, []string{"success"}, h.recorder.outcomes)
	assert.Equal(t, map[string]bool{
		StageRead: true, StageFetch: true, StageOrchestrate: true, StageConvert: true, StagePackage: true,
	}, h.recorder.stages)
	assert.Equal(t, int64(42), h.recorder.tokens)
	assert.Equal(t, []string{notify.StatusProcessing, notify.StatusCompleted}, h.notifier.statuses())

	h.assertWorkDirEmpty(t)
}

func TestCustomizeDoesNotTouchEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SERPER_API_KEY", "")
	h := newHarness(t, crew.Credentials{})

	_, err := h.service.Customize(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.Empty(t, os.Getenv("GEMINI_API_KEY"))
	assert.Empty(t, os.Getenv("SERPER_API_KEY"))
}

func TestCustomizeMissingInput(t *testing.T) {
	cases := map[string]func(*Request){
		"everything": func(r *Request) { *r = Request{} },
		"job url":    func(r *Request) { r.JobURL = "" },
		"linkedin":   func(r *Request) { r.LinkedInURL = "  " },
		"gemini key": func(r *Request) { r.GeminiAPIKey = "" },
		"serper key": func(r *Request) { r.SerperAPIKey = "" },
		"resume":     func(r *Request) { r.Resume = []byte{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, crew.Credentials{})
			req := validRequest(t)
			mutate(&req)

			_, err := h.service.Customize(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeMissingInput))
			assert.Equal(t, errors.MissingInputMessage, err.(*errors.AppError).Message)
			assert.Equal(t, http.StatusBadRequest, errors.HTTPStatus(err))

			assert.Empty(t, h.fetcher.calls)
			assert.Empty(t, h.factory.creds)
			assert.Empty(t, h.notifier.events)
			assert.Equal(t, []string{errors.ErrCodeMissingInput}, h.recorder.outcomes)
			h.assertWorkDirEmpty(t)
		})
	}
}

func TestCustomizeGitHubIsOptional(t *testing.T) {
	h := newHarness(t, crew.Credentials{})
	req := validRequest(t)
	req.GitHubURL = ""

	_, err := h.service.Customize(context.Background(), req)
	require.NoError(t, err)
	v, ok := h.factory.inputs[InputGitHubURL]
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestCustomizeDefaultCredentials(t *testing.T) {
	h := newHarness(t, crew.Credentials{GeminiAPIKey: "server-gemini", SerperAPIKey: "server-serper"})
	req := validRequest(t)
	req.GeminiAPIKey = ""
	req.SerperAPIKey = "user-serper"

	_, err := h.service.Customize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []crew.Credentials{{GeminiAPIKey: "server-gemini", SerperAPIKey: "user-serper"}}, h.factory.creds)
}

func TestCustomizeInvalidURL(t *testing.T) {
	h := newHarness(t, crew.Credentials{})
	req := validRequest(t)
	req.JobURL = "not a url"

	_, err := h.service.Customize(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Equal(t, http.StatusBadRequest, errors.HTTPStatus(err))
	assert.Empty(t, h.fetcher.calls)
}

func TestCustomizeFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness, req *Request)
		code   string
		status int
		stage  string
	}{
		{
			name: "job fetch fails",
			setup: func(h *harness, _ *Request) {
				h.fetcher.fail = map[string]error{jobURL: errors.NewNetworkFailure("HTTP request failed", nil)}
			},
			code:   errors.ErrCodeNetworkFailure,
			status: http.StatusBadGateway,
			stage:  StageFetch,
		},
		{
			name: "plain fetch error is wrapped",
			setup: func(h *harness, _ *Request) {
				h.fetcher.fail = map[string]error{linkedInURL: stderrors.New("connection reset")}
			},
			code:   errors.ErrCodeNetworkFailure,
			status: http.StatusBadGateway,
			stage:  StageFetch,
		},
		{
			name: "malformed document",
			setup: func(_ *harness, req *Request) {
				req.Resume = []byte("definitely not a zip")
			},
			code:   errors.ErrCodeMalformedDocument,
			status: http.StatusUnprocessableEntity,
			stage:  StageRead,
		},
		{
			name: "orchestrator fails",
			setup: func(h *harness, _ *Request) {
				h.factory.runErr = stderrors.New("model refused")
			},
			code:   errors.ErrCodeOrchestratorFailure,
			status: http.StatusBadGateway,
			stage:  StageOrchestrate,
		},
		{
			name: "orchestrator cannot be built",
			setup: func(h *harness, _ *Request) {
				h.factory.newErr = stderrors.New("bad key")
			},
			code:   errors.ErrCodeOrchestratorFailure,
			status: http.StatusBadGateway,
			stage:  StageOrchestrate,
		},
		{
			name: "artifact cannot be written",
			setup: func(h *harness, _ *Request) {
				h.factory.afterRun = func(dir string) {
					_ = os.Mkdir(filepath.Join(dir, crew.ResumeOutputFile), 0700)
				}
			},
			code:   errors.ErrCodeIOFailure,
			status: http.StatusInternalServerError,
			stage:  StageConvert,
		},
		{
			name: "document cannot be written",
			setup: func(h *harness, _ *Request) {
				h.factory.afterRun = func(dir string) {
					_ = os.Mkdir(filepath.Join(dir, "interview_materials.docx"), 0700)
				}
			},
			code:   errors.ErrCodeIOFailure,
			status: http.StatusInternalServerError,
			stage:  StageConvert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, crew.Credentials{})
			req := validRequest(t)
			tt.setup(h, &req)

			result, err := h.service.Customize(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
			assert.Equal(t, tt.status, errors.HTTPStatus(err))

			assert.Equal(t, []string{tt.code}, h.recorder.outcomes)
			assert.False(t, h.recorder.stages[tt.stage])
			require.Equal(t, []string{notify.StatusProcessing, notify.StatusFailed}, h.notifier.statuses())
			failed := h.notifier.events[1]
			assert.Equal(t, tt.stage, failed.Stage)
			assert.Equal(t, tt.code, failed.ErrorCode)

			assert.Zero(t, h.recorder.cleanups)
			h.assertWorkDirEmpty(t)
		})
	}
}

func TestCustomizeAcceptsTextResume(t *testing.T) {
	h := newHarness(t, crew.Credentials{})
	req := validRequest(t)
	req.Resume = []byte("Jane Doe\nEngineer")
	req.ResumeName = "resume.txt"

	_, err := h.service.Customize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nEngineer", h.factory.resumeText)
	h.assertWorkDirEmpty(t)
}

func TestUploadName(t *testing.T) {
	tests := map[string]string{
		"cv.DOCX":          "upload.docx",
		"../../etc/passwd": "upload.docx",
		"resume.pdf":       "upload.pdf",
		"notes.md":         "upload.md",
		"":                 "upload.docx",
	}
	for in, want := range tests {
		assert.Equal(t, want, uploadName(in), in)
	}
}
