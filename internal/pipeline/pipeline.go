// Package pipeline turns an uploaded resume and two URLs into a zip of
// tailored application documents.
package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resumecrew/internal/archive"
	"resumecrew/internal/crew"
	"resumecrew/internal/document"
	"resumecrew/internal/errors"
	"resumecrew/internal/fetch"
	"resumecrew/internal/notify"
	"resumecrew/internal/transient"
)

// ArchiveName is the download name of the packaged result.
const ArchiveName = "customized_resume_and_interview_materials.zip"

// Orchestrator input names.
const (
	InputJobDescription  = "job_description"
	InputLinkedInProfile = "linkedin_profile"
	InputGitHubURL       = "github_url"
	InputResumeTextPath  = "resume_text_path"
)

// Pipeline stages, used in metrics and status events.
const (
	StageRead        = "read"
	StageFetch       = "fetch"
	StageOrchestrate = "orchestrate"
	StageConvert     = "convert"
	StagePackage     = "package"
)

// Request is one customization as submitted through the form or CLI.
type Request struct {
	JobURL       string `form:"job_url" validate:"required,http_url"`
	LinkedInURL  string `form:"linkedin_url" validate:"required,http_url"`
	GitHubURL    string `form:"github_url" validate:"omitempty,http_url"`
	GeminiAPIKey string `form:"gemini_api_key" validate:"required"`
	SerperAPIKey string `form:"serper_api_key" validate:"required"`
	Resume       []byte `form:"resume" validate:"required"`
	ResumeName   string `form:"resume_name"`
}

// Artifacts are the two texts the orchestrator produces.
type Artifacts struct {
	Resume    string
	Interview string
	Usage     crew.Usage
}

// Orchestrator produces the artifacts from named string inputs.
type Orchestrator interface {
	Run(ctx context.Context, inputs map[string]string) (*Artifacts, error)
}

// OrchestratorFactory binds an orchestrator to one request's credentials.
type OrchestratorFactory interface {
	NewOrchestrator(ctx context.Context, creds crew.Credentials) (Orchestrator, error)
}

// PageFetcher is satisfied by fetch.Fetcher.
type PageFetcher interface {
	Text(ctx context.Context, url string, selectors []string) (string, error)
}

// Recorder receives pipeline metrics. observability.Metrics implements it.
type Recorder interface {
	RecordRequest(ctx context.Context, outcome string)
	RecordStage(ctx context.Context, stage string, d time.Duration, err error)
	RecordTokens(ctx context.Context, input, output, total int64)
	RecordCleanupFailure(ctx context.Context)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(context.Context, string) {}
func (nopRecorder) RecordStage(context.Context, string, time.Duration, error) {}
func (nopRecorder) RecordTokens(context.Context, int64, int64, int64) {}
func (nopRecorder) RecordCleanupFailure(context.Context) {}

// Result is the packaged archive of a successful request.
type Result struct {
	RequestID   string
	Archive     *bytes.Reader
	Filename    string
	ContentType string
	Usage       crew.Usage
}

// Options configures a Service. Fetcher and Factory are required.
type Options struct {
	WorkDir  string
	Defaults crew.Credentials
	Fetcher  PageFetcher
	Factory  OrchestratorFactory
	Metrics  Recorder
	Notifier notify.Publisher
	Logger   *errors.Logger
}

// Service runs customization requests. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	workDir  string
	defaults crew.Credentials
	fetcher  PageFetcher
	factory  OrchestratorFactory
	metrics  Recorder
	notifier notify.Publisher
	logger   *errors.Logger
	validate *validator.Validate
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = errors.NewNopLogger()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})

	return &Service{
		workDir:  opts.WorkDir,
		defaults: opts.Defaults,
		fetcher:  opts.Fetcher,
		factory:  opts.Factory,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		validate: v,
	}
}

// Validate normalizes req, fills in default credentials and checks it.
// A missing required field is MISSING_INPUT; a malformed URL is INVALID_REQUEST.
func (s *Service) Validate(req *Request) error {
	req.JobURL = strings.TrimSpace(req.JobURL)
	req.LinkedInURL = strings.TrimSpace(req.LinkedInURL)
	req.GitHubURL = strings.TrimSpace(req.GitHubURL)
	req.GeminiAPIKey = strings.TrimSpace(req.GeminiAPIKey)
	req.SerperAPIKey = strings.TrimSpace(req.SerperAPIKey)
	if req.GeminiAPIKey == "" {
		req.GeminiAPIKey = s.defaults.GeminiAPIKey
	}
	if req.SerperAPIKey == "" {
		req.SerperAPIKey = s.defaults.SerperAPIKey
	}
	if len(req.Resume) == 0 {
		req.Resume = nil
	}

	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid request", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingInputError(missing)
	}
	return errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid URL in: "+strings.Join(invalid, ", "), nil).
		WithContext("invalid_fields", invalid)
}

// Customize runs the whole pipeline for one request. Every intermediate file
// lives in a request scope that is removed before Customize returns.
func (s *Service) Customize(ctx context.Context, req Request) (*Result, error) {
	if err := s.Validate(&req); err != nil {
		s.metrics.RecordRequest(ctx, outcome(err))
		return nil, err
	}

	ctx, span := otel.Tracer("resumecrew.pipeline").Start(ctx, "pipeline.customize")
	defer span.End()

	scope, err := transient.NewScope(s.workDir, s.logger)
	if err != nil {
		s.metrics.RecordRequest(ctx, outcome(err))
		return nil, err
	}
	scope.OnCleanupFailure = func(string, error) { s.metrics.RecordCleanupFailure(ctx) }
	defer func() { _ = scope.Cleanup() }()

	r := &run{
		Service: s,
		scope:   scope,
		logger:  s.logger.With("request_id", scope.ID()),
	}
	span.SetAttributes(attribute.String("request.id", scope.ID()))

	r.publish(ctx, notify.StatusProcessing, "", nil)
	r.logger.Info("Customization started", "job_url", req.JobURL, "has_github", req.GitHubURL != "")

	result, err := r.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "customization failed")
		r.logger.LogError(err, "Customization failed", "stage", r.stage)
		r.publish(ctx, notify.StatusFailed, r.stage, err)
		s.metrics.RecordRequest(ctx, outcome(err))
		return nil, err
	}

	r.logger.Info("Customization completed",
		"archive_bytes", result.Archive.Len(),
		"total_tokens", result.Usage.TotalTokens)
	r.publish(ctx, notify.StatusCompleted, "", nil)
	s.metrics.RecordRequest(ctx, "success")
	return result, nil
}

// run carries the state of one request through the stages.
type run struct {
	*Service
	scope  *transient.Scope
	logger *errors.Logger
	stage  string
}

func (r *run) execute(ctx context.Context, req Request) (*Result, error) {
	var textPath string
	err := r.step(ctx, StageRead, func() error {
		var err error
		textPath, err = r.readResume(req)
		return err
	})
	if err != nil {
		return nil, err
	}

	var jobText, profileText string
	err = r.step(ctx, StageFetch, func() error {
		var err error
		if jobText, err = r.fetchText(ctx, req.JobURL, fetch.JobPostingSelectors()); err != nil {
			return err
		}
		profileText, err = r.fetchText(ctx, req.LinkedInURL, fetch.ProfileSelectors())
		return err
	})
	if err != nil {
		return nil, err
	}

	var artifacts *Artifacts
	err = r.step(ctx, StageOrchestrate, func() error {
		var err error
		artifacts, err = r.orchestrate(ctx, req, map[string]string{
			InputJobDescription:  jobText,
			InputLinkedInProfile: profileText,
			InputGitHubURL:       req.GitHubURL,
			InputResumeTextPath:  textPath,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordTokens(ctx,
		int64(artifacts.Usage.PromptTokens),
		int64(artifacts.Usage.CompletionTokens),
		int64(artifacts.Usage.TotalTokens))

	var docs []string
	err = r.step(ctx, StageConvert, func() error {
		var err error
		docs, err = r.convert(map[string]string{
			crew.ResumeOutputFile:    artifacts.Resume,
			crew.InterviewOutputFile: artifacts.Interview,
		}, []string{crew.ResumeOutputFile, crew.InterviewOutputFile})
		return err
	})
	if err != nil {
		return nil, err
	}

	var zipped *bytes.Reader
	err = r.step(ctx, StagePackage, func() error {
		var err error
		zipped, err = archive.Package(docs)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		RequestID:   r.scope.ID(),
		Archive:     zipped,
		Filename:    ArchiveName,
		ContentType: archive.ContentType,
		Usage:       artifacts.Usage,
	}, nil
}

// step times fn as one stage and remembers the stage for failure reports.
func (r *run) step(ctx context.Context, stage string, fn func() error) error {
	r.stage = stage
	ctx, span := otel.Tracer("resumecrew.pipeline").Start(ctx, "pipeline."+stage)
	defer span.End()

	start := time.Now()
	err := fn()
	r.metrics.RecordStage(ctx, stage, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage+" failed")
	}
	r.logger.Debug("Stage finished", "stage", stage, "duration", time.Since(start), "success", err == nil)
	return err
}

// readResume snapshots the upload into the scope and extracts its text.
func (r *run) readResume(req Request) (string, error) {
	snapshot := r.scope.Path(uploadName(req.ResumeName))
	if err := os.WriteFile(snapshot, req.Resume, 0600); err != nil {
		return "", errors.NewIOFailure("failed to store uploaded resume", err)
	}

	_, textPath, err := document.NewReader(r.scope.Dir()).ReadFile(snapshot)
	if err != nil {
		return "", err
	}
	return r.scope.Track(textPath), nil
}

func (r *run) fetchText(ctx context.Context, url string, selectors []string) (string, error) {
	text, err := r.fetcher.Text(ctx, url, selectors)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", err
		}
		return "", errors.NewNetworkFailure("failed to fetch page", err).WithContext("url", url)
	}
	return text, nil
}

func (r *run) orchestrate(ctx context.Context, req Request, inputs map[string]string) (*Artifacts, error) {
	orch, err := r.factory.NewOrchestrator(ctx, crew.Credentials{
		GeminiAPIKey: req.GeminiAPIKey,
		SerperAPIKey: req.SerperAPIKey,
	})
	if err != nil {
		return nil, errors.NewOrchestratorFailure("failed to prepare the crew", err)
	}
	artifacts, err := orch.Run(ctx, inputs)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeOrchestratorFailure) {
			return nil, err
		}
		return nil, errors.NewOrchestratorFailure("crew run failed", err)
	}
	return artifacts, nil
}

// convert writes each named artifact into the scope and renders it as docx.
// The docx paths are returned in the order of names.
func (r *run) convert(texts map[string]string, names []string) ([]string, error) {
	docs := make([]string, 0, len(names))
	for _, name := range names {
		textPath := r.scope.Path(name)
		if err := os.WriteFile(textPath, []byte(texts[name]), 0600); err != nil {
			return nil, errors.NewIOFailure("failed to write generated artifact", err).
				WithContext("file", name)
		}
		docPath := r.scope.Track(document.DocumentPath(textPath))
		if err := document.ConvertTo(textPath, docPath); err != nil {
			return nil, err
		}
		docs = append(docs, docPath)
	}
	return docs, nil
}

func (r *run) publish(ctx context.Context, status, stage string, err error) {
	event := notify.Event{
		RequestID: r.scope.ID(),
		Status:    status,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
		if appErr, ok := errors.As(err); ok {
			event.Error = appErr.Message
			event.ErrorCode = appErr.Code
		}
	}
	if perr := r.notifier.Publish(context.WithoutCancel(ctx), event); perr != nil {
		r.logger.Warn("Failed to publish status event", "status", status, "error", perr.Error())
	}
}

// uploadName keeps only a safe base name and the extension the reader needs.
func uploadName(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	switch ext {
	case ".docx", ".pdf", ".txt", ".md":
		return "upload" + ext
	}
	return "upload.docx"
}

func outcome(err error) string {
	if appErr, ok := errors.As(err); ok {
		return appErr.Code
	}
	if stderrors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}
