package server

import (
	"bytes"
	"embed"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"resumecrew/internal/errors"
	"resumecrew/internal/pipeline"
)

//go:embed templates/index.html
var templateFS embed.FS

var formTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// maxMemory is how much of a multipart body is held in memory before the
// rest spills to temporary files.
const maxMemory = 8 << 20

type formPage struct {
	JobURL              string
	LinkedInURL         string
	GitHubURL           string
	Error               string
	HasDefaultGeminiKey bool
	HasDefaultSerperKey bool
	MaxUploadMB         int64
}

func (s *Server) formHandler(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, http.StatusOK, formPage{})
}

// customizeHandler runs one request through the pipeline and streams the zip
// back as an attachment.
func (s *Server) customizeHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if r.MultipartForm != nil {
		defer func() {
			if rmErr := r.MultipartForm.RemoveAll(); rmErr != nil {
				s.Logger.LogError(rmErr, "Failed to remove multipart temp files")
			}
		}()
	}
	if err != nil {
		s.respondError(w, r, req, err)
		return
	}

	result, err := s.Pipeline.Customize(r.Context(), req)
	if err != nil {
		s.respondError(w, r, req, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(result.Archive.Size(), 10))
	w.Header().Set("X-Request-ID", result.RequestID)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, result.Archive); err != nil {
		s.Logger.LogError(err, "Failed to write archive", "request_id", result.RequestID)
	}
}

// parseRequest reads the form fields and the resume upload. A body that is
// not multipart yields a request without a resume, so validation reports
// the missing inputs.
func (s *Server) parseRequest(r *http.Request) (pipeline.Request, error) {
	var req pipeline.Request

	err := r.ParseMultipartForm(maxMemory)
	switch {
	case err == nil, stderrors.Is(err, http.ErrNotMultipart):
	case isTooLarge(err):
		return req, s.tooLarge(err)
	default:
		return req, errors.NewValidationError(errors.ErrCodeInvalidRequest, "Invalid form submission", err)
	}

	req.JobURL = r.FormValue("job_url")
	req.LinkedInURL = r.FormValue("linkedin_url")
	req.GitHubURL = r.FormValue("github_url")
	req.GeminiAPIKey = r.FormValue("gemini_api_key")
	req.SerperAPIKey = r.FormValue("serper_api_key")

	file, header, err := r.FormFile("resume")
	if err != nil {
		if stderrors.Is(err, http.ErrMissingFile) || stderrors.Is(err, http.ErrNotMultipart) {
			return req, nil
		}
		return req, errors.NewValidationError(errors.ErrCodeInvalidRequest, "Invalid resume upload", err)
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file
	if s.MaxUploadSize > 0 {
		reader = io.LimitReader(file, s.MaxUploadSize+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return req, errors.NewIOFailure("Failed to read resume upload", err)
	}
	if s.MaxUploadSize > 0 && int64(buf.Len()) > s.MaxUploadSize {
		return req, s.tooLarge(nil)
	}

	req.Resume = buf.Bytes()
	req.ResumeName = header.Filename
	return req, nil
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return stderrors.As(err, &maxBytesErr) || stderrors.Is(err, multipart.ErrMessageTooLarge)
}

func (s *Server) tooLarge(cause error) error {
	limit := s.MaxUploadSize
	if limit <= 0 {
		limit = s.MaxRequestSize
	}
	return errors.NewValidationError(errors.ErrCodeTooLarge,
		fmt.Sprintf("Resume upload too large (limit is %d bytes)", limit), cause)
}

// respondError renders the form again for browsers and returns JSON to
// everything else.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, req pipeline.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, "Customization failed", "endpoint", r.URL.Path)
	} else {
		s.Logger.Info("Customization rejected", "endpoint", r.URL.Path, "error", err.Error())
	}

	if !wantsHTML(r) {
		writeAppError(w, err)
		return
	}

	message := "Internal server error"
	if appErr, ok := errors.As(err); ok {
		message = appErr.Message
	}
	s.renderForm(w, status, formPage{
		JobURL:      req.JobURL,
		LinkedInURL: req.LinkedInURL,
		GitHubURL:   req.GitHubURL,
		Error:       message,
	})
}

func (s *Server) renderForm(w http.ResponseWriter, status int, page formPage) {
	page.HasDefaultGeminiKey = s.HasDefaultGeminiKey
	page.HasDefaultSerperKey = s.HasDefaultSerperKey
	if s.MaxUploadSize > 0 {
		page.MaxUploadMB = s.MaxUploadSize >> 20
	}

	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, page); err != nil {
		s.Logger.LogError(err, "Failed to render form")
		http.Error(w, "Failed to render form", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
