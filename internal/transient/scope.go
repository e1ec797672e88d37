// Package transient tracks the intermediate files of a single request and
// removes them when the request ends.
package transient

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"resumecrew/internal/errors"
)

// Scope owns a private directory and every file registered with it.
// Release it with a deferred Cleanup.
type Scope struct {
	id     string
	dir    string
	logger *errors.Logger

	mu      sync.Mutex
	paths   []string
	cleaned bool

	// OnCleanupFailure is called once per path that could not be removed.
	OnCleanupFailure func(path string, err error)
}

// NewScope creates a uniquely named directory under root.
func NewScope(root string, logger *errors.Logger) (*Scope, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, errors.NewIOFailure("failed to create work directory", err).
			WithContext("root", root)
	}

	id := uuid.NewString()
	dir := filepath.Join(root, "req-"+id)
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, errors.NewIOFailure("failed to create request directory", err).
			WithContext("dir", dir)
	}

	return &Scope{
		id:     id,
		dir:    dir,
		logger: logger.With("request_id", id),
	}, nil
}

// ID is the unique identifier shared by the scope directory and its logs.
func (s *Scope) ID() string { return s.id }

// Dir is the scope's private directory.
func (s *Scope) Dir() string { return s.dir }

// Track registers a path for removal at Cleanup and returns it.
func (s *Scope) Track(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	return path
}

// Path joins name onto the scope directory and tracks the result.
func (s *Scope) Path(name string) string {
	return s.Track(filepath.Join(s.dir, name))
}

// Tracked returns a copy of the registered paths.
func (s *Scope) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Cleanup removes tracked files in reverse registration order, then the
// scope directory. Files that are already gone are not errors. Failures are
// logged and returned joined, and callers must not let them replace the
// request's own outcome. Calling Cleanup more than once is a no-op.
func (s *Scope) Cleanup() error {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return nil
	}
	s.cleaned = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var errs []error
	for i := len(paths) - 1; i >= 0; i-- {
		if err := os.Remove(paths[i]); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			errs = append(errs, s.failed(paths[i], err))
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, s.failed(s.dir, err))
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	s.logger.Debug("Transient files removed", "count", len(paths))
	return nil
}

func (s *Scope) failed(path string, err error) error {
	appErr := errors.NewIOFailure("failed to remove transient file", err).
		WithContext("path", path)
	s.logger.LogError(appErr, "Transient file cleanup failed")
	if s.OnCleanupFailure != nil {
		s.OnCleanupFailure(path, err)
	}
	return appErr
}
