// Package archive bundles generated documents into a single zip for download.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"resumecrew/internal/errors"
)

// ContentType is the MIME type of archives produced by Package.
const ContentType = "application/zip"

// Package writes each file into an in-memory zip under its base name, in the
// given order. Every entry is its own Deflate stream. The returned reader is
// positioned at offset 0.
func Package(paths []string) (*bytes.Reader, error) {
	if len(paths) == 0 {
		return nil, errors.NewIOFailure("no files to package", nil)
	}

	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if prev, dup := seen[name]; dup {
			return nil, errors.NewIOFailure("duplicate archive entry name", nil).
				WithContext("entry", name).
				WithContext("paths", []string{prev, p})
		}
		seen[name] = p
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range paths {
		if err := addFile(zw, p); err != nil {
			_ = zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.NewIOFailure("failed to finalize archive", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.NewIOFailure("failed to open file for packaging", err).
			WithContext("path", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return errors.NewIOFailure("failed to stat file for packaging", err).
			WithContext("path", path)
	}
	if info.IsDir() {
		return errors.NewIOFailure("cannot package a directory", nil).
			WithContext("path", path)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.NewIOFailure("failed to build archive header", err).
			WithContext("path", path)
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return errors.NewIOFailure("failed to create archive entry", err).
			WithContext("entry", header.Name)
	}
	if _, err := io.Copy(w, f); err != nil {
		return errors.NewIOFailure("failed to write archive entry", err).
			WithContext("path", path)
	}
	return nil
}
