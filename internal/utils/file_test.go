package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsResumeFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"resume.docx", true},
		{"Resume.PDF", true},
		{"notes.md", true},
		{"cv.txt", true},
		{"resume.doc", false},
		{"resume", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsResumeFile(tt.name); got != tt.want {
				t.Errorf("IsResumeFile(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "resume.docx")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := ValidateInputFile(file); err != nil {
		t.Errorf("unexpected error for existing file: %v", err)
	}
	if err := ValidateInputFile(""); err == nil {
		t.Error("expected error for empty name")
	}
	if err := ValidateInputFile(dir); err == nil {
		t.Error("expected error for directory")
	}
	if err := ValidateInputFile(filepath.Join(dir, "missing.docx")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateOutputFileCreatesParent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "a", "b", "out.zip")
	if err := ValidateOutputFile(out); err != nil {
		t.Fatalf("ValidateOutputFile: %v", err)
	}
	if info, err := os.Stat(filepath.Dir(out)); err != nil || !info.IsDir() {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		512:     "512 B",
		2048:    "2.0 KB",
		5 << 20: "5.0 MB",
	}
	for size, want := range tests {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", size, got, want)
		}
	}
}
