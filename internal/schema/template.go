package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-pkgz/fileutils"
)

// TemplateFileName is the name of the template database copy in the scratch
// directory.
const TemplateFileName = "nsqlitectx_template.sqlite"

// Templates resolves the template database. The packaged template at
// ResourcePath is copied to ScratchDir the first time Path is called, and the
// copy is reused afterwards.
type Templates struct {
	// ResourcePath is the packaged template database.
	ResourcePath string
	// ScratchDir is the directory the template is copied to. Defaults to
	// os.TempDir().
	ScratchDir string

	mu   sync.Mutex
	path string
}

// Path returns the path of the scratch copy of the template database,
// copying it on first use.
func (t *Templates) Path() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path != "" {
		return t.path, nil
	}
	if t.ResourcePath == "" {
		return "", errors.New("template resource path is required")
	}

	dir := t.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	dst := filepath.Join(dir, TemplateFileName)
	if err := fileutils.CopyFile(t.ResourcePath, dst); err != nil {
		return "", fmt.Errorf("failed to copy template database %s: %w", t.ResourcePath, err)
	}

	t.path = dst
	return dst, nil
}

// CopyTo copies the template database to dst.
func (t *Templates) CopyTo(dst string) error {
	src, err := t.Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := fileutils.CopyFile(src, dst); err != nil {
		return fmt.Errorf("failed to copy template database to %s: %w", dst, err)
	}
	return nil
}
