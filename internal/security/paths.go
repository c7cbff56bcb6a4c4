// Package security guards the files the compute CLI writes.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowedDirs is returned when an output path resolves outside
// every permitted directory.
var ErrOutsideAllowedDirs = errors.New("output path outside allowed directories")

// maxNameLen bounds sanitized file name components.
const maxNameLen = 128

// WithinDir reports an error unless path resolves inside dir. Symlinks are
// resolved on the longest existing prefix of path, so a link inside dir
// pointing elsewhere does not count as inside.
func WithinDir(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(realDir, canonical(absPath))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideAllowedDirs, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s escapes %s", ErrOutsideAllowedDirs, path, dir)
	}
	return nil
}

// canonical resolves symlinks in the deepest existing ancestor of an
// absolute path and re-appends the missing tail.
func canonical(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for parent := filepath.Dir(abs); ; parent = filepath.Dir(parent) {
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			tail, _ := filepath.Rel(parent, abs)
			return filepath.Join(resolved, tail)
		}
		if filepath.Dir(parent) == parent {
			return abs
		}
	}
}

// ValidateOutputPath accepts path if it lies inside any of dirs. With no
// dirs given, the working directory and the temp directory are allowed.
func ValidateOutputPath(path string, dirs ...string) error {
	if len(dirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dirs = []string{cwd, os.TempDir()}
	}
	for _, dir := range dirs {
		if WithinDir(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not under %v", ErrOutsideAllowedDirs, path, dirs)
}

// SanitizeFilename maps an object name or run id onto a safe file name
// component. Runs of other characters collapse into one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		default:
			pendingSep = b.Len() > 0
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// ExportFilename names the CSV export of one run.
func ExportFilename(object, runID string) string {
	id := runID
	if len(id) > 8 {
		id = id[:8]
	}
	return SanitizeFilename(object) + "_lbl_" + SanitizeFilename(id) + ".csv"
}
