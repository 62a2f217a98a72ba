// Package security validates file names and paths derived from device
// identifiers and command line arguments.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxFilenameLen = 128

// SanitizeFilename maps an arbitrary identifier, such as a sensor serial,
// to a safe file name. Runs of characters other than ASCII letters, digits,
// '.', '_' and '-' become a single '_'. An empty result is "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// canonical resolves symlinks in the longest existing prefix of abs, so a
// path to a file that does not exist yet is still checked through its
// parent directories.
func canonical(abs string) string {
	rest := ""
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// ValidatePathWithinDirectory returns an error if path, after resolving
// "..", and symlinks, is outside dir.
func ValidatePathWithinDirectory(path, dir string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}
	rel, err := filepath.Rel(canonical(absDir), canonical(absPath))
	if err != nil {
		return fmt.Errorf("path %s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ValidateOutputPath accepts paths under the working directory or the
// system temp directory, where the tools write plots and captures.
func ValidateOutputPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		if ValidatePathWithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("output path %s must be under %s or %s", path, cwd, os.TempDir())
}
