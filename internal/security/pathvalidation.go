// Package security confines audit outputs to a working root and cleans
// user-supplied labels before they are stored.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinRoot checks that path resolves inside root. Symlinks in
// root and in the existing part of path are resolved, so a link inside root
// pointing elsewhere does not pass.
func ValidatePathWithinRoot(path, root string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}
	canonicalRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve root symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalRoot, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, root)
	}
	return nil
}

// canonicalize resolves symlinks in the deepest existing ancestor of an
// absolute path; outputs usually do not exist yet.
func canonicalize(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest)
		}
		if dir == filepath.Dir(dir) {
			return abs
		}
	}
}

// ValidateOutputs checks every non-empty path against root.
func ValidateOutputs(root string, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := ValidatePathWithinRoot(p, root); err != nil {
			return err
		}
	}
	return nil
}

const maxLabelLen = 128

// SanitizeLabel reduces s to ASCII letters, digits, '.', '_' and '-',
// collapsing other runs into one underscore. An empty result is "unknown".
func SanitizeLabel(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLabelLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
