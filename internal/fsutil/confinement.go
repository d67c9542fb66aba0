// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil holds filesystem helpers shared by the ingest pipeline and
// the exporters: path confinement, upload name sanitising and atomic writes.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ConfineRelPath ensures that joining root and relTarget results in a path that is physically
// underneath the resolved path of root. It protects against symlink traversal and backslash bypass.
// The target MUST be relative.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", relTarget)
	}

	cleanRel := filepath.Clean(relTarget)
	if filepath.IsAbs(cleanRel) || strings.HasPrefix(cleanRel, "/") {
		return "", fmt.Errorf("target path must be relative: %s", relTarget)
	}
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %s", relTarget)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}

	return resolveAndCheck(realRoot, filepath.Join(realRoot, cleanRel))
}

// resolveAndCheck resolves fullPath symlinks and ensures it is within realRoot.
func resolveAndCheck(realRoot, fullPath string) (string, error) {
	realPath := fullPath
	if _, err := os.Lstat(fullPath); err == nil {
		rp, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		realPath = rp
	} else {
		dir := filepath.Dir(fullPath)
		if rp, err := filepath.EvalSymlinks(dir); err == nil {
			realPath = filepath.Join(rp, filepath.Base(fullPath))
		} else if _, statErr := os.Stat(dir); statErr == nil {
			// Parent exists but cannot be resolved (permissions/loop): fail closed.
			return "", fmt.Errorf("failed to resolve parent path: %v", err)
		}
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root via symlinks: %s", realPath)
	}
	return realPath, nil
}

// IsRegularFile checks if path exists and is a regular file (not directory, device, etc).
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

// SafeFileName reduces a client supplied file name to a single path element
// made of letters, digits, dot, dash and underscore.
func SafeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

// Stem returns the file name without directory and extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
