// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{name: "simple", target: "uploads/a.pdf"},
		{name: "dots in name", target: "a..b.pdf"},
		{name: "traversal", target: "../etc/passwd", wantErr: true},
		{name: "absolute", target: "/etc/passwd", wantErr: true},
		{name: "backslash", target: `..\evil`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			realRoot, _ := filepath.EvalSymlinks(root)
			assert.Equal(t, filepath.Join(realRoot, filepath.Clean(tt.target)), got)
		})
	}
}

func TestConfineRelPathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ConfineRelPath(root, "link/file.pdf")
	assert.Error(t, err)
}

func TestSafeFileName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":             "report.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\paper.pdf`:  "paper.pdf",
		"my paper (final).pdf":   "my_paper_final.pdf",
		"...":                    "upload",
		".hidden":                "hidden",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeFileName(in), "SafeFileName(%q)", in)
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "attention", Stem("/data/pdf/attention.pdf"))
	assert.Equal(t, "notes", Stem("notes"))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "out.md"), []byte("x"), 0o644)
	assert.Error(t, err)
}
