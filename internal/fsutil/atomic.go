// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes data to path with fsync-before-rename semantics.
// Readers observe either the old file or the complete new one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic streams content produced by write into path atomically.
func WriteAtomic(path string, perm os.FileMode, write func(io.Writer) error) error {
	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file %s: %w", path, err)
	}
	defer func() {
		// no-op after a successful commit
		_ = pendingFile.Cleanup()
	}()

	if err := write(pendingFile); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
