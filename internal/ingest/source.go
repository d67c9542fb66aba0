// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ManuGH/ragbox/internal/fsutil"
	"github.com/ManuGH/ragbox/internal/parser"
)

// prepare resolves src to a file on disk and hashes its content. Reader
// sources are spooled into the upload directory.
func (s *Service) prepare(src Source) (task, string, error) {
	switch {
	case src.Reader != nil:
		path, sha, err := s.spool(src)
		if err != nil {
			return task{}, "", err
		}
		return task{path: path, spooled: true}, sha, nil
	case src.Path != "":
		if err := fsutil.IsRegularFile(src.Path); err != nil {
			return task{}, "", fmt.Errorf("source %s: %w", src.Path, err)
		}
		sha, err := hashFile(src.Path)
		if err != nil {
			return task{}, "", err
		}
		return task{path: src.Path}, sha, nil
	default:
		return task{}, "", ErrNoSource
	}
}

func (s *Service) spool(src Source) (string, string, error) {
	if s.cfg.UploadDir == "" {
		return "", "", errors.New("no upload directory configured")
	}
	rel := uuid.NewString() + "-" + fsutil.SafeFileName(sourceName(src))
	path, err := fsutil.ConfineRelPath(s.cfg.UploadDir, rel)
	if err != nil {
		return "", "", fmt.Errorf("upload path: %w", err)
	}

	h := sha256.New()
	var written int64
	err = fsutil.WriteAtomic(path, 0o640, func(w io.Writer) error {
		r := src.Reader
		if s.cfg.MaxUploadBytes > 0 {
			r = io.LimitReader(r, s.cfg.MaxUploadBytes+1)
		}
		n, err := io.Copy(io.MultiWriter(w, h), r)
		written = n
		if err != nil {
			return err
		}
		if s.cfg.MaxUploadBytes > 0 && n > s.cfg.MaxUploadBytes {
			return fmt.Errorf("%w: exceeds limit of %d bytes", parser.ErrTooLarge, s.cfg.MaxUploadBytes)
		}
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("spool upload: %w", err)
	}
	s.logger.Debug().
		Str("path", path).
		Int64("bytes", written).
		Msg("upload spooled")
	return path, hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash source: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (t task) cleanup() {
	if t.spooled && t.path != "" {
		_ = os.Remove(t.path)
	}
}

func baseName(path string) string {
	return filepath.Base(path)
}
