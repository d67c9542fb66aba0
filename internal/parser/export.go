// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/fsutil"
	xglog "github.com/ManuGH/ragbox/internal/log"
)

// ReconstructMarkdown renders the parsed document as a single Markdown file
// with images embedded as base64 data URIs.
func ReconstructMarkdown(res *Result) string {
	var b strings.Builder
	page := 0
	for _, c := range res.Chunks {
		if c.SourcePage > 0 && c.SourcePage != page {
			if page > 0 || res.Document.Pages > 1 {
				fmt.Fprintf(&b, "<!-- page %d -->\n\n", c.SourcePage)
			}
			page = c.SourcePage
		}
		switch c.Type {
		case document.ChunkText:
			writeMarkdownText(&b, c)
		case document.ChunkTable:
			if c.IsVisual() {
				writeMarkdownImage(&b, c)
				break
			}
			b.WriteString(c.Content)
			b.WriteString("\n")
			if caption := c.Caption(); caption != "" {
				fmt.Fprintf(&b, "Table: %s\n", caption)
			}
			b.WriteString("\n")
		case document.ChunkImage:
			writeMarkdownImage(&b, c)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeMarkdownText(b *strings.Builder, c document.Chunk) {
	switch c.Meta(document.MetaKind) {
	case document.KindTitle:
		level, err := strconv.Atoi(c.Meta(document.MetaLevel))
		if err != nil || level < 1 || level > 6 {
			level = 2
		}
		b.WriteString(strings.Repeat("#", level))
		b.WriteByte(' ')
	case document.KindListItem:
		b.WriteString("- ")
	case document.KindCode:
		fence := codeFence(c.Content)
		fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", fence, c.Meta(document.MetaLanguage), c.Content, fence)
		return
	}
	b.WriteString(c.Content)
	b.WriteString("\n\n")
}

// codeFence returns a backtick fence longer than any backtick run in content.
func codeFence(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

func writeMarkdownImage(b *strings.Builder, c document.Chunk) {
	alt := strings.NewReplacer("[", "(", "]", ")", "\n", " ").Replace(c.Caption())
	fmt.Fprintf(b, "![%s](data:image/png;base64,%s)\n\n", alt, c.Content)
}

// SaveTables writes every table of the document into outDir as
// <stem>-table-<n>.png, or .md for tables extracted as Markdown.
// Numbering starts at 1. It returns the written paths.
func SaveTables(ctx context.Context, res *Result, outDir string) ([]string, error) {
	return saveChunks(ctx, res, outDir, res.Tables(), "table")
}

// SavePictures writes every picture of the document into outDir as
// <stem>-picture-<n>.png. It returns the written paths.
func SavePictures(ctx context.Context, res *Result, outDir string) ([]string, error) {
	return saveChunks(ctx, res, outDir, res.Images(), "picture")
}

// SaveMarkdown writes the reconstructed Markdown as <stem>.md into outDir.
func SaveMarkdown(ctx context.Context, res *Result, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outDir, fsutil.Stem(res.Document.Name)+".md")
	if err := fsutil.WriteFileAtomic(path, []byte(ReconstructMarkdown(res)), 0o644); err != nil {
		return "", err
	}
	xglog.FromContext(ctx).Info().Str(xglog.FieldPath, path).Msg("saved markdown reconstruction")
	return path, nil
}

func saveChunks(ctx context.Context, res *Result, outDir string, chunks document.Chunks, label string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	stem := fsutil.Stem(res.Document.Name)
	logger := xglog.FromContext(ctx)

	paths := make([]string, 0, len(chunks))
	for i, c := range chunks {
		var (
			data []byte
			ext  = ".png"
			err  error
		)
		if c.IsVisual() {
			data, err = base64.StdEncoding.DecodeString(c.Content)
			if err != nil {
				return paths, fmt.Errorf("decode %s %d: %w", label, i+1, err)
			}
		} else {
			ext = ".md"
			data = []byte(c.Content + "\n")
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s-%s-%d%s", stem, label, i+1, ext))
		if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return paths, err
		}
		logger.Debug().Str(xglog.FieldPath, path).Msgf("saved %s", label)
		paths = append(paths, path)
	}
	logger.Info().Int("count", len(paths)).Str(xglog.FieldPath, outDir).Msgf("saved %ss", label)
	return paths, nil
}
