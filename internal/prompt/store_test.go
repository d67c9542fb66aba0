// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/ragbox/internal/document"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadCachesTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "text.txt"), "v1 {text_content}")

	s := NewStore(dir)
	assert.Equal(t, "v1 {text_content}", s.Load(document.ChunkText))

	// cached until invalidated
	writeFile(t, filepath.Join(dir, "text.txt"), "v2 {text_content}")
	assert.Equal(t, "v1 {text_content}", s.Load(document.ChunkText))

	s.Invalidate()
	assert.Equal(t, "v2 {text_content}", s.Load(document.ChunkText))
}

func TestLoadFallbacks(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, WithFile(document.ChunkTable, "broken"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "broken"), 0o755))

	assert.Equal(t, FallbackMissing, s.Load(document.ChunkImage))
	assert.Equal(t, FallbackReadError, s.Load(document.ChunkTable))
	assert.Equal(t, FallbackMissing, s.Load(document.ChunkType("audio")))

	// fallbacks are not cached
	writeFile(t, filepath.Join(dir, "image.txt"), "describe it")
	assert.Equal(t, "describe it", s.Load(document.ChunkImage))
}

func TestWithFileAbsolutePath(t *testing.T) {
	other := filepath.Join(t.TempDir(), "custom.txt")
	writeFile(t, other, "custom")

	s := NewStore(t.TempDir(), WithFile(document.ChunkText, other), WithFile(document.ChunkImage, ""))
	assert.Equal(t, other, s.Path(document.ChunkText))
	assert.Equal(t, filepath.Join(s.Dir(), "image.txt"), s.Path(document.ChunkImage))
	assert.Equal(t, "custom", s.Load(document.ChunkText))
}

func TestRender(t *testing.T) {
	pngTable := document.Chunk{
		Type:     document.ChunkTable,
		Content:  "aGVsbG8=",
		Metadata: map[string]string{document.MetaFormat: document.FormatPNG, document.MetaCaption: "Table 2: BLEU"},
	}
	mdTable := document.Chunk{
		Type:     document.ChunkTable,
		Content:  "| a |\n| --- |\n| 1 |",
		Metadata: map[string]string{document.MetaFormat: document.FormatMarkdown},
	}
	image := document.Chunk{Type: document.ChunkImage, Content: "aGVsbG8="}
	imageWithCaption := document.Chunk{Type: document.ChunkImage, Content: "aGVsbG8=", Metadata: map[string]string{document.MetaCaption: "Fig 1"}}
	text := document.Chunk{Type: document.ChunkText, Content: "Attention is all you need."}

	tests := []struct {
		name  string
		tpl   string
		chunk document.Chunk
		want  string
	}{
		{"text placeholder", "Summarize:\n{text_content}\nDone.", text, "Summarize:\nAttention is all you need.\nDone."},
		{"text braced placeholder", "Summarize: {{text_content}}", text, "Summarize: Attention is all you need."},
		{"text without placeholder", "Summarize the following content:\n", text, "Summarize the following content:\n\nAttention is all you need."},
		{"markdown table", "Table:\n{text_content}", mdTable, "Table:\n| a |\n| --- |\n| 1 |"},
		{"png table with caption", "Describe the table.\n", pngTable, "Describe the table.\n\nAdditional caption context: 'Table 2: BLEU'"},
		{"image without caption", "Describe the image.", image, "Describe the image."},
		{"image keeps template verbatim", "Describe.\n\n{text_content}\n", image, "Describe.\n\n{text_content}\n"},
		{"image caption after trailing newline", "Describe the image.\n", imageWithCaption, "Describe the image.\n\nAdditional caption context: 'Fig 1'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tpl, tt.chunk))
		})
	}
}

func TestRenderContentIsNotReexpanded(t *testing.T) {
	c := document.Chunk{Type: document.ChunkText, Content: "literal {text_content}"}
	assert.Equal(t, "> literal {text_content}", Render("> {{text_content}}", c))
}

func TestStoreRenderUsesTypeTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "image.txt"), "What is shown?")

	s := NewStore(dir)
	c := document.Chunk{Type: document.ChunkImage, Content: "aGVsbG8=", Metadata: map[string]string{document.MetaCaption: "Figure 1"}}
	assert.Equal(t, "What is shown?\nAdditional caption context: 'Figure 1'", s.Render(c))
}

func TestWriteDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")

	written, err := WriteDefaults(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "image.txt"),
		filepath.Join(dir, "table.txt"),
		filepath.Join(dir, "text.txt"),
	}, written)

	writeFile(t, filepath.Join(dir, "text.txt"), "mine")
	written, err = WriteDefaults(dir, false)
	require.NoError(t, err)
	assert.Empty(t, written)

	data, err := os.ReadFile(filepath.Join(dir, "text.txt"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))

	written, err = WriteDefaults(dir, true)
	require.NoError(t, err)
	assert.Len(t, written, 3)

	s := NewStore(dir)
	for _, ct := range document.AllChunkTypes {
		assert.Equal(t, Defaults()[ct], s.Load(ct))
	}
}

func TestWatchInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "text.txt"), "before")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStore(dir)
	require.NoError(t, s.Watch(ctx))
	assert.Equal(t, "before", s.Load(document.ChunkText))

	writeFile(t, filepath.Join(dir, "text.txt"), "after")
	assert.Eventually(t, func() bool {
		return s.Load(document.ChunkText) == "after"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchMissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, s.Watch(context.Background()))
}
