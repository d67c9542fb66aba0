// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/ragbox/internal/document"
)

func sampleResult(t *testing.T) *Result {
	t.Helper()
	img := base64.StdEncoding.EncodeToString(testPNG(t))
	res := &Result{
		Document: document.Document{Name: "attention.pdf", Pages: 2},
		Chunks: document.Chunks{
			{Type: document.ChunkText, Content: "Attention", SourcePage: 1, Metadata: map[string]string{document.MetaKind: document.KindTitle, document.MetaLevel: "1"}},
			{Type: document.ChunkText, Content: "Recurrent models are slow.", SourcePage: 1, Metadata: map[string]string{document.MetaKind: document.KindParagraph}},
			{Type: document.ChunkText, Content: "parallel", SourcePage: 1, Metadata: map[string]string{document.MetaKind: document.KindListItem}},
			{Type: document.ChunkTable, Content: "| a | b |\n| --- | --- |\n| 1 | 2 |", SourcePage: 2, Metadata: map[string]string{document.MetaCaption: "Results", document.MetaFormat: document.FormatMarkdown}},
			{Type: document.ChunkImage, Content: img, SourcePage: 2, Metadata: map[string]string{document.MetaCaption: "Figure [1]", document.MetaFormat: document.FormatPNG}},
			{Type: document.ChunkTable, Content: img, SourcePage: 2, Metadata: map[string]string{document.MetaFormat: document.FormatPNG}},
			{Type: document.ChunkText, Content: "func main() {\n\tprintln(\"```\")\n}", SourcePage: 2, Metadata: map[string]string{document.MetaKind: document.KindCode, document.MetaLanguage: "go"}},
		},
	}
	res.Chunks.Renumber("")
	return res
}

func TestReconstructMarkdown(t *testing.T) {
	res := sampleResult(t)
	img := res.Chunks[4].Content

	want := "<!-- page 1 -->\n\n" +
		"# Attention\n\n" +
		"Recurrent models are slow.\n\n" +
		"- parallel\n\n" +
		"<!-- page 2 -->\n\n" +
		"| a | b |\n| --- | --- |\n| 1 | 2 |\nTable: Results\n\n" +
		"![Figure (1)](data:image/png;base64," + img + ")\n\n" +
		"![](data:image/png;base64," + img + ")\n\n" +
		"````go\nfunc main() {\n\tprintln(\"```\")\n}\n````\n"
	assert.Equal(t, want, ReconstructMarkdown(res))
}

func TestReconstructMarkdownSinglePageHasNoMarkers(t *testing.T) {
	res := &Result{
		Document: document.Document{Name: "note.txt", Pages: 1},
		Chunks: document.Chunks{
			{Type: document.ChunkText, Content: "hello", SourcePage: 1},
			{Type: document.ChunkText, Content: "Heading", SourcePage: 1, Metadata: map[string]string{document.MetaKind: document.KindTitle}},
		},
	}
	assert.Equal(t, "hello\n\n## Heading\n", ReconstructMarkdown(res))
}

func TestReconstructMarkdownRoundTrip(t *testing.T) {
	res := sampleResult(t)
	md := ReconstructMarkdown(res)

	again, err := NewRegistry().Parse(context.Background(), Source{Name: "attention.md", Data: []byte(md)})
	require.NoError(t, err)

	// the PNG table comes back as a picture
	want := append(document.Chunks(nil), res.Chunks...)
	want[5].Type = document.ChunkImage
	want[5].Metadata = map[string]string{document.MetaCaption: "", document.MetaFormat: document.FormatPNG}
	want[4].Metadata = map[string]string{document.MetaCaption: "Figure (1)", document.MetaFormat: document.FormatPNG}

	if diff := cmp.Diff(want, again.Chunks, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, again.Document.Pages)
}

func TestSaveTablesAndPictures(t *testing.T) {
	res := sampleResult(t)
	dir := filepath.Join(t.TempDir(), "out")

	tables, err := SaveTables(context.Background(), res, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "attention-table-1.md"),
		filepath.Join(dir, "attention-table-2.png"),
	}, tables)

	pictures, err := SavePictures(context.Background(), res, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "attention-picture-1.png")}, pictures)

	md, err := os.ReadFile(tables[0])
	require.NoError(t, err)
	assert.Equal(t, res.Chunks[3].Content+"\n", string(md))

	png, err := os.ReadFile(pictures[0])
	require.NoError(t, err)
	assert.Equal(t, testPNG(t), png)
}

func TestSaveTablesNoTables(t *testing.T) {
	res := &Result{Document: document.Document{Name: "empty.html"}}
	paths, err := SaveTables(context.Background(), res, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSavePicturesRejectsCorruptData(t *testing.T) {
	res := &Result{
		Document: document.Document{Name: "x.html"},
		Chunks: document.Chunks{
			{Type: document.ChunkImage, Content: "!!not base64!!", Metadata: map[string]string{document.MetaFormat: document.FormatPNG}},
		},
	}
	_, err := SavePictures(context.Background(), res, t.TempDir())
	assert.Error(t, err)
}

func TestSaveMarkdown(t *testing.T) {
	res := sampleResult(t)
	dir := t.TempDir()

	path, err := SaveMarkdown(context.Background(), res, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "attention.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ReconstructMarkdown(res), string(data))
}
