// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package document

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseChunkType(t *testing.T) {
	tests := []struct {
		in      string
		want    ChunkType
		wantErr bool
	}{
		{in: "text", want: ChunkText},
		{in: " TABLE ", want: ChunkTable},
		{in: "image", want: ChunkImage},
		{in: "video", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChunkType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChunkType) {
					t.Fatalf("expected ErrInvalidChunkType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseChunkType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChunksFilters(t *testing.T) {
	cs := Chunks{
		{Type: ChunkText, Content: "a"},
		{Type: ChunkImage, Content: "img"},
		{Type: ChunkText, Content: "b"},
		{Type: ChunkTable, Content: "|x|"},
	}

	if diff := cmp.Diff([]string{"a", "b"}, contents(cs.Texts())); diff != "" {
		t.Errorf("Texts() mismatch (-want +got):\n%s", diff)
	}
	if got := len(cs.Tables()); got != 1 {
		t.Errorf("Tables() len = %d, want 1", got)
	}
	if got := len(cs.Images()); got != 1 {
		t.Errorf("Images() len = %d, want 1", got)
	}

	want := map[ChunkType]int{ChunkText: 2, ChunkTable: 1, ChunkImage: 1}
	if diff := cmp.Diff(want, cs.Counts()); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
}

func TestCountsIncludesZeroTypes(t *testing.T) {
	got := Chunks{}.Counts()
	for _, typ := range AllChunkTypes {
		if n, ok := got[typ]; !ok || n != 0 {
			t.Errorf("Counts()[%s] = %d, %v; want 0, true", typ, n, ok)
		}
	}
}

func TestRenumber(t *testing.T) {
	cs := Chunks{{Seq: 7}, {Seq: 3}, {Seq: 9}}
	cs.Renumber("doc-1")
	for i, c := range cs {
		if c.Seq != i || c.DocumentID != "doc-1" {
			t.Errorf("chunk %d = seq %d doc %q", i, c.Seq, c.DocumentID)
		}
	}
}

func TestIsVisual(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		want  bool
	}{
		{"image", Chunk{Type: ChunkImage}, true},
		{"png table", Chunk{Type: ChunkTable, Metadata: map[string]string{MetaFormat: FormatPNG}}, true},
		{"markdown table", Chunk{Type: ChunkTable, Metadata: map[string]string{MetaFormat: FormatMarkdown}}, false},
		{"text", Chunk{Type: ChunkText}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.IsVisual(); got != tt.want {
				t.Errorf("IsVisual() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCaptionNilMetadata(t *testing.T) {
	if got := (Chunk{}).Caption(); got != "" {
		t.Errorf("Caption() = %q, want empty", got)
	}
}

func contents(cs Chunks) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Content)
	}
	return out
}
