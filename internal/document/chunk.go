// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package document defines the units of information extracted from ingested
// documents. Every parser returns chunks in this format.
package document

import (
	"fmt"
	"strings"
	"time"
)

// ChunkType is the closed set of chunk kinds.
type ChunkType string

const (
	ChunkText  ChunkType = "text"
	ChunkTable ChunkType = "table"
	ChunkImage ChunkType = "image"
)

// AllChunkTypes lists every valid chunk type in canonical order.
var AllChunkTypes = []ChunkType{ChunkText, ChunkTable, ChunkImage}

// ParseChunkType validates s as a chunk type.
func ParseChunkType(s string) (ChunkType, error) {
	switch t := ChunkType(strings.ToLower(strings.TrimSpace(s))); t {
	case ChunkText, ChunkTable, ChunkImage:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChunkType, s)
	}
}

// Valid reports whether t is one of the known chunk types.
func (t ChunkType) Valid() bool {
	_, err := ParseChunkType(string(t))
	return err == nil
}

// Metadata keys shared between parsers, the summarizer and the exporters.
const (
	MetaCaption = "caption"
	MetaKind    = "kind"   // source element kind, e.g. "title", "paragraph"
	MetaLevel   = "level"  // heading level for title kinds
	MetaFormat  = "format" // FormatMarkdown or FormatPNG for tables
	// MetaLanguage is the info string language of a code block.
	MetaLanguage = "language"
)

// Table content formats.
const (
	FormatMarkdown = "markdown"
	FormatPNG      = "png"
)

// Element kinds stored under MetaKind.
const (
	KindTitle     = "title"
	KindParagraph = "paragraph"
	KindListItem  = "list_item"
	// KindCode content keeps its line breaks and indentation.
	KindCode = "code"
)

// Chunk is a unit of information extracted from a document.
//
// Content holds raw text for text chunks, a Markdown table or a base64 PNG
// for table chunks (see MetaFormat) and a base64 PNG for image chunks.
// SourcePage is 1-based; 0 means the page is unknown.
type Chunk struct {
	ID         string            `json:"id,omitempty"`
	DocumentID string            `json:"document_id,omitempty"`
	Seq        int               `json:"seq"`
	Type       ChunkType         `json:"type"`
	Content    string            `json:"content"`
	SourcePage int               `json:"source_page"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Caption returns the caption metadata or the empty string.
func (c Chunk) Caption() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetaCaption]
}

// Meta returns a metadata value or the empty string.
func (c Chunk) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// IsVisual reports whether the chunk content is a base64 encoded image.
func (c Chunk) IsVisual() bool {
	switch c.Type {
	case ChunkImage:
		return true
	case ChunkTable:
		return c.Meta(MetaFormat) == FormatPNG
	default:
		return false
	}
}

// Chunks is an ordered list of chunks in document order.
type Chunks []Chunk

// OfType returns the chunks of type t, preserving order.
func (cs Chunks) OfType(t ChunkType) Chunks {
	out := make(Chunks, 0, len(cs))
	for _, c := range cs {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns only the text chunks.
func (cs Chunks) Texts() Chunks { return cs.OfType(ChunkText) }

// Tables returns only the table chunks.
func (cs Chunks) Tables() Chunks { return cs.OfType(ChunkTable) }

// Images returns only the image chunks.
func (cs Chunks) Images() Chunks { return cs.OfType(ChunkImage) }

// Counts returns the number of chunks per type.
func (cs Chunks) Counts() map[ChunkType]int {
	out := make(map[ChunkType]int, len(AllChunkTypes))
	for _, t := range AllChunkTypes {
		out[t] = 0
	}
	for _, c := range cs {
		out[c.Type]++
	}
	return out
}

// Renumber assigns dense sequence numbers and the owning document ID.
func (cs Chunks) Renumber(documentID string) {
	for i := range cs {
		cs[i].Seq = i
		cs[i].DocumentID = documentID
	}
}

// Document describes an ingested source file.
type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SHA256    string    `json:"sha256"`
	MediaType string    `json:"media_type"`
	Pages     int       `json:"pages"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
