// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/ragbox/internal/document"
)

// normalizeText converts s to NFC, drops control characters and a stray BOM
// and collapses runs of whitespace. Single newlines become spaces; paragraph
// structure is decided by the caller. Format characters such as ZWJ and ZWNJ
// are kept.
func normalizeText(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) || r == '\uFEFF' {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeCode converts s to NFC and drops control characters other than
// newline and tab. Line breaks and indentation are kept; leading and trailing
// blank lines are removed.
func normalizeCode(s string) string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r) || r == '\uFEFF':
			return -1
		}
		return r
	}, s)
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// chunkBuilder accumulates chunks in document order.
type chunkBuilder struct {
	chunks document.Chunks
}

// text appends a text chunk unless the normalised content is blank.
func (b *chunkBuilder) text(content string, page int, kind string, level int) {
	content = normalizeText(content)
	if content == "" {
		return
	}
	meta := map[string]string{document.MetaKind: kind}
	if kind == document.KindTitle && level > 0 {
		meta[document.MetaLevel] = strconv.Itoa(level)
	}
	b.chunks = append(b.chunks, document.Chunk{
		Type:       document.ChunkText,
		Content:    content,
		SourcePage: page,
		Metadata:   meta,
	})
}

// code appends a text chunk holding a code block verbatim.
func (b *chunkBuilder) code(content string, page int, language string) {
	content = normalizeCode(content)
	if content == "" {
		return
	}
	meta := map[string]string{document.MetaKind: document.KindCode}
	if language != "" {
		meta[document.MetaLanguage] = language
	}
	b.chunks = append(b.chunks, document.Chunk{
		Type:       document.ChunkText,
		Content:    content,
		SourcePage: page,
		Metadata:   meta,
	})
}

// table appends a Markdown table chunk.
func (b *chunkBuilder) table(markdown string, page int, caption string) {
	if strings.TrimSpace(markdown) == "" {
		return
	}
	b.chunks = append(b.chunks, document.Chunk{
		Type:       document.ChunkTable,
		Content:    markdown,
		SourcePage: page,
		Metadata: map[string]string{
			document.MetaCaption: normalizeText(caption),
			document.MetaFormat:  document.FormatMarkdown,
		},
	})
}

// image appends an image chunk holding base64 PNG data.
func (b *chunkBuilder) image(pngBase64 string, page int, caption string) {
	b.chunks = append(b.chunks, document.Chunk{
		Type:       document.ChunkImage,
		Content:    pngBase64,
		SourcePage: page,
		Metadata: map[string]string{
			document.MetaCaption: normalizeText(caption),
			document.MetaFormat:  document.FormatPNG,
		},
	})
}

// markdownTable renders rows as a GitHub style pipe table. The first row is
// the header; short rows are padded.
func markdownTable(rows [][]string) string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = strings.ReplaceAll(normalizeText(row[i]), "|", `\|`)
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}
