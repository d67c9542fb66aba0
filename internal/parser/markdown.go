// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuGH/ragbox/internal/document"
)

// MarkdownParser handles Markdown and plain text. Plain text is split into
// paragraphs on blank lines; Markdown additionally recognises headings, list
// items, pipe tables and inline data-URI images.
type MarkdownParser struct{}

// NewMarkdownParser returns the Markdown/plain text parser.
func NewMarkdownParser() *MarkdownParser { return &MarkdownParser{} }

func (p *MarkdownParser) Name() string { return "markdown" }

func (p *MarkdownParser) MediaTypes() []string { return []string{MediaMarkdown, MediaText} }

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)
	imageRe    = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	tableSepRe = regexp.MustCompile(`^:?-{1,}:?$`)
	pageMarkRe = regexp.MustCompile(`^<!--\s*page\s+(\d+)\s*-->$`)
	tableCapRe = regexp.MustCompile(`^(?:Table|\*Table)\s*:\s*(.*?)\**$`)
)

// Parse implements Parser.
func (p *MarkdownParser) Parse(ctx context.Context, src Source) (Parsed, error) {
	plain := DetectMediaType(src.Name, src.Data) == MediaText
	m := &mdState{ctx: ctx, page: 1, plain: plain, maxPixels: src.MaxPixels}

	sc := bufio.NewScanner(bytes.NewReader(src.Data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return Parsed{}, err
		}
		m.line(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Parsed{}, err
	}
	m.flushPara()
	m.flushTable()
	m.flushFence()
	return Parsed{Chunks: m.b.chunks, Pages: m.page}, nil
}

type mdState struct {
	ctx       context.Context
	b         chunkBuilder
	plain     bool
	page      int
	maxPixels int64

	para     []string
	paraKind string
	table    [][]string

	inFence     bool
	fenceMarker string // opening run of ` or ~
	fenceLang   string
	fence       []string
}

func (m *mdState) line(raw string) {
	trimmed := strings.TrimSpace(raw)

	if m.plain {
		if trimmed == "" {
			m.flushPara()
			return
		}
		m.para = append(m.para, trimmed)
		return
	}

	if m.inFence {
		if m.closesFence(trimmed) {
			m.flushFence()
			return
		}
		m.fence = append(m.fence, raw)
		return
	}

	if len(m.table) > 0 && !strings.HasPrefix(trimmed, "|") {
		caption := ""
		if match := tableCapRe.FindStringSubmatch(trimmed); match != nil {
			caption = match[1]
			trimmed = ""
		}
		m.flushTableWithCaption(caption)
		if trimmed == "" {
			return
		}
	}

	switch {
	case trimmed == "":
		m.flushPara()
	case pageMarkRe.MatchString(trimmed):
		m.flushPara()
		if n, err := strconv.Atoi(pageMarkRe.FindStringSubmatch(trimmed)[1]); err == nil && n > 0 {
			m.page = n
		}
	case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
		m.flushPara()
		m.openFence(trimmed)
	case headingRe.MatchString(trimmed):
		m.flushPara()
		match := headingRe.FindStringSubmatch(trimmed)
		m.b.text(match[2], m.page, document.KindTitle, len(match[1]))
	case strings.HasPrefix(trimmed, "|"):
		m.flushPara()
		m.tableRow(trimmed)
	case listItemRe.MatchString(raw):
		m.flushPara()
		m.paraKind = document.KindListItem
		m.appendInline(listItemRe.FindStringSubmatch(raw)[1])
	default:
		m.appendInline(trimmed)
	}
}

// appendInline adds paragraph text, emitting data-URI images as their own chunks.
func (m *mdState) appendInline(text string) {
	for {
		loc := imageRe.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		alt, target := text[loc[2]:loc[3]], text[loc[4]:loc[5]]
		if before := strings.TrimSpace(text[:loc[0]]); before != "" {
			m.para = append(m.para, before)
		}
		if strings.HasPrefix(target, "data:") {
			m.flushPara()
			if encoded, err := dataURIToPNG(target, m.maxPixels); err == nil {
				m.b.image(encoded, m.page, alt)
			} else {
				skipInlineImage(m.ctx, err)
			}
		} else if alt != "" {
			m.para = append(m.para, alt)
		}
		text = text[loc[1]:]
	}
	if text = strings.TrimSpace(text); text != "" {
		m.para = append(m.para, text)
	}
}

func (m *mdState) openFence(trimmed string) {
	marker := trimmed[:len(trimmed)-len(strings.TrimLeft(trimmed, trimmed[:1]))]
	m.inFence = true
	m.fenceMarker = marker
	m.fenceLang = ""
	if fields := strings.Fields(trimmed[len(marker):]); len(fields) > 0 {
		m.fenceLang = fields[0]
	}
}

// closesFence reports whether trimmed is a closing fence for the open block:
// the same character, at least as long, and nothing after it.
func (m *mdState) closesFence(trimmed string) bool {
	rest := strings.TrimLeft(trimmed, m.fenceMarker[:1])
	return len(trimmed)-len(rest) >= len(m.fenceMarker) && strings.TrimSpace(rest) == ""
}

// flushFence emits the open code block, if any. An unterminated fence runs
// to the end of the document.
func (m *mdState) flushFence() {
	if !m.inFence {
		return
	}
	m.b.code(strings.Join(m.fence, "\n"), m.page, m.fenceLang)
	m.inFence = false
	m.fenceMarker = ""
	m.fenceLang = ""
	m.fence = nil
}

func (m *mdState) flushPara() {
	if len(m.para) > 0 {
		kind := m.paraKind
		if kind == "" {
			kind = document.KindParagraph
		}
		m.b.text(strings.Join(m.para, " "), m.page, kind, 0)
	}
	m.para = nil
	m.paraKind = ""
}

func (m *mdState) tableRow(line string) {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := splitCells(line)
	sep := true
	for _, c := range cells {
		if !tableSepRe.MatchString(strings.TrimSpace(c)) {
			sep = false
			break
		}
	}
	if sep && len(m.table) == 1 {
		return
	}
	m.table = append(m.table, cells)
}

func (m *mdState) flushTable() { m.flushTableWithCaption("") }

func (m *mdState) flushTableWithCaption(caption string) {
	if len(m.table) == 0 {
		return
	}
	m.b.table(markdownTable(m.table), m.page, caption)
	m.table = nil
}

// splitCells splits a pipe table row, honouring escaped pipes.
func splitCells(line string) []string {
	var cells []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}
