// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ManuGH/ragbox/internal/document"
)

// PDFParser extracts page text from PDF documents. Text rows are grouped into
// paragraphs by vertical spacing; isolated rows set in a larger font become
// title chunks.
type PDFParser struct{}

// NewPDFParser returns the PDF parser.
func NewPDFParser() *PDFParser { return &PDFParser{} }

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) MediaTypes() []string { return []string{MediaPDF} }

// Parse implements Parser.
func (p *PDFParser) Parse(ctx context.Context, src Source) (out Parsed, err error) {
	// The PDF reader panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return Parsed{}, fmt.Errorf("open pdf: %w", err)
	}

	var b chunkBuilder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return Parsed{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return Parsed{}, fmt.Errorf("read page %d: %w", i, err)
		}
		layoutPage(pdfLines(rows), i, &b)
	}
	return Parsed{Chunks: b.chunks, Pages: pages}, nil
}

// textLine is one visual row of a page.
type textLine struct {
	y    float64
	size float64
	text string
}

func pdfLines(rows pdf.Rows) []textLine {
	lines := make([]textLine, 0, len(rows))
	for _, row := range rows {
		if row == nil || len(row.Content) == 0 {
			continue
		}
		words := append(pdf.TextHorizontal(nil), row.Content...)
		sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })

		var b strings.Builder
		size := 0.0
		prevEnd := 0.0
		for i, w := range words {
			if w.FontSize > size {
				size = w.FontSize
			}
			if i > 0 && w.X-prevEnd > 0.25*w.FontSize && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteString(w.S)
			prevEnd = w.X + w.W
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		lines = append(lines, textLine{y: float64(row.Position), size: size, text: text})
	}
	return lines
}

// layoutPage groups lines (any order) into paragraph and title chunks.
func layoutPage(lines []textLine, page int, b *chunkBuilder) {
	if len(lines) == 0 {
		return
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	gaps := make([]float64, 0, len(lines))
	sizes := make([]float64, 0, len(lines))
	for i, l := range lines {
		sizes = append(sizes, l.size)
		if i > 0 {
			gaps = append(gaps, lines[i-1].y-l.y)
		}
	}
	gapLimit := 1.6 * median(gaps)
	bodySize := median(sizes)

	var para []textLine
	flush := func() {
		if len(para) == 0 {
			return
		}
		if len(para) == 1 && isHeading(para[0], bodySize) {
			level := 2
			if bodySize > 0 && para[0].size >= 1.6*bodySize {
				level = 1
			}
			b.text(para[0].text, page, document.KindTitle, level)
		} else {
			b.text(joinLines(para), page, document.KindParagraph, 0)
		}
		para = para[:0]
	}

	for i, l := range lines {
		if i > 0 {
			gap := lines[i-1].y - l.y
			sizeJump := bodySize > 0 && (l.size >= 1.2*bodySize) != (lines[i-1].size >= 1.2*bodySize)
			if (gapLimit > 0 && gap > gapLimit) || sizeJump {
				flush()
			}
		}
		para = append(para, l)
	}
	flush()
}

func isHeading(l textLine, bodySize float64) bool {
	if bodySize <= 0 || len([]rune(l.text)) > 120 {
		return false
	}
	return l.size >= 1.2*bodySize
}

// joinLines joins paragraph rows, undoing end-of-line hyphenation.
func joinLines(lines []textLine) string {
	var b strings.Builder
	for i, l := range lines {
		text := l.text
		if i > 0 {
			prev := b.String()
			if strings.HasSuffix(prev, "-") && startsLower(text) {
				s := strings.TrimSuffix(prev, "-")
				b.Reset()
				b.WriteString(s)
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(text)
	}
	return b.String()
}

func startsLower(s string) bool {
	for _, r := range s {
		return r >= 'a' && r <= 'z'
	}
	return false
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
