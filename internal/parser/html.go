// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ManuGH/ragbox/internal/document"
	xglog "github.com/ManuGH/ragbox/internal/log"
)

// HTMLParser extracts headings, paragraphs, tables and inline images from
// HTML documents. HTML has no pages, so every chunk is on page 1.
type HTMLParser struct{}

// NewHTMLParser returns the HTML parser.
func NewHTMLParser() *HTMLParser { return &HTMLParser{} }

func (p *HTMLParser) Name() string { return "html" }

func (p *HTMLParser) MediaTypes() []string { return []string{MediaHTML} }

// Parse implements Parser.
func (p *HTMLParser) Parse(ctx context.Context, src Source) (Parsed, error) {
	root, err := html.Parse(bytes.NewReader(src.Data))
	if err != nil {
		return Parsed{}, fmt.Errorf("parse html: %w", err)
	}
	w := &htmlWalker{ctx: ctx, kind: document.KindParagraph, maxPixels: src.MaxPixels}
	w.walk(root)
	w.flush()
	if err := ctx.Err(); err != nil {
		return Parsed{}, err
	}
	return Parsed{Chunks: w.b.chunks, Pages: 1}, nil
}

type htmlWalker struct {
	ctx       context.Context
	b         chunkBuilder
	buf       strings.Builder
	kind      string
	caption   string // caption of the enclosing <figure>
	maxPixels int64
}

const htmlPage = 1

var skippedElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Nav:      true,
	atom.Svg:      true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Hr: true, atom.Body: true,
	atom.Address: true, atom.Details: true, atom.Summary: true,
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func (w *htmlWalker) walk(n *html.Node) {
	if w.ctx.Err() != nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		w.buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
		if level := headingLevel(n.DataAtom); level > 0 {
			w.flush()
			w.b.text(textContent(n), htmlPage, document.KindTitle, level)
			return
		}
		switch n.DataAtom {
		case atom.Table:
			w.flush()
			w.table(n)
			return
		case atom.Img:
			w.flush()
			w.img(n)
			return
		case atom.Br:
			w.buf.WriteByte('\n')
			return
		case atom.Pre:
			w.flush()
			w.b.code(preText(n), htmlPage, codeLanguage(n))
			return
		case atom.Figcaption:
			return
		case atom.Figure:
			w.flush()
			prev := w.caption
			w.caption = figureCaption(n)
			w.children(n)
			w.flush()
			w.caption = prev
			return
		case atom.Li:
			w.flush()
			prev := w.kind
			w.kind = document.KindListItem
			w.children(n)
			w.flush()
			w.kind = prev
			return
		}
		if blockElements[n.DataAtom] {
			w.flush()
			w.children(n)
			w.flush()
			return
		}
	}
	w.children(n)
}

func (w *htmlWalker) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *htmlWalker) flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.b.text(w.buf.String(), htmlPage, w.kind, 0)
	w.buf.Reset()
}

func (w *htmlWalker) table(n *html.Node) {
	var rows [][]string
	caption := w.caption
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Caption:
				caption = textContent(c)
			case atom.Tr:
				var row []string
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
						row = append(row, textContent(cell))
					}
				}
				if len(row) > 0 {
					rows = append(rows, row)
				}
			case atom.Table:
				// nested tables are flattened into their own chunk
				w.table(c)
			default:
				visit(c)
			}
		}
	}
	visit(n)
	if len(rows) == 0 {
		return
	}
	w.b.table(markdownTable(rows), htmlPage, caption)
}

func (w *htmlWalker) img(n *html.Node) {
	src := attr(n, "src")
	caption := w.caption
	if caption == "" {
		caption = attr(n, "alt")
	}
	if !strings.HasPrefix(src, "data:") {
		xglog.FromContext(w.ctx).Debug().Str("src", truncate(src, 120)).Msg("skipping remote image")
		return
	}
	encoded, err := dataURIToPNG(src, w.maxPixels)
	if err != nil {
		skipInlineImage(w.ctx, err)
		return
	}
	w.b.image(encoded, htmlPage, caption)
}

func figureCaption(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Figcaption {
			return textContent(c)
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode {
			if skippedElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] || n.DataAtom == atom.Br || n.DataAtom == atom.Li {
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return normalizeText(b.String())
}

// preText returns the text of a <pre> element with its whitespace intact.
func preText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// codeLanguage reads a "language-x" or "lang-x" class from a <pre> element
// or its <code> child.
func codeLanguage(pre *html.Node) string {
	nodes := []*html.Node{pre}
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Code {
			nodes = append(nodes, c)
		}
	}
	for _, n := range nodes {
		for _, class := range strings.Fields(attr(n, "class")) {
			if lang, ok := strings.CutPrefix(class, "language-"); ok && lang != "" {
				return lang
			}
			if lang, ok := strings.CutPrefix(class, "lang-"); ok && lang != "" {
				return lang
			}
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
