// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package parser turns source documents into ordered chunk lists.
//
// Parsers are stateless: every call returns a Result carrying the document
// description and its chunks, and the typed getters live on the Result.
package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/ragbox/internal/document"
	xglog "github.com/ManuGH/ragbox/internal/log"
	"github.com/ManuGH/ragbox/internal/metrics"
)

var (
	// ErrUnsupported is returned when no parser handles the media type.
	ErrUnsupported = errors.New("unsupported document type")
	// ErrTooLarge is returned when the input exceeds the configured size limit.
	ErrTooLarge = errors.New("document too large")
)

// Media types understood by the built-in parsers.
const (
	MediaPDF      = "application/pdf"
	MediaHTML     = "text/html"
	MediaMarkdown = "text/markdown"
	MediaText     = "text/plain"
	MediaPNG      = "image/png"
	MediaJPEG     = "image/jpeg"
	MediaGIF      = "image/gif"
)

// DefaultMaxPixels bounds the decoded size of a single image.
const DefaultMaxPixels = 50_000_000

// Source is a document held in memory.
type Source struct {
	Name string
	Data []byte
	// MaxPixels bounds width*height of every decoded image. Registry.Parse
	// fills it from the registry limit when zero.
	MaxPixels int64
}

// Parsed is what a single parser extracts from a source.
type Parsed struct {
	Chunks document.Chunks
	Pages  int
}

// Parser extracts chunks from one family of media types.
type Parser interface {
	Name() string
	MediaTypes() []string
	Parse(ctx context.Context, src Source) (Parsed, error)
}

// Result is the outcome of parsing one document.
type Result struct {
	Document document.Document
	Chunks   document.Chunks
}

// Texts returns only the text chunks of the parsed document.
func (r *Result) Texts() document.Chunks { return r.Chunks.Texts() }

// Tables returns only the table chunks of the parsed document.
func (r *Result) Tables() document.Chunks { return r.Chunks.Tables() }

// Images returns only the image chunks of the parsed document.
func (r *Result) Images() document.Chunks { return r.Chunks.Images() }

// Registry dispatches sources to parsers by media type.
type Registry struct {
	parsers   map[string]Parser
	maxBytes  int64
	maxPixels int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxBytes limits the accepted document size. Zero disables the limit.
func WithMaxBytes(n int64) Option {
	return func(r *Registry) { r.maxBytes = n }
}

// WithMaxPixels limits the pixel count of decoded images, both standalone
// and inline. Zero disables the limit.
func WithMaxPixels(n int64) Option {
	return func(r *Registry) { r.maxPixels = n }
}

// WithParser registers an additional parser, replacing built-ins for the
// same media types.
func WithParser(p Parser) Option {
	return func(r *Registry) { r.register(p) }
}

// NewRegistry returns a registry with the built-in parsers.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{parsers: make(map[string]Parser), maxPixels: DefaultMaxPixels}
	r.register(NewPDFParser())
	r.register(NewHTMLParser())
	r.register(NewMarkdownParser())
	r.register(NewImageParser())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) register(p Parser) {
	for _, mt := range p.MediaTypes() {
		r.parsers[mt] = p
	}
}

// Lookup returns the parser for a media type.
func (r *Registry) Lookup(mediaType string) (Parser, bool) {
	p, ok := r.parsers[mediaType]
	return p, ok
}

// ParseFile reads path and parses it.
func (r *Registry) ParseFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return r.ParseReader(ctx, filepath.Base(path), f)
}

// ParseReader reads the whole document from rd and parses it.
func (r *Registry) ParseReader(ctx context.Context, name string, rd io.Reader) (*Result, error) {
	data, err := readLimited(rd, r.maxBytes)
	if err != nil {
		return nil, err
	}
	return r.Parse(ctx, Source{Name: name, Data: data})
}

// Parse sniffs the media type of src and runs the matching parser.
func (r *Registry) Parse(ctx context.Context, src Source) (*Result, error) {
	if r.maxBytes > 0 && int64(len(src.Data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(src.Data), r.maxBytes)
	}
	if src.MaxPixels == 0 {
		src.MaxPixels = r.maxPixels
	}
	mediaType := DetectMediaType(src.Name, src.Data)
	p, ok := r.Lookup(mediaType)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, mediaType, src.Name)
	}

	logger := xglog.WithComponentFromContext(ctx, "parser").With().
		Str(xglog.FieldParser, p.Name()).
		Str("name", src.Name).
		Logger()
	logger.Info().Str(xglog.FieldEvent, "parse.start").Msg("starting to parse document")

	start := time.Now()
	parsed, err := p.Parse(ctx, src)
	if err != nil {
		metrics.RecordParse(p.Name(), "failure", time.Since(start))
		return nil, fmt.Errorf("%s parser: %w", p.Name(), err)
	}
	metrics.RecordParse(p.Name(), "success", time.Since(start))

	sum := sha256.Sum256(src.Data)
	res := &Result{
		Document: document.Document{
			Name:      src.Name,
			SHA256:    hex.EncodeToString(sum[:]),
			MediaType: mediaType,
			Pages:     parsed.Pages,
			SizeBytes: int64(len(src.Data)),
		},
		Chunks: parsed.Chunks,
	}
	res.Chunks.Renumber("")

	counts := res.Chunks.Counts()
	for t, n := range counts {
		metrics.AddChunks(string(t), n)
	}
	logger.Info().
		Str(xglog.FieldEvent, "parse.complete").
		Int("chunks", len(res.Chunks)).
		Int("text", counts[document.ChunkText]).
		Int("table", counts[document.ChunkTable]).
		Int("image", counts[document.ChunkImage]).
		Int("pages", parsed.Pages).
		Dur("duration", time.Since(start)).
		Msg("parsing complete")
	return res, nil
}

func readLimited(rd io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(rd)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(rd, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds limit of %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

var extMediaTypes = map[string]string{
	".pdf":      MediaPDF,
	".html":     MediaHTML,
	".htm":      MediaHTML,
	".xhtml":    MediaHTML,
	".md":       MediaMarkdown,
	".markdown": MediaMarkdown,
	".txt":      MediaText,
	".text":     MediaText,
	".png":      MediaPNG,
	".jpg":      MediaJPEG,
	".jpeg":     MediaJPEG,
	".gif":      MediaGIF,
}

// DetectMediaType resolves the media type from the file extension and falls
// back to content sniffing.
func DetectMediaType(name string, data []byte) string {
	if mt, ok := extMediaTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return strings.TrimSpace(sniffed)
}
