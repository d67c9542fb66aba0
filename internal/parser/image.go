// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"
	"net/url"
	"strings"

	"github.com/ManuGH/ragbox/internal/fsutil"
	xglog "github.com/ManuGH/ragbox/internal/log"
)

// ImageParser turns a standalone image file into a single image chunk.
type ImageParser struct{}

// NewImageParser returns the image parser.
func NewImageParser() *ImageParser { return &ImageParser{} }

func (p *ImageParser) Name() string { return "image" }

func (p *ImageParser) MediaTypes() []string { return []string{MediaPNG, MediaJPEG, MediaGIF} }

// Parse implements Parser.
func (p *ImageParser) Parse(_ context.Context, src Source) (Parsed, error) {
	encoded, err := toPNGBase64(src.Data, src.MaxPixels)
	if err != nil {
		return Parsed{}, err
	}
	var b chunkBuilder
	b.image(encoded, 1, fsutil.Stem(src.Name))
	return Parsed{Chunks: b.chunks, Pages: 1}, nil
}

// toPNGBase64 decodes any registered image format and re-encodes it as PNG.
// Images with more than maxPixels pixels are rejected before decoding.
func toPNGBase64(data []byte, maxPixels int64) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && px > maxPixels {
		return "", fmt.Errorf("%w: image is %dx%d (%d pixels), limit is %d", ErrTooLarge, cfg.Width, cfg.Height, px, maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

var errNotImageURI = errors.New("not an image data URI")

// dataURIToPNG converts a data:image/...;base64 URI into base64 PNG data.
func dataURIToPNG(uri string, maxPixels int64) (string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", errNotImageURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasPrefix(header, "image/") {
		return "", errNotImageURI
	}

	var raw []byte
	var err error
	if strings.HasSuffix(header, ";base64") {
		raw, err = base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		raw = []byte(s)
	}
	if err != nil {
		return "", fmt.Errorf("decode data uri: %w", err)
	}
	return toPNGBase64(raw, maxPixels)
}

// skipInlineImage logs an embedded image that is dropped from the document.
func skipInlineImage(ctx context.Context, err error) {
	logger := xglog.FromContext(ctx)
	if errors.Is(err, ErrTooLarge) {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "parse.image_skipped").Msg("skipping oversized inline image")
		return
	}
	logger.Debug().Err(err).Msg("skipping undecodable inline image")
}
