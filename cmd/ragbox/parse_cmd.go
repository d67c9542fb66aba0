// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/parser"
	"github.com/ManuGH/ragbox/internal/summarize"
)

func newParseCmd(_ *rootOptions) *cobra.Command {
	var (
		outDir    string
		maxBytes  int64
		maxPixels int64
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a document into chunks and optionally export them",
		Long: `Parse a PDF, HTML, Markdown, text or image file into typed chunks.

With --out the reconstructed Markdown, every table and every picture are
written into the directory as <stem>.md, <stem>-table-<n>.* and
<stem>-picture-<n>.png.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := parser.NewRegistry(parser.WithMaxBytes(maxBytes), parser.WithMaxPixels(maxPixels))
			res, err := reg.ParseFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"document": res.Document, "chunks": res.Chunks})
			}
			printCounts(out, res)

			if outDir == "" {
				return nil
			}
			md, err := parser.SaveMarkdown(cmd.Context(), res, outDir)
			if err != nil {
				return err
			}
			tables, err := parser.SaveTables(cmd.Context(), res, outDir)
			if err != nil {
				return err
			}
			pictures, err := parser.SavePictures(cmd.Context(), res, outDir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "wrote %s, %d table(s), %d picture(s) to %s\n", md, len(tables), len(pictures), outDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for markdown, table and picture exports")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "reject files larger than this many bytes (0 = no limit)")
	cmd.Flags().Int64Var(&maxPixels, "max-pixels", parser.DefaultMaxPixels, "reject images with more pixels than this (0 = no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the document and its chunks as JSON")
	return cmd
}

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summarize FILE",
		Short: "Parse a document and summarize its chunks with the configured model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.parser.ParseFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			results, err := p.summarizer.SummarizeAll(cmd.Context(), res.Chunks, summarize.BatchOptions{
				Concurrency: cfg.Summarize.Concurrency,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, summaryViews(results))
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					_, _ = fmt.Fprintf(out, "[%s p.%d] error: %v\n", r.Chunk.Type, r.Chunk.SourcePage, r.Err)
					continue
				}
				_, _ = fmt.Fprintf(out, "[%s p.%d] %s\n", r.Chunk.Type, r.Chunk.SourcePage, r.Summary)
			}
			if failed > 0 && failed == len(results) {
				return fmt.Errorf("all %d summaries failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print summaries as JSON")
	return cmd
}

type summaryView struct {
	ChunkID    string             `json:"chunk_id"`
	ChunkType  document.ChunkType `json:"chunk_type"`
	SourcePage int                `json:"source_page"`
	Summary    string             `json:"summary,omitempty"`
	Cached     bool               `json:"cached"`
	Error      string             `json:"error,omitempty"`
}

func summaryViews(results []summarize.Result) []summaryView {
	views := make([]summaryView, 0, len(results))
	for _, r := range results {
		v := summaryView{
			ChunkID:    r.Chunk.ID,
			ChunkType:  r.Chunk.Type,
			SourcePage: r.Chunk.SourcePage,
			Summary:    r.Summary,
			Cached:     r.Cached,
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		views = append(views, v)
	}
	return views
}

func printCounts(w io.Writer, res *parser.Result) {
	counts := res.Chunks.Counts()
	_, _ = fmt.Fprintf(w, "%s (%s, %d page(s)): %d chunk(s)\n",
		res.Document.Name, res.Document.MediaType, res.Document.Pages, len(res.Chunks))
	for _, t := range document.AllChunkTypes {
		_, _ = fmt.Fprintf(w, "  %-6s %d\n", t, counts[t])
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
