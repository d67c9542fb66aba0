// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ManuGH/ragbox/internal/document"
	"github.com/ManuGH/ragbox/internal/fsutil"
)

const defaultText = `You are an assistant that writes concise summaries for a document search index.
Summarize the following text in a few sentences. Keep names, numbers and
technical terms exactly as written and do not add information that is not in the text.

Text:
{text_content}
`

const defaultTable = `You are an assistant that writes concise summaries for a document search index.
Describe what the following table contains: its subject, the columns, and the
most important values or trends. Do not invent values.
`

const defaultImage = `You are an assistant that writes concise summaries for a document search index.
Describe the attached image in a few sentences. If it is a chart, diagram or table,
explain what it shows and mention the key values or labels you can read.
`

// Defaults returns the built-in template for each chunk type.
func Defaults() map[document.ChunkType]string {
	return map[document.ChunkType]string{
		document.ChunkText:  defaultText,
		document.ChunkTable: defaultTable,
		document.ChunkImage: defaultImage,
	}
}

// WriteDefaults writes the built-in templates into dir using the default file
// names. Existing files are kept unless overwrite is set. It returns the paths
// that were written.
func WriteDefaults(dir string, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create prompt dir: %w", err)
	}

	files := DefaultFiles()
	defaults := Defaults()
	types := make([]document.ChunkType, 0, len(files))
	for t := range files {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var written []string
	for _, t := range types {
		path := filepath.Join(dir, files[t])
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := fsutil.WriteFileAtomic(path, []byte(defaults[t]), 0o644); err != nil {
			return written, fmt.Errorf("write %s template: %w", t, err)
		}
		written = append(written, path)
	}
	return written, nil
}
