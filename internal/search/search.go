// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries paper sources (arXiv, PubMed) and returns new
// candidates that are not already part of the corpus.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// overFetchFactor multiplies the desired count when querying a source so
// that enough new items remain after known ones are filtered out.
const overFetchFactor = 3

// Adapter searches a single paper source.
type Adapter interface {
	Name() types.Source
	Search(ctx context.Context, query string, desired int, exclude map[string]bool) Result
}

// Status classifies an adapter result.
type Status string

const (
	StatusFound  Status = "found"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Result is the outcome of one adapter call.
type Result struct {
	Source types.Source

	// Candidates holds at most the desired number of new candidates in
	// the order the source returned them.
	Candidates []types.Candidate

	// Fetched is the number of records the source returned before filtering.
	Fetched int

	// Err is set when the source could not be queried or parsed.
	Err error
}

// Status reports whether the call found candidates, found nothing new, or failed.
func (r Result) Status() Status {
	switch {
	case r.Err != nil:
		return StatusFailed
	case len(r.Candidates) == 0:
		return StatusEmpty
	default:
		return StatusFound
	}
}

// failed builds a failed Result.
func failed(src types.Source, format string, args ...any) Result {
	return Result{Source: src, Err: fmt.Errorf(format, args...)}
}

// collectNew keeps candidates whose URL is neither excluded nor already
// collected, stopping once desired items are accumulated.
func collectNew(all []types.Candidate, desired int, exclude map[string]bool) []types.Candidate {
	seen := make(map[string]bool, len(all))
	var out []types.Candidate
	for _, c := range all {
		if len(out) >= desired {
			break
		}
		if c.URL == "" || exclude[c.URL] || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatTable writes candidates or papers as a human-readable table to w.
func FormatTable(papers []types.Paper, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}

	fmt.Fprintf(w, "%-5s  %-60s  %-20s  %-10s  %-6s  %s\n",
		"ID", "Title", "Authors", "Published", "Source", "File")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for _, p := range papers {
		file := "-"
		switch {
		case p.FilePath != "":
			file = p.FilePath
		case p.SkipReason != "":
			file = "skipped: " + p.SkipReason
		}
		fmt.Fprintf(w, "%-5d  %-60s  %-20s  %-10s  %-6s  %s\n",
			p.ID, truncate(p.Title, 60), formatAuthors(p.Authors), p.PublishedDate, p.Source, file)
	}
	fmt.Fprintf(w, "\n%d papers\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.Paper, w io.Writer) error {
	if papers == nil {
		papers = []types.Paper{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
