// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Counts holds per-query or batch-wide tallies.
type Counts struct {
	Found          int `json:"found"`
	Persisted      int `json:"persisted"`
	Downloaded     int `json:"downloaded"`
	AlreadyPresent int `json:"already_present"`
	SkippedLong    int `json:"skipped_long"`
	SkippedLarge   int `json:"skipped_large"`
	NoDocument     int `json:"no_document"`
	Failed         int `json:"failed"`
}

func (c *Counts) plus(o Counts) {
	c.Found += o.Found
	c.Persisted += o.Persisted
	c.Downloaded += o.Downloaded
	c.AlreadyPresent += o.AlreadyPresent
	c.SkippedLong += o.SkippedLong
	c.SkippedLarge += o.SkippedLarge
	c.NoDocument += o.NoDocument
	c.Failed += o.Failed
}

// QuerySummary reports what one query produced.
type QuerySummary struct {
	Query  string          `json:"query"`
	Source search.Selector `json:"source,omitempty"`
	Counts

	// FailedSources lists the sources whose adapter call failed.
	FailedSources []types.Source `json:"failed_sources,omitempty"`

	// Err is set when the query could not run (invalid request, store
	// failure, cancellation).
	Err error `json:"-"`
}

// HasFailures reports whether the query or any of its adapter calls failed.
func (s QuerySummary) HasFailures() bool {
	return s.Err != nil || len(s.FailedSources) > 0
}

// record tallies one acquisition outcome.
func (s *QuerySummary) record(kind types.OutcomeKind) {
	switch kind {
	case types.OutcomeDownloaded:
		s.Downloaded++
	case types.OutcomeAlreadyPresent:
		s.AlreadyPresent++
	case types.OutcomeTooLong:
		s.SkippedLong++
	case types.OutcomeTooLarge:
		s.SkippedLarge++
	case types.OutcomeNoDocument:
		s.NoDocument++
	default:
		s.Failed++
	}
}

// BatchSummary aggregates the queries of one collection run.
type BatchSummary struct {
	Group    string         `json:"group,omitempty"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Queries  []QuerySummary `json:"queries"`
	Totals   Counts         `json:"totals"`

	// FailedQueries counts queries with at least one failed source or a
	// query-level error.
	FailedQueries int `json:"failed_queries"`

	// Err is set when the batch stopped early.
	Err error `json:"-"`
}

func (b *BatchSummary) add(q QuerySummary) {
	b.Queries = append(b.Queries, q)
	b.Totals.plus(q.Counts)
	if q.HasFailures() {
		b.FailedQueries++
	}
}

// FormatQuery writes a one-line summary of q to w.
func FormatQuery(q QuerySummary, w io.Writer) {
	fmt.Fprintf(w, "%-40s found %d, persisted %d, downloaded %d, skipped %d long / %d large, no document %d, failed %d",
		truncate(q.Query, 40), q.Found, q.Persisted, q.Downloaded+q.AlreadyPresent,
		q.SkippedLong, q.SkippedLarge, q.NoDocument, q.Failed)
	if len(q.FailedSources) > 0 {
		fmt.Fprintf(w, " (source errors: %v)", q.FailedSources)
	}
	if q.Err != nil {
		fmt.Fprintf(w, " (error: %v)", q.Err)
	}
	fmt.Fprintln(w)
}

// FormatBatch writes a per-query table and the batch totals to w.
func FormatBatch(b BatchSummary, w io.Writer) {
	for _, q := range b.Queries {
		FormatQuery(q, w)
	}
	t := b.Totals
	fmt.Fprintf(w, "\nBatch summary: %d queries (%d failed), %d found, %d persisted, %d downloaded, %d skipped, %d without document, %d failed\n",
		len(b.Queries), b.FailedQueries, t.Found, t.Persisted, t.Downloaded+t.AlreadyPresent,
		t.SkippedLong+t.SkippedLarge, t.NoDocument, t.Failed)
	if b.Group != "" {
		fmt.Fprintf(w, "Documents in: %s\n", b.Group)
	}
	if !b.Started.IsZero() && !b.Finished.IsZero() {
		fmt.Fprintf(w, "Elapsed: %s\n", b.Finished.Sub(b.Started).Round(time.Second))
	}
	if b.Err != nil {
		fmt.Fprintf(w, "Stopped early: %v\n", b.Err)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
