// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline composes the source adapters, the paper store and the
// document acquirer into search, download and batch collection runs.
// Failures of one candidate or one query never abort the rest of a batch;
// they are counted in the summaries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/paper-collector/internal/acquire"
	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/internal/store"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// ErrInvalidRequest wraps validation failures of a SearchRequest.
var ErrInvalidRequest = errors.New("invalid search request")

// Store is the subset of the paper store the pipeline uses.
type Store interface {
	KnownURLs(ctx context.Context) (map[string]bool, error)
	Add(ctx context.Context, candidates []types.Candidate) ([]types.Paper, error)
	GetByURL(ctx context.Context, url string) (types.Paper, error)
	UpdateFilePath(ctx context.Context, id int64, path string) error
	MarkSkipped(ctx context.Context, id int64, reason string) error
	Pending(ctx context.Context, includeSkipped bool, limit int) ([]types.Paper, error)
}

// Acquirer fetches and validates the document of one candidate, either
// into a group folder or to a fixed path.
type Acquirer interface {
	Acquire(ctx context.Context, c types.Candidate, group string) acquire.Outcome
	AcquireTo(ctx context.Context, c types.Candidate, dest string) acquire.Outcome
}

// SearchRequest selects a query, a desired number of new papers per
// source, and the sources to ask.
type SearchRequest struct {
	Query        string          `json:"query"`
	DesiredCount int             `json:"max_results"`
	Source       search.Selector `json:"source"`
}

// Validate checks the request after defaults are applied.
func (r SearchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.DesiredCount, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&r.Source, validation.Required, validation.In(search.SelectArxiv, search.SelectPubMed, search.SelectAll)),
	)
}

func (r *SearchRequest) applyDefaults() {
	r.Query = strings.TrimSpace(r.Query)
	if r.DesiredCount == 0 {
		r.DesiredCount = 10
	}
	if r.Source == "" {
		r.Source = search.SelectArxiv
	}
	r.Source = search.Selector(strings.ToLower(string(r.Source)))
}

// DownloadRequest names a paper by canonical URL (or any reference URL
// when the paper is not stored) and an optional group folder.
type DownloadRequest struct {
	URL   string `json:"paper_url"`
	Group string `json:"time_folder,omitempty"`
}

// DownloadOutcome is the result of a Download call.
type DownloadOutcome struct {
	Success  bool                    `json:"success"`
	Kind     types.OutcomeKind       `json:"kind"`
	FilePath string                  `json:"file_path,omitempty"`
	Metadata *types.DocumentMetadata `json:"metadata,omitempty"`
	Pages    int                     `json:"pages,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Pipeline orchestrates searches and document acquisition.
type Pipeline struct {
	store    Store
	adapters map[types.Source]search.Adapter
	acquirer Acquirer
	cfg      types.AcquisitionConfig
	logger   *slog.Logger

	flight singleflight.Group

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Pipeline. Adapters are keyed by the source they report.
func New(st Store, adapters []search.Adapter, acq Acquirer, cfg types.AcquisitionConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[types.Source]search.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Pipeline{
		store:    st,
		adapters: byName,
		acquirer: acq,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Search asks the selected sources for papers not yet stored, persists
// them, and returns the newly persisted papers. Adapter failures are
// recorded in the summary; the error is reserved for invalid requests and
// store failures.
func (p *Pipeline) Search(ctx context.Context, req SearchRequest) ([]types.Paper, QuerySummary, error) {
	req.applyDefaults()
	sum := QuerySummary{Query: req.Query, Source: req.Source}
	if err := req.Validate(); err != nil {
		return nil, sum, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	known, err := p.store.KnownURLs(ctx)
	if err != nil {
		return nil, sum, fmt.Errorf("loading known urls: %w", err)
	}
	p.logger.Debug("searching", "query", req.Query, "source", req.Source, "known", len(known))

	var candidates []types.Candidate
	for i, src := range req.Source.Sources() {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.QueryDelay); err != nil {
				return nil, sum, err
			}
		}
		adapter, ok := p.adapters[src]
		if !ok {
			sum.FailedSources = append(sum.FailedSources, src)
			p.logger.Warn("no adapter configured", "source", src)
			continue
		}

		res := adapter.Search(ctx, req.Query, req.DesiredCount, known)
		switch res.Status() {
		case search.StatusFailed:
			sum.FailedSources = append(sum.FailedSources, src)
			p.logger.Warn("source search failed", "source", src, "query", req.Query, "error", res.Err)
		case search.StatusEmpty:
			p.logger.Info("no new papers", "source", src, "query", req.Query, "fetched", res.Fetched)
		default:
			p.logger.Info("new papers found", "source", src, "query", req.Query, "count", len(res.Candidates), "fetched", res.Fetched)
		}
		for _, c := range res.Candidates {
			known[c.URL] = true
		}
		sum.Found += len(res.Candidates)
		candidates = append(candidates, res.Candidates...)
	}

	if len(candidates) == 0 {
		return nil, sum, nil
	}
	added, err := p.store.Add(ctx, candidates)
	if err != nil {
		return nil, sum, fmt.Errorf("persisting candidates: %w", err)
	}
	sum.Persisted = len(added)
	return added, sum, nil
}

// Download acquires the document of the paper stored under req.URL, or of
// req.URL itself when no such paper exists, and records the file path on
// success. Concurrent calls for the same URL and group share one run.
func (p *Pipeline) Download(ctx context.Context, req DownloadRequest) DownloadOutcome {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return DownloadOutcome{Kind: types.OutcomeFailed, Error: "paper url is required"}
	}

	key := req.URL + "\x00" + req.Group
	v, _, _ := p.flight.Do(key, func() (any, error) {
		paper, err := p.store.GetByURL(ctx, req.URL)
		switch {
		case errors.Is(err, store.ErrNotFound):
			paper = types.Paper{Candidate: types.Candidate{URL: req.URL}}
		case err != nil:
			return DownloadOutcome{Kind: types.OutcomeFailed, Error: err.Error()}, nil
		}
		return p.downloadPaper(ctx, paper, req.Group), nil
	})
	return v.(DownloadOutcome)
}

// downloadPaper acquires one paper's document and updates the store.
// Papers with ID 0 are not stored and only the file is produced.
func (p *Pipeline) downloadPaper(ctx context.Context, paper types.Paper, group string) DownloadOutcome {
	log := p.logger.With("url", paper.URL)

	var out acquire.Outcome
	if paper.HasDocument() {
		if _, err := os.Stat(paper.FilePath); err == nil {
			return DownloadOutcome{Success: true, Kind: types.OutcomeAlreadyPresent, FilePath: paper.FilePath}
		}
		// The recorded path is kept; the document is restored there.
		log.Warn("recorded document missing, downloading again", "path", paper.FilePath)
		out = p.acquirer.AcquireTo(ctx, paper.Candidate, paper.FilePath)
	} else {
		out = p.acquirer.Acquire(ctx, paper.Candidate, group)
	}
	result := DownloadOutcome{
		Success:  out.Kind.IsSuccess(),
		Kind:     out.Kind,
		FilePath: out.FilePath,
		Metadata: out.Metadata,
		Pages:    out.Pages,
	}
	if out.Err != nil {
		result.Error = out.Err.Error()
	}

	switch {
	case out.Kind.IsSuccess():
		log.Info("document acquired", "kind", out.Kind, "path", out.FilePath, "strategy", out.Strategy)
		if paper.ID != 0 {
			if err := p.store.UpdateFilePath(ctx, paper.ID, out.FilePath); err != nil {
				log.Error("recording file path", "error", err)
				result.Success = false
				result.Kind = types.OutcomeFailed
				result.Error = err.Error()
			}
		}
	case out.Kind.IsPolicySkip():
		log.Info("document skipped", "kind", out.Kind, "pages", out.Pages, "reason", result.Error)
		if paper.ID != 0 {
			if err := p.store.MarkSkipped(ctx, paper.ID, skipReason(out)); err != nil {
				log.Error("recording skip", "error", err)
			}
		}
	case out.Kind == types.OutcomeNoDocument:
		log.Info("no document available", "strategy", out.Strategy)
	default:
		log.Warn("document acquisition failed", "error", out.Err)
	}
	return result
}

// skipReason renders a policy skip for the store.
func skipReason(out acquire.Outcome) string {
	if out.Kind == types.OutcomeTooLong && out.Pages > 0 {
		return fmt.Sprintf("%s: %d pages", out.Kind, out.Pages)
	}
	return string(out.Kind)
}

// RunQuery searches for one plan entry, then downloads the document of
// every newly persisted paper that carries a document URL. Papers without
// one stay pending for DownloadPending.
func (p *Pipeline) RunQuery(ctx context.Context, entry search.PlanEntry, group string) QuerySummary {
	papers, sum, err := p.Search(ctx, SearchRequest{
		Query:        entry.Query,
		DesiredCount: entry.MaxResults,
		Source:       entry.Source,
	})
	if err != nil {
		sum.Err = err
		p.logger.Error("query failed", "query", entry.Query, "error", err)
		return sum
	}

	first := true
	for _, paper := range papers {
		if paper.DocumentURL == "" {
			continue
		}
		if !first {
			if err := p.sleep(ctx, p.cfg.DownloadDelay); err != nil {
				sum.Err = err
				return sum
			}
		}
		first = false
		sum.record(p.downloadPaper(ctx, paper, group).Kind)
	}
	return sum
}

// RunBatch runs every entry in order with the query delay between them.
// A failing query is counted and the batch continues; cancellation stops
// the batch between steps.
func (p *Pipeline) RunBatch(ctx context.Context, entries []search.PlanEntry, group string) BatchSummary {
	batch := BatchSummary{Group: group, Started: time.Now()}
	for i, entry := range entries {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.QueryDelay); err != nil {
				batch.Err = err
				break
			}
		}
		p.logger.Info("running query", "n", i+1, "of", len(entries), "query", entry.Query, "source", entry.Source)
		batch.add(p.RunQuery(ctx, entry, group))
		if ctx.Err() != nil {
			batch.Err = ctx.Err()
			break
		}
	}
	batch.Finished = time.Now()
	return batch
}

// DownloadPending acquires documents for stored papers that have none,
// oldest first. Papers skipped by a policy are retried only when the
// acquisition config sets RetrySkipped.
func (p *Pipeline) DownloadPending(ctx context.Context, group string, limit int) (QuerySummary, error) {
	sum := QuerySummary{Query: "pending"}
	papers, err := p.store.Pending(ctx, p.cfg.RetrySkipped, limit)
	if err != nil {
		return sum, fmt.Errorf("listing pending papers: %w", err)
	}
	sum.Found = len(papers)
	for i, paper := range papers {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.DownloadDelay); err != nil {
				sum.Err = err
				return sum, nil
			}
		}
		sum.record(p.downloadPaper(ctx, paper, group).Kind)
	}
	return sum, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
