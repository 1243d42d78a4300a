// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/atom"

	"github.com/pdiddy/paper-collector/internal/httputil"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivAdapter queries the arXiv Atom API.
type ArxivAdapter struct {
	Client     *http.Client
	UserAgent  string
	MaxRetries int
	Logger     *slog.Logger
}

// NewArxivAdapter builds an adapter from the search configuration.
func NewArxivAdapter(client *http.Client, cfg types.SearchConfig, logger *slog.Logger) *ArxivAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArxivAdapter{
		Client:     client,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger.With("source", types.SourceArxiv),
	}
}

// Name returns the source identifier.
func (a *ArxivAdapter) Name() types.Source { return types.SourceArxiv }

// Search requests desired×3 of the newest matching entries and returns up
// to desired candidates whose URL is not in exclude.
func (a *ArxivAdapter) Search(ctx context.Context, query string, desired int, exclude map[string]bool) Result {
	if desired <= 0 {
		return Result{Source: types.SourceArxiv}
	}
	q := buildArxivQuery(query)
	if q == "" {
		return failed(types.SourceArxiv, "empty arXiv query")
	}

	params := url.Values{}
	params.Set("search_query", q)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(desired*overFetchFactor))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	resp, err := httputil.Get(ctx, a.Client, arxivAPIBase+"?"+params.Encode(), a.UserAgent, "application/atom+xml", a.MaxRetries)
	if err != nil {
		a.Logger.Warn("arXiv request failed", "query", query, "error", err)
		return failed(types.SourceArxiv, "arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	feed, err := (&atom.Parser{}).Parse(resp.Body)
	if err != nil {
		a.Logger.Warn("arXiv feed unreadable", "query", query, "error", err)
		return failed(types.SourceArxiv, "parsing arXiv response: %w", err)
	}

	all := make([]types.Candidate, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if c, ok := arxivCandidate(entry); ok {
			all = append(all, c)
		}
	}

	res := Result{
		Source:     types.SourceArxiv,
		Candidates: collectNew(all, desired, exclude),
		Fetched:    len(feed.Entries),
	}
	a.Logger.Debug("arXiv search", "query", query, "fetched", res.Fetched, "new", len(res.Candidates))
	return res
}

// arxivCandidate maps one Atom entry onto a Candidate.
func arxivCandidate(entry *atom.Entry) (types.Candidate, bool) {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = arxivLink(entry, "alternate")
	}
	if id == "" {
		return types.Candidate{}, false
	}

	c := types.Candidate{
		Title:       normalizeSpace(entry.Title),
		Abstract:    strings.TrimSpace(entry.Summary),
		URL:         id,
		DocumentURL: arxivDocumentLink(entry),
		Keywords:    []string{},
		Source:      types.SourceArxiv,
	}
	if c.DocumentURL == "" {
		c.DocumentURL = ArxivDocumentURL(id)
	}
	for _, p := range entry.Authors {
		if p == nil {
			continue
		}
		if name := normalizeSpace(p.Name); name != "" {
			c.Authors = append(c.Authors, name)
		}
	}
	if entry.PublishedParsed != nil {
		c.PublishedDate = entry.PublishedParsed.UTC().Format("2006-01-02")
	}
	return c, true
}

// arxivDocumentLink returns the entry's related link titled "pdf", if the
// feed lists one.
func arxivDocumentLink(entry *atom.Entry) string {
	for _, l := range entry.Links {
		if l != nil && l.Rel == "related" && strings.EqualFold(l.Title, "pdf") {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

// arxivLink returns the href of the first link with the given rel.
func arxivLink(entry *atom.Entry, rel string) string {
	for _, l := range entry.Links {
		if l != nil && l.Rel == rel {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

// ArxivDocumentURL converts an arXiv abstract URL into its PDF form
// (https://arxiv.org/abs/1234.5678 → https://arxiv.org/pdf/1234.5678.pdf).
// URLs that are not in abstract form are returned unchanged.
func ArxivDocumentURL(absURL string) string {
	idx := strings.Index(absURL, "/abs/")
	if idx < 0 {
		return absURL
	}
	doc := absURL[:idx] + "/pdf/" + absURL[idx+len("/abs/"):]
	if !strings.HasSuffix(strings.ToLower(doc), ".pdf") {
		doc += ".pdf"
	}
	return doc
}

// buildArxivQuery turns free text into an arXiv search_query expression.
// Text that already uses field prefixes (e.g. "ti:transformer") passes
// through unchanged.
func buildArxivQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	if strings.Contains(query, ":") {
		return query
	}
	terms := strings.Fields(query)
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = "all:" + t
	}
	return strings.Join(parts, " AND ")
}

