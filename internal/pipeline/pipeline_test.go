// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-collector/internal/acquire"
	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/internal/store"
	"github.com/pdiddy/paper-collector/internal/testutil"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// --- fakes ---

// fakeAdapter returns its candidates minus the excluded ones, honouring
// the desired count the way the real adapters do.
type fakeAdapter struct {
	src        types.Source
	candidates []types.Candidate
	err        error
	queries    []string
	onSearch   func()
}

func (f *fakeAdapter) Name() types.Source { return f.src }

func (f *fakeAdapter) Search(_ context.Context, query string, desired int, exclude map[string]bool) search.Result {
	f.queries = append(f.queries, query)
	if f.onSearch != nil {
		f.onSearch()
	}
	if f.err != nil {
		return search.Result{Source: f.src, Err: f.err}
	}
	var out []types.Candidate
	for _, c := range f.candidates {
		if len(out) >= desired {
			break
		}
		if !exclude[c.URL] {
			out = append(out, c)
		}
	}
	return search.Result{Source: f.src, Candidates: out, Fetched: len(f.candidates)}
}

// fakeAcquirer returns the outcome kind configured for a candidate URL,
// writing a file for successful kinds. Unlisted URLs download.
type fakeAcquirer struct {
	dir   string
	kinds map[string]types.OutcomeKind
	calls []string
	dests []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, c types.Candidate, group string) acquire.Outcome {
	f.calls = append(f.calls, c.URL)
	return f.outcome(c, filepath.Join(f.dir, group, fmt.Sprintf("doc-%d.pdf", len(f.calls))))
}

func (f *fakeAcquirer) AcquireTo(_ context.Context, c types.Candidate, dest string) acquire.Outcome {
	f.calls = append(f.calls, c.URL)
	f.dests = append(f.dests, dest)
	return f.outcome(c, dest)
}

func (f *fakeAcquirer) outcome(c types.Candidate, path string) acquire.Outcome {
	kind, ok := f.kinds[c.URL]
	if !ok {
		kind = types.OutcomeDownloaded
	}
	switch kind {
	case types.OutcomeDownloaded:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return acquire.Outcome{Kind: types.OutcomeFailed, Err: err}
		}
		if err := os.WriteFile(path, testutil.PDF(3, "Fake"), 0o644); err != nil {
			return acquire.Outcome{Kind: types.OutcomeFailed, Err: err}
		}
		return acquire.Outcome{Kind: kind, FilePath: path, Pages: 3, Metadata: &types.DocumentMetadata{Pages: 3}}
	case types.OutcomeTooLong:
		return acquire.Outcome{Kind: kind, Pages: 45, Err: &acquire.TooLongError{Pages: 45, MaxPages: 30}}
	case types.OutcomeTooLarge:
		return acquire.Outcome{Kind: kind, Err: acquire.ErrTooLarge}
	case types.OutcomeNoDocument:
		return acquire.Outcome{Kind: kind, Err: acquire.ErrNoDocument}
	default:
		return acquire.Outcome{Kind: types.OutcomeFailed, Err: errors.New("connection reset")}
	}
}

// --- helpers ---

func arxivCandidates(ids ...string) []types.Candidate {
	out := make([]types.Candidate, len(ids))
	for i, id := range ids {
		out[i] = types.Candidate{
			Title:       "Paper " + id,
			URL:         "http://arxiv.org/abs/" + id,
			DocumentURL: "http://arxiv.org/pdf/" + id + ".pdf",
			Source:      types.SourceArxiv,
		}
	}
	return out
}

func pubmedCandidates(ids ...string) []types.Candidate {
	out := make([]types.Candidate, len(ids))
	for i, id := range ids {
		out[i] = types.Candidate{
			Title:  "Record " + id,
			URL:    search.PubMedRecordURL(id),
			Source: types.SourcePubMed,
		}
	}
	return out
}

type fixture struct {
	p      *Pipeline
	store  *store.Store
	arxiv  *fakeAdapter
	pubmed *fakeAdapter
	acq    *fakeAcquirer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.TestStore(t),
		arxiv:  &fakeAdapter{src: types.SourceArxiv},
		pubmed: &fakeAdapter{src: types.SourcePubMed},
		acq:    &fakeAcquirer{dir: t.TempDir(), kinds: map[string]types.OutcomeKind{}},
	}
	f.p = New(f.store, []search.Adapter{f.arxiv, f.pubmed}, f.acq, types.AcquisitionConfig{}, nil)
	return f
}

// --- Search ---

func TestSearchPersistsNewCandidates(t *testing.T) {
	f := newFixture(t)
	f.arxiv.candidates = arxivCandidates("1", "2", "3")
	ctx := context.Background()

	papers, sum, err := f.p.Search(ctx, SearchRequest{Query: "graphs", DesiredCount: 2, Source: search.SelectArxiv})
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.NotZero(t, papers[0].ID)
	assert.Equal(t, 2, sum.Found)
	assert.Equal(t, 2, sum.Persisted)
	assert.Empty(t, f.pubmed.queries)

	// The known set excludes the stored papers on the next run.
	papers, sum, err = f.p.Search(ctx, SearchRequest{Query: "graphs", DesiredCount: 2, Source: search.SelectArxiv})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "http://arxiv.org/abs/3", papers[0].URL)
	assert.Equal(t, 1, sum.Persisted)

	papers, sum, err = f.p.Search(ctx, SearchRequest{Query: "graphs", DesiredCount: 2, Source: search.SelectArxiv})
	require.NoError(t, err)
	assert.Empty(t, papers)
	assert.Zero(t, sum.Found)
}

func TestSearchAllSourcesAndFailure(t *testing.T) {
	f := newFixture(t)
	f.arxiv.err = errors.New("arxiv unavailable")
	f.pubmed.candidates = pubmedCandidates("100", "200")

	papers, sum, err := f.p.Search(context.Background(), SearchRequest{Query: "genomics", DesiredCount: 5, Source: search.SelectAll})
	require.NoError(t, err)
	assert.Len(t, papers, 2)
	assert.Equal(t, []string{"genomics"}, f.arxiv.queries)
	assert.Equal(t, []string{"genomics"}, f.pubmed.queries)
	assert.Equal(t, []types.Source{types.SourceArxiv}, sum.FailedSources)
	assert.True(t, sum.HasFailures())
}

func TestSearchDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	f.arxiv.candidates = arxivCandidates("1")

	papers, sum, err := f.p.Search(context.Background(), SearchRequest{Query: "  trees "})
	require.NoError(t, err)
	assert.Len(t, papers, 1)
	assert.Equal(t, search.SelectArxiv, sum.Source)
	assert.Equal(t, "trees", sum.Query)

	_, _, err = f.p.Search(context.Background(), SearchRequest{Query: ""})
	assert.Error(t, err)

	_, _, err = f.p.Search(context.Background(), SearchRequest{Query: "x", Source: "scholar"})
	assert.Error(t, err)

	_, _, err = f.p.Search(context.Background(), SearchRequest{Query: "x", DesiredCount: 500})
	assert.Error(t, err)
}

// --- Download ---

func TestDownloadStoredPaper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	added, err := f.store.Add(ctx, arxivCandidates("7"))
	require.NoError(t, err)

	out := f.p.Download(ctx, DownloadRequest{URL: "http://arxiv.org/abs/7", Group: "20260301_0900"})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, types.OutcomeDownloaded, out.Kind)
	assert.Equal(t, "20260301_0900", filepath.Base(filepath.Dir(out.FilePath)))

	p, err := f.store.Get(ctx, added[0].ID)
	require.NoError(t, err)
	assert.Equal(t, out.FilePath, p.FilePath)

	again := f.p.Download(ctx, DownloadRequest{URL: "http://arxiv.org/abs/7"})
	assert.True(t, again.Success)
	assert.Equal(t, types.OutcomeAlreadyPresent, again.Kind)
	assert.Equal(t, out.FilePath, again.FilePath)
	assert.Len(t, f.acq.calls, 1)
}

func TestDownloadRestoresMissingFileAtRecordedPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	added, err := f.store.Add(ctx, arxivCandidates("8"))
	require.NoError(t, err)
	recorded := filepath.Join(t.TempDir(), "old", "gone.pdf")
	require.NoError(t, f.store.UpdateFilePath(ctx, added[0].ID, recorded))

	out := f.p.Download(ctx, DownloadRequest{URL: "http://arxiv.org/abs/8", Group: "g2"})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, types.OutcomeDownloaded, out.Kind)
	assert.Equal(t, recorded, out.FilePath)
	assert.FileExists(t, recorded)
	assert.Equal(t, []string{recorded}, f.acq.dests)
	assert.NoDirExists(t, filepath.Join(f.acq.dir, "g2"))

	p, err := f.store.Get(ctx, added[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recorded, p.FilePath)
}

func TestDownloadUnknownURL(t *testing.T) {
	f := newFixture(t)
	out := f.p.Download(context.Background(), DownloadRequest{URL: "https://example.org/paper.pdf"})
	assert.True(t, out.Success)
	assert.Equal(t, []string{"https://example.org/paper.pdf"}, f.acq.calls)

	known, err := f.store.KnownURLs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestDownloadPolicySkipIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	added, err := f.store.Add(ctx, arxivCandidates("9"))
	require.NoError(t, err)
	f.acq.kinds["http://arxiv.org/abs/9"] = types.OutcomeTooLong

	out := f.p.Download(ctx, DownloadRequest{URL: "http://arxiv.org/abs/9"})
	assert.False(t, out.Success)
	assert.Equal(t, types.OutcomeTooLong, out.Kind)
	assert.Equal(t, 45, out.Pages)
	assert.Contains(t, out.Error, "45 pages")

	p, err := f.store.Get(ctx, added[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "too-long: 45 pages", p.SkipReason)
	assert.Empty(t, p.FilePath)
}

func TestDownloadRequiresURL(t *testing.T) {
	f := newFixture(t)
	out := f.p.Download(context.Background(), DownloadRequest{URL: " "})
	assert.False(t, out.Success)
	assert.Equal(t, types.OutcomeFailed, out.Kind)
	assert.Empty(t, f.acq.calls)
}

// --- RunQuery / RunBatch ---

func TestRunQueryCountsOutcomes(t *testing.T) {
	f := newFixture(t)
	f.arxiv.candidates = arxivCandidates("1", "2", "3", "4", "5")
	f.acq.kinds = map[string]types.OutcomeKind{
		"http://arxiv.org/abs/2": types.OutcomeTooLong,
		"http://arxiv.org/abs/3": types.OutcomeTooLarge,
		"http://arxiv.org/abs/4": types.OutcomeNoDocument,
		"http://arxiv.org/abs/5": types.OutcomeFailed,
	}

	sum := f.p.RunQuery(context.Background(), search.PlanEntry{Query: "q", MaxResults: 5, Source: search.SelectArxiv}, "run")
	require.NoError(t, sum.Err)
	assert.Equal(t, Counts{
		Found:        5,
		Persisted:    5,
		Downloaded:   1,
		SkippedLong:  1,
		SkippedLarge: 1,
		NoDocument:   1,
		Failed:       1,
	}, sum.Counts)
	assert.Len(t, f.acq.calls, 5)

	pending, err := f.store.Pending(context.Background(), false, 0)
	require.NoError(t, err)
	var urls []string
	for _, p := range pending {
		urls = append(urls, p.URL)
	}
	assert.Equal(t, []string{"http://arxiv.org/abs/4", "http://arxiv.org/abs/5"}, urls)
}

func TestRunQuerySkipsPapersWithoutDocumentURL(t *testing.T) {
	f := newFixture(t)
	withDOI := pubmedCandidates("111", "222")
	withDOI[1].DOI = "10.1000/xyz"
	withDOI[1].DocumentURL = "https://doi.org/10.1000/xyz"
	f.pubmed.candidates = withDOI

	sum := f.p.RunQuery(context.Background(), search.PlanEntry{Query: "q", MaxResults: 5, Source: search.SelectPubMed}, "run")
	require.NoError(t, sum.Err)
	assert.Equal(t, 2, sum.Persisted)
	assert.Equal(t, 1, sum.Downloaded)
	assert.Zero(t, sum.NoDocument)
	assert.Equal(t, []string{search.PubMedRecordURL("222")}, f.acq.calls)

	pending, err := f.store.Pending(context.Background(), false, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, search.PubMedRecordURL("111"), pending[0].URL)
}

func TestRunBatchContinuesAfterFailures(t *testing.T) {
	f := newFixture(t)
	f.arxiv.candidates = arxivCandidates("1", "2")
	f.pubmed.err = errors.New("esearch: HTTP 500")

	entries := []search.PlanEntry{
		{Query: "first", MaxResults: 1, Source: search.SelectArxiv},
		{Query: "broken", MaxResults: 3, Source: search.SelectPubMed},
		{Query: "third", MaxResults: 1, Source: search.SelectArxiv},
	}
	batch := f.p.RunBatch(context.Background(), entries, "run")
	require.NoError(t, batch.Err)
	require.Len(t, batch.Queries, 3)
	assert.Equal(t, 1, batch.FailedQueries)
	assert.Equal(t, 2, batch.Totals.Persisted)
	assert.Equal(t, 2, batch.Totals.Downloaded)
	assert.Equal(t, []string{"first", "third"}, f.arxiv.queries)

	var buf bytes.Buffer
	FormatBatch(batch, &buf)
	assert.Contains(t, buf.String(), "Batch summary: 3 queries (1 failed), 2 found, 2 persisted, 2 downloaded")
	assert.Contains(t, buf.String(), "source errors: [pubmed]")
}

func TestRunBatchStopsOnCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.arxiv.candidates = arxivCandidates("1")
	f.arxiv.onSearch = cancel

	entries := []search.PlanEntry{
		{Query: "first", MaxResults: 1, Source: search.SelectArxiv},
		{Query: "second", MaxResults: 1, Source: search.SelectArxiv},
	}
	batch := f.p.RunBatch(ctx, entries, "")
	assert.ErrorIs(t, batch.Err, context.Canceled)
	assert.Len(t, batch.Queries, 1)
	assert.Equal(t, []string{"first"}, f.arxiv.queries)
}

func TestDownloadPendingRetrySkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	added, err := f.store.Add(ctx, arxivCandidates("1", "2"))
	require.NoError(t, err)
	require.NoError(t, f.store.MarkSkipped(ctx, added[1].ID, "too-long: 40 pages"))

	sum, err := f.p.DownloadPending(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Found)
	assert.Equal(t, 1, sum.Downloaded)
	assert.Equal(t, []string{"http://arxiv.org/abs/1"}, f.acq.calls)

	retry := New(f.store, nil, f.acq, types.AcquisitionConfig{RetrySkipped: true}, nil)
	sum, err = retry.DownloadPending(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Found)
	assert.Equal(t, 1, sum.Downloaded)

	p, err := f.store.Get(ctx, added[1].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, p.FilePath)
	assert.Empty(t, p.SkipReason)
}

// --- end to end with the real acquirer ---

func TestRunQueryWithRealAcquirer(t *testing.T) {
	short := testutil.PDF(2, "Short")
	long := testutil.PDF(31, "Long")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Host + r.URL.Path {
		case "arxiv.org/pdf/1.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(short)
		case "arxiv.org/pdf/2.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(long)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)

	client := testutil.RoutedClient(t, ts)
	cfg := types.DefaultConfig().Acquisition
	cfg.PapersDir = t.TempDir()
	cfg.MaxRetries = 1
	cfg.DownloadDelay = 0
	cfg.QueryDelay = 0
	dl := acquire.NewDownloader(client, acquire.DownloadConfig{Dir: cfg.PapersDir, UserAgent: cfg.UserAgent, MaxRetries: 1}, nil)
	acq := acquire.NewAcquirer(acquire.NewResolver(client, cfg, nil), dl, acquire.NewInspector(nil), cfg.MaxPages, nil)

	st := testutil.TestStore(t)
	adapter := &fakeAdapter{src: types.SourceArxiv, candidates: arxivCandidates("1", "2")}
	p := New(st, []search.Adapter{adapter}, acq, cfg, nil)

	sum := p.RunQuery(context.Background(), search.PlanEntry{Query: "q", MaxResults: 2, Source: search.SelectArxiv}, "batch")
	assert.Equal(t, 1, sum.Downloaded)
	assert.Equal(t, 1, sum.SkippedLong)

	entries, err := os.ReadDir(filepath.Join(cfg.PapersDir, "batch"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1.pdf", entries[0].Name())

	stored, err := st.GetByURL(context.Background(), "http://arxiv.org/abs/2")
	require.NoError(t, err)
	assert.Equal(t, "too-long: 31 pages", stored.SkipReason)
}
