// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-collector/internal/testutil"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// newTestAcquirer wires an Acquirer whose client routes every host to ts.
func newTestAcquirer(t *testing.T, ts *httptest.Server, maxBytes int64) (*Acquirer, string) {
	t.Helper()
	dir := t.TempDir()
	client := testutil.RoutedClient(t, ts)
	cfg := testAcquisitionConfig()
	dl := NewDownloader(client, DownloadConfig{Dir: dir, MaxBytes: maxBytes, UserAgent: cfg.UserAgent, MaxRetries: 1}, nil)
	return NewAcquirer(NewResolver(client, cfg, nil), dl, NewInspector(nil), 30, nil), dir
}

func pdfSite(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	short := string(testutil.PDF(4, "Short Paper"))
	long := string(testutil.PDF(45, "Long Survey"))
	return newSiteServer(t, site{
		"arxiv.org/pdf/2407.00001v1":      short,
		"arxiv.org/pdf/2407.00002.pdf":    short,
		"arxiv.org/pdf/2407.00009v1":      long,
		"doi.org/10.1/short":              html(`<a href="/files/short-article.pdf">PDF</a>`),
		"doi.org/files/short-article.pdf": short,
		"pubmed.ncbi.nlm.nih.gov/5/":      html(`<a href="/similar">Similar</a>`),
	}, calls)
}

func TestAcquireDownloadsIntoGroup(t *testing.T) {
	a, dir := newTestAcquirer(t, pdfSite(t, nil), 0)
	c := types.Candidate{URL: "http://arxiv.org/abs/2407.00001v1", DocumentURL: "http://arxiv.org/pdf/2407.00001v1", Source: types.SourceArxiv}

	out := a.Acquire(context.Background(), c, "run-1")
	require.NoError(t, out.Err)
	assert.Equal(t, types.OutcomeDownloaded, out.Kind)
	assert.Equal(t, StrategyArxivDocument, out.Strategy)
	assert.Equal(t, filepath.Join(dir, "run-1"), filepath.Dir(out.FilePath))
	assert.FileExists(t, out.FilePath)
	require.NotNil(t, out.Metadata)
	assert.Equal(t, 4, out.Metadata.Pages)
	assert.Equal(t, "Short Paper", out.Metadata.Title)
}

func TestAcquireAlreadyPresent(t *testing.T) {
	var calls int32
	a, _ := newTestAcquirer(t, pdfSite(t, &calls), 0)
	c := types.Candidate{URL: "https://arxiv.org/abs/2407.00002", Source: types.SourceArxiv}

	first := a.Acquire(context.Background(), c, "")
	require.Equal(t, types.OutcomeDownloaded, first.Kind, "err = %v", first.Err)
	assert.True(t, strings.HasSuffix(first.FilePath, "2407.00002.pdf"))

	second := a.Acquire(context.Background(), c, "")
	assert.Equal(t, types.OutcomeAlreadyPresent, second.Kind)
	assert.Equal(t, first.FilePath, second.FilePath)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAcquireToFixedDestination(t *testing.T) {
	a, dir := newTestAcquirer(t, pdfSite(t, nil), 0)
	c := types.Candidate{URL: "http://arxiv.org/abs/2407.00001v1", DocumentURL: "http://arxiv.org/pdf/2407.00001v1"}
	dest := filepath.Join(dir, "old-run", "restored.pdf")

	out := a.AcquireTo(context.Background(), c, dest)
	require.NoError(t, out.Err)
	assert.Equal(t, types.OutcomeDownloaded, out.Kind)
	assert.Equal(t, dest, out.FilePath)
	assert.FileExists(t, dest)
}

func TestAcquireTooLongDeletesFile(t *testing.T) {
	a, dir := newTestAcquirer(t, pdfSite(t, nil), 0)
	c := types.Candidate{URL: "http://arxiv.org/abs/2407.00009v1", DocumentURL: "http://arxiv.org/pdf/2407.00009v1"}

	out := a.Acquire(context.Background(), c, "")
	assert.Equal(t, types.OutcomeTooLong, out.Kind)
	assert.Equal(t, 45, out.Pages)
	assert.Empty(t, out.FilePath)

	files, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAcquireTooLarge(t *testing.T) {
	a, dir := newTestAcquirer(t, pdfSite(t, nil), 64)
	c := types.Candidate{URL: "https://arxiv.org/abs/2407.00002"}

	out := a.Acquire(context.Background(), c, "")
	assert.Equal(t, types.OutcomeTooLarge, out.Kind)
	assert.True(t, out.Kind.IsPolicySkip())

	files, _ := filepath.Glob(filepath.Join(dir, "*"))
	assert.Empty(t, files)
}

func TestAcquireViaDOI(t *testing.T) {
	a, _ := newTestAcquirer(t, pdfSite(t, nil), 0)
	c := types.Candidate{URL: "https://pubmed.ncbi.nlm.nih.gov/4/", DocumentURL: "https://doi.org/10.1/short", Source: types.SourcePubMed}

	out := a.Acquire(context.Background(), c, "")
	require.Equal(t, types.OutcomeDownloaded, out.Kind, "err = %v", out.Err)
	assert.Equal(t, "https://doi.org/files/short-article.pdf", out.DocumentURL)
	assert.Equal(t, "short-article.pdf", filepath.Base(out.FilePath))
}

func TestAcquireFallsBackToReferenceURL(t *testing.T) {
	a, _ := newTestAcquirer(t, pdfSite(t, nil), 0)
	c := types.Candidate{URL: "https://arxiv.org/abs/2407.00002", DocumentURL: "https://doi.org/10.1/gone"}

	out := a.Acquire(context.Background(), c, "")
	require.Equal(t, types.OutcomeDownloaded, out.Kind, "err = %v", out.Err)
	assert.Equal(t, StrategyArxivAbstract, out.Strategy)
}

func TestAcquireNoDocument(t *testing.T) {
	a, _ := newTestAcquirer(t, pdfSite(t, nil), 0)
	c := types.Candidate{URL: "https://pubmed.ncbi.nlm.nih.gov/5/", Source: types.SourcePubMed}

	out := a.Acquire(context.Background(), c, "")
	assert.Equal(t, types.OutcomeNoDocument, out.Kind)
	assert.ErrorIs(t, out.Err, ErrNoDocument)
}

func TestAcquireDownloadFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	a, _ := newTestAcquirer(t, ts, 0)
	out := a.Acquire(context.Background(), types.Candidate{URL: "https://arxiv.org/abs/2407.00003"}, "")
	assert.Equal(t, types.OutcomeFailed, out.Kind)
	assert.Error(t, out.Err)
}

func TestReferences(t *testing.T) {
	assert.Equal(t, []string{"d", "u"}, References(types.Candidate{URL: "u", DocumentURL: "d"}))
	assert.Equal(t, []string{"u"}, References(types.Candidate{URL: "u"}))
	assert.Equal(t, []string{"u"}, References(types.Candidate{URL: "u", DocumentURL: "u"}))
	assert.Empty(t, References(types.Candidate{}))
}
