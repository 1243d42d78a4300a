// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package testutil provides shared test helpers: minimal PDF documents,
// an HTTP client that routes every host to a test server, and a
// temporary paper store.
package testutil

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/paper-collector/internal/store"
)

// PDF returns a minimal, well-formed PDF with the given number of empty
// pages. A non-empty title is written to the document info dictionary.
func PDF(pages int, title string) []byte {
	var objs []string

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}
	infoID := len(objs) + 1
	info := "<< /Producer (paper-collector tests) >>"
	if title != "" {
		info = fmt.Sprintf("<< /Title (%s) /Author (Test Author) /Producer (paper-collector tests) >>", title)
	}
	objs = append(objs, info)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, infoID, xref)
	return buf.Bytes()
}

// WritePDF writes PDF(pages, title) to path, creating parent directories.
func WritePDF(t *testing.T, path string, pages int, title string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, PDF(pages, title), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// rewriteTransport sends every request to a single test server while
// keeping the original URL on the response, so redirects and relative
// links resolve against the host the caller asked for.
type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = req.URL.Host
	resp, err := rt.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// RoutedClient returns a client that routes requests for any host to ts.
// The test server sees the original host in r.Host.
func RoutedClient(t *testing.T, ts *httptest.Server) *http.Client {
	t.Helper()
	target, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Transport: rewriteTransport{target: target, base: ts.Client().Transport}}
}

// TestStore opens a temporary paper store that is closed on cleanup.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "papers.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
