// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paper-collector/internal/httputil"
	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// maxLandingBytes bounds how much of a landing page is parsed.
const maxLandingBytes = 8 << 20

const doiBase = "https://doi.org/"

// ErrNoDocument reports that no document URL could be derived for a reference.
var ErrNoDocument = errors.New("no document URL found")

// Strategy names the resolution rule chosen for a reference URL.
type Strategy string

const (
	StrategyArxivAbstract Strategy = "arxiv-abstract"
	StrategyArxivDocument Strategy = "arxiv-document"
	StrategyDOI           Strategy = "doi-landing"
	StrategyPubMed        Strategy = "pubmed-landing"
	StrategyLanding       Strategy = "landing"
)

// Resolution is the outcome of resolving one reference URL.
type Resolution struct {
	ReferenceURL string
	DocumentURL  string
	Strategy     Strategy

	// Matcher names the landing-page rule that produced DocumentURL, or
	// "direct" when the landing URL already served a PDF.
	Matcher string

	// Err records why no document URL was found. Network failures land
	// here; they are never returned to the caller as errors.
	Err error
}

// Found reports whether a document URL was derived.
func (r Resolution) Found() bool { return r.DocumentURL != "" }

// Matcher extracts a document link from a landing page. Find returns the
// absolute URL of the first matching anchor whose href resolves against
// base, or "" when none does.
type Matcher struct {
	Name string
	Find func(doc *goquery.Document, base *url.URL) string
}

// resolveHref resolves a raw href against base. Empty or unparsable hrefs
// yield "".
func resolveHref(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	abs, err := base.Parse(raw)
	if err != nil {
		return ""
	}
	return abs.String()
}

// selectorMatcher matches the first anchor, in selector order, whose href
// resolves.
func selectorMatcher(name string, selectors ...string) Matcher {
	return Matcher{
		Name: name,
		Find: func(doc *goquery.Document, base *url.URL) string {
			for _, sel := range selectors {
				var link string
				doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
					link = resolveHref(base, s.AttrOr("href", ""))
					return link == ""
				})
				if link != "" {
					return link
				}
			}
			return ""
		},
	}
}

// genericMatcher scans every link for an href containing "pdf" together
// with "download" or ".pdf", case-insensitively.
var genericMatcher = Matcher{
	Name: "generic",
	Find: func(doc *goquery.Document, base *url.URL) string {
		var link string
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			raw := s.AttrOr("href", "")
			h := strings.ToLower(raw)
			if strings.Contains(h, "pdf") && (strings.Contains(h, "download") || strings.Contains(h, ".pdf")) {
				link = resolveHref(base, raw)
			}
			return link == ""
		})
		return link
	},
}

// DefaultMatchers is the landing-page rule chain, most specific first.
// Rules are evaluated in order and the first match wins.
var DefaultMatchers = []Matcher{
	selectorMatcher("pdf-download",
		`a[href*="pdf"][href*="download"]`,
		`a[class*="download"][href*="pdf"]`,
		`a[class*="pdf"][href*="download"]`,
		`a[data-download-files-key="pdf"]`,
	),
	selectorMatcher("pdf-suffix",
		`a[href*="pdf"][href*=".pdf"]`,
	),
	selectorMatcher("pdf-affordance",
		`a[title*="PDF"]`,
		`a[aria-label*="PDF"]`,
		`a[aria-label*="Download PDF"]`,
		`a.btn[href*="pdf"]`,
	),
	genericMatcher,
}

// MatchLanding evaluates matchers in order against doc and returns the
// first match resolved against base, together with the matcher name.
func MatchLanding(doc *goquery.Document, base *url.URL, matchers []Matcher) (string, string) {
	for _, m := range matchers {
		if link := m.Find(doc, base); link != "" {
			return link, m.Name
		}
	}
	return "", ""
}

// Resolver turns paper reference URLs into document URLs. It performs
// only GET requests and writes nothing.
type Resolver struct {
	Client     *http.Client
	UserAgent  string
	MaxRetries int
	Matchers   []Matcher
	Logger     *slog.Logger
}

// NewResolver builds a Resolver using DefaultMatchers.
func NewResolver(client *http.Client, cfg types.AcquisitionConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Client:     client,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Matchers:   DefaultMatchers,
		Logger:     logger,
	}
}

// Resolve selects a strategy from the shape of ref and derives a document URL.
func (r *Resolver) Resolve(ctx context.Context, ref string) Resolution {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Resolution{ReferenceURL: ref, Strategy: StrategyLanding, Err: fmt.Errorf("invalid reference URL %q", ref)}
	}

	var res Resolution
	host := strings.ToLower(u.Hostname())
	switch {
	case isArxivHost(host) && strings.HasPrefix(u.Path, "/abs/"):
		res = Resolution{DocumentURL: search.ArxivDocumentURL(ref), Strategy: StrategyArxivAbstract}
	case isArxivHost(host) && strings.HasPrefix(u.Path, "/pdf/"):
		res = Resolution{DocumentURL: ref, Strategy: StrategyArxivDocument}
	case isDOIHost(host):
		res = r.resolveLanding(ctx, ref, r.matchers(), StrategyDOI)
	case isPubMedHost(host):
		res = r.resolvePubMed(ctx, ref)
	default:
		res = r.resolveLanding(ctx, ref, []Matcher{genericMatcher}, StrategyLanding)
	}
	res.ReferenceURL = ref

	if res.Found() {
		r.Logger.Debug("resolved document", "reference", ref, "document", res.DocumentURL, "strategy", res.Strategy, "matcher", res.Matcher)
	} else {
		r.Logger.Info("no document URL", "reference", ref, "strategy", res.Strategy, "error", res.Err)
	}
	return res
}

func (r *Resolver) matchers() []Matcher {
	if len(r.Matchers) == 0 {
		return DefaultMatchers
	}
	return r.Matchers
}

// resolveLanding fetches a landing page and applies matchers. A landing
// URL that already serves a PDF resolves to its final URL.
func (r *Resolver) resolveLanding(ctx context.Context, landing string, matchers []Matcher, strategy Strategy) Resolution {
	res := Resolution{Strategy: strategy}

	doc, final, direct, err := r.fetchLanding(ctx, landing)
	if err != nil {
		res.Err = err
		return res
	}
	if direct {
		res.DocumentURL, res.Matcher = final.String(), "direct"
		return res
	}

	res.DocumentURL, res.Matcher = MatchLanding(doc, final, matchers)
	if !res.Found() {
		res.Err = fmt.Errorf("%w on %s", ErrNoDocument, final)
	}
	return res
}

// resolvePubMed finds the record's DOI link and resolves it as a DOI.
func (r *Resolver) resolvePubMed(ctx context.Context, ref string) Resolution {
	doc, _, _, err := r.fetchLanding(ctx, ref)
	if err != nil {
		return Resolution{Strategy: StrategyPubMed, Err: err}
	}

	doi := PubMedPageDOI(doc)
	if doi == "" {
		return Resolution{Strategy: StrategyPubMed, Err: fmt.Errorf("%w: no DOI link on %s", ErrNoDocument, ref)}
	}

	res := r.resolveLanding(ctx, doiBase+doi, r.matchers(), StrategyDOI)
	res.Strategy = StrategyPubMed
	return res
}

// PubMedPageDOI extracts the record DOI from a PubMed landing page. The
// citation's DOI identifier link is preferred; otherwise the first
// doi.org link on the page is used.
func PubMedPageDOI(doc *goquery.Document) string {
	for _, sel := range []string{`a[data-ga-action="DOI"][href*="doi.org"]`, `a[href*="doi.org"]`} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok {
			if doi := doiFromURL(href); doi != "" {
				return doi
			}
		}
	}
	return ""
}

// doiFromURL returns the part of href after "doi.org/".
func doiFromURL(href string) string {
	idx := strings.Index(href, "doi.org/")
	if idx < 0 {
		return ""
	}
	doi := strings.TrimSpace(href[idx+len("doi.org/"):])
	if unescaped, err := url.PathUnescape(doi); err == nil {
		doi = unescaped
	}
	return doi
}

// fetchLanding GETs a page and parses it. direct is true when the
// response is itself a PDF; the body is not parsed in that case.
func (r *Resolver) fetchLanding(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, bool, error) {
	resp, err := httputil.Get(ctx, r.Client, pageURL, r.UserAgent, "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8", r.MaxRetries)
	if err != nil {
		return nil, nil, false, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if isPDFContentType(resp.Header.Get("Content-Type")) {
		return nil, final, true, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxLandingBytes))
	if err != nil {
		return nil, nil, false, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return doc, final, false, nil
}

func isPDFContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/pdf"
}

func isArxivHost(host string) bool {
	return host == "arxiv.org" || strings.HasSuffix(host, ".arxiv.org")
}

func isDOIHost(host string) bool {
	return host == "doi.org" || strings.HasSuffix(host, ".doi.org")
}

func isPubMedHost(host string) bool {
	return host == "pubmed.ncbi.nlm.nih.gov"
}
