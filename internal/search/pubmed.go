// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/paper-collector/internal/httputil"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// pubmedAPIBase is the E-utilities root. Declared as a var so tests can
// substitute an httptest server.
var pubmedAPIBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const (
	pubmedRecordBase   = "https://pubmed.ncbi.nlm.nih.gov/"
	doiBase            = "https://doi.org/"
	pubmedNoTitle      = "No title"
	pubmedNoAbstract   = "No abstract available"
	pubmedDefaultMonth = "01"
)

// PubMedAdapter queries PubMed in two phases: esearch for PMIDs sorted by
// date, then efetch for the records.
type PubMedAdapter struct {
	Client     *http.Client
	UserAgent  string
	MaxRetries int

	// APIKey, Email and Tool are optional E-utilities parameters.
	APIKey string
	Email  string
	Tool   string

	Logger *slog.Logger
}

// NewPubMedAdapter builds an adapter from the search configuration.
func NewPubMedAdapter(client *http.Client, cfg types.SearchConfig, logger *slog.Logger) *PubMedAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubMedAdapter{
		Client:     client,
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		APIKey:     cfg.NCBIAPIKey,
		Email:      cfg.NCBIEmail,
		Tool:       cfg.NCBITool,
		Logger:     logger.With("source", types.SourcePubMed),
	}
}

// Name returns the source identifier.
func (a *PubMedAdapter) Name() types.Source { return types.SourcePubMed }

// AuthorQuery restricts a PubMed search to an author.
func AuthorQuery(name string) string { return strings.TrimSpace(name) + "[Author]" }

// JournalQuery restricts a PubMed search to a journal.
func JournalQuery(name string) string { return strings.TrimSpace(name) + "[Journal]" }

// RecentQuery matches records published in the last days days.
func RecentQuery(days int) string { return strconv.Itoa(days) + "[Days]" }

// PubMedRecordURL returns the canonical record URL for a PMID.
func PubMedRecordURL(pmid string) string { return pubmedRecordBase + pmid + "/" }

// Search runs esearch for desired×3 PMIDs, fetches the records not yet in
// exclude, and returns up to desired candidates in esearch order.
func (a *PubMedAdapter) Search(ctx context.Context, query string, desired int, exclude map[string]bool) Result {
	if desired <= 0 {
		return Result{Source: types.SourcePubMed}
	}
	if strings.TrimSpace(query) == "" {
		return failed(types.SourcePubMed, "empty PubMed query")
	}

	pmids, err := a.searchIDs(ctx, query, desired*overFetchFactor)
	if err != nil {
		a.Logger.Warn("PubMed id search failed", "query", query, "error", err)
		return Result{Source: types.SourcePubMed, Err: err}
	}
	res := Result{Source: types.SourcePubMed, Fetched: len(pmids)}

	var fetch []string
	for _, id := range pmids {
		if !exclude[PubMedRecordURL(id)] {
			fetch = append(fetch, id)
		}
	}
	if len(fetch) == 0 {
		return res
	}

	records, err := a.fetchRecords(ctx, fetch)
	if err != nil {
		a.Logger.Warn("PubMed detail fetch failed", "query", query, "error", err)
		res.Err = err
		return res
	}

	res.Candidates = collectNew(orderByPMID(records, fetch), desired, exclude)
	a.Logger.Debug("PubMed search", "query", query, "fetched", res.Fetched, "new", len(res.Candidates))
	return res
}

func (a *PubMedAdapter) params() url.Values {
	v := url.Values{}
	v.Set("db", "pubmed")
	v.Set("retmode", "xml")
	if a.APIKey != "" {
		v.Set("api_key", a.APIKey)
	}
	if a.Email != "" {
		v.Set("email", a.Email)
	}
	if a.Tool != "" {
		v.Set("tool", a.Tool)
	}
	return v
}

func (a *PubMedAdapter) searchIDs(ctx context.Context, query string, max int) ([]string, error) {
	v := a.params()
	v.Set("term", query)
	v.Set("retmax", strconv.Itoa(max))
	v.Set("sort", "date")

	resp, err := httputil.Get(ctx, a.Client, pubmedAPIBase+"/esearch.fcgi?"+v.Encode(), a.UserAgent, "application/xml", a.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("PubMed esearch: %w", err)
	}
	defer resp.Body.Close()

	var out esearchResult
	if err := xml.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing PubMed esearch response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("PubMed esearch: %s", out.Error)
	}

	ids := make([]string, 0, len(out.IDs))
	for _, id := range out.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (a *PubMedAdapter) fetchRecords(ctx context.Context, pmids []string) ([]types.Candidate, error) {
	v := a.params()
	v.Set("id", strings.Join(pmids, ","))
	v.Set("rettype", "abstract")

	resp, err := httputil.Get(ctx, a.Client, pubmedAPIBase+"/efetch.fcgi?"+v.Encode(), a.UserAgent, "application/xml", a.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("PubMed efetch: %w", err)
	}
	defer resp.Body.Close()

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("parsing PubMed efetch response: %w", err)
	}

	out := make([]types.Candidate, 0, len(set.Articles))
	for _, art := range set.Articles {
		if c, ok := parsePubMedArticle(art); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// orderByPMID reorders records to match the esearch (date) order.
func orderByPMID(records []types.Candidate, pmids []string) []types.Candidate {
	byURL := make(map[string]types.Candidate, len(records))
	for _, r := range records {
		byURL[r.URL] = r
	}
	out := make([]types.Candidate, 0, len(records))
	for _, id := range pmids {
		if r, ok := byURL[PubMedRecordURL(id)]; ok {
			out = append(out, r)
			delete(byURL, r.URL)
		}
	}
	return out
}

// parsePubMedArticle maps one PubmedArticle onto a Candidate. Records
// without a PMID are rejected.
func parsePubMedArticle(art pubmedArticle) (types.Candidate, bool) {
	mc := art.Citation
	pmid := strings.TrimSpace(mc.PMID)
	if pmid == "" {
		return types.Candidate{}, false
	}

	c := types.Candidate{
		Title:    pubmedNoTitle,
		Abstract: pubmedNoAbstract,
		URL:      PubMedRecordURL(pmid),
		Keywords: []string{},
		Source:   types.SourcePubMed,
	}
	if t := markupText(mc.Article.Title.Inner); t != "" {
		c.Title = t
	}
	if len(mc.Article.Abstract) > 0 {
		if t := markupText(mc.Article.Abstract[0].Inner); t != "" {
			c.Abstract = t
		}
	}

	for _, au := range mc.Article.Authors {
		if name := pubmedAuthorName(au); name != "" {
			c.Authors = append(c.Authors, name)
		}
	}

	c.DOI = pubmedDOI(art)
	if c.DOI != "" {
		c.DocumentURL = doiBase + c.DOI
	}
	c.PublishedDate = pubmedDate(mc.Article.Journal.Issue.PubDate)

	for _, kl := range mc.KeywordLists {
		for _, kw := range kl.Keywords {
			if kw = normalizeSpace(kw); kw != "" {
				c.Keywords = append(c.Keywords, kw)
			}
		}
	}
	return c, true
}

// pubmedAuthorName renders "<ForeName> <LastName>", or LastName alone.
// Collective authors without a LastName are skipped.
func pubmedAuthorName(au pubmedAuthor) string {
	last := strings.TrimSpace(au.LastName)
	if last == "" {
		return ""
	}
	if first := strings.TrimSpace(au.ForeName); first != "" {
		return first + " " + last
	}
	return last
}

// pubmedDOI returns the first DOI in the record's ArticleIdList, falling
// back to the first DOI ELocationID.
func pubmedDOI(art pubmedArticle) string {
	for _, id := range art.Data.ArticleIDs {
		if id.Type == "doi" {
			if v := strings.TrimSpace(id.Value); v != "" {
				return v
			}
		}
	}
	for _, loc := range art.Citation.Article.ELocations {
		if loc.Type == "doi" {
			if v := strings.TrimSpace(loc.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

var monthNames = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

var yearPattern = regexp.MustCompile(`\b(\d{4})\b(?:\s+([A-Za-z]{3}))?`)

// pubmedDate builds YYYY-MM-01 from a PubDate. The month defaults to 01
// and the day is always 01. Without a year the date is absent.
func pubmedDate(d pubmedPubDate) string {
	year := strings.TrimSpace(d.Year)
	month := strings.TrimSpace(d.Month)
	if year == "" && d.MedlineDate != "" {
		// e.g. "2023 Nov-Dec" or "2021 Spring"
		if m := yearPattern.FindStringSubmatch(d.MedlineDate); m != nil {
			year, month = m[1], m[2]
		}
	}
	if len(year) != 4 {
		return ""
	}
	return year + "-" + normalizeMonth(month) + "-01"
}

// normalizeMonth converts "7", "07" or "Jul" into "07".
func normalizeMonth(m string) string {
	if m == "" {
		return pubmedDefaultMonth
	}
	if n, err := strconv.Atoi(m); err == nil {
		if n < 1 || n > 12 {
			return pubmedDefaultMonth
		}
		return fmt.Sprintf("%02d", n)
	}
	if len(m) >= 3 {
		if v, ok := monthNames[strings.ToLower(m[:3])]; ok {
			return v
		}
	}
	return pubmedDefaultMonth
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// markupText strips inline markup (e.g. <i>, <sup>) from an element's
// inner XML and unescapes entities.
func markupText(inner string) string {
	return normalizeSpace(html.UnescapeString(tagPattern.ReplaceAllString(inner, "")))
}

// E-utilities XML structures.

type esearchResult struct {
	IDs   []string `xml:"IdList>Id"`
	Error string   `xml:"ERROR"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation pubmedCitation `xml:"MedlineCitation"`
	Data     struct {
		ArticleIDs []pubmedTypedValue `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

type pubmedCitation struct {
	PMID    string `xml:"PMID"`
	Article struct {
		Title    innerXML       `xml:"ArticleTitle"`
		Abstract []innerXML     `xml:"Abstract>AbstractText"`
		Authors  []pubmedAuthor `xml:"AuthorList>Author"`
		Journal  struct {
			Issue struct {
				PubDate pubmedPubDate `xml:"PubDate"`
			} `xml:"JournalIssue"`
		} `xml:"Journal"`
		ELocations []pubmedELocation `xml:"ELocationID"`
	} `xml:"Article"`
	KeywordLists []struct {
		Keywords []string `xml:"Keyword"`
	} `xml:"KeywordList"`
}

type innerXML struct {
	Inner string `xml:",innerxml"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type pubmedPubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	MedlineDate string `xml:"MedlineDate"`
}

type pubmedTypedValue struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

type pubmedELocation struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}
