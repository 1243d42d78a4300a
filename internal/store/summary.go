// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// recentLimit bounds the recent papers listed in a Summary.
const recentLimit = 10

// weakKeywordMatches is the title-match count under which a keyword is
// reported as a candidate for revision.
const weakKeywordMatches = 2

// Summary aggregates papers collected since a point in time.
type Summary struct {
	Since      time.Time            `json:"since" yaml:"since"`
	Total      int                  `json:"total" yaml:"total"`
	Downloaded int                  `json:"downloaded" yaml:"downloaded"`
	Skipped    int                  `json:"skipped" yaml:"skipped"`
	BySource   map[types.Source]int `json:"by_source" yaml:"by_source"`
	PerDay     []DayCount           `json:"per_day" yaml:"per_day"`
	Keywords   []KeywordCount       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Recent     []types.Paper        `json:"recent" yaml:"recent"`
}

// DayCount is the number of papers added on one UTC day (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date" yaml:"date"`
	Count int    `json:"count" yaml:"count"`
}

// KeywordCount is the number of titles containing a plan keyword.
type KeywordCount struct {
	Keyword string `json:"keyword" yaml:"keyword"`
	Matches int    `json:"matches" yaml:"matches"`
}

// DownloadRate returns the downloaded share of Total in percent.
func (s Summary) DownloadRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Downloaded) / float64(s.Total) * 100
}

// WeakKeywords returns the keywords matching fewer than two titles.
func (s Summary) WeakKeywords() []string {
	var weak []string
	for _, k := range s.Keywords {
		if k.Matches < weakKeywordMatches {
			weak = append(weak, k.Keyword)
		}
	}
	return weak
}

// Summary aggregates papers created at or after since. Each keyword is
// matched case-insensitively against paper titles.
func (s *Store) Summary(ctx context.Context, since time.Time, keywords []string) (Summary, error) {
	papers, err := s.query(ctx, `SELECT `+paperColumns+` FROM papers
		WHERE created_at >= ? ORDER BY created_at DESC, id DESC`, formatTime(since))
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Since:    since.UTC(),
		Total:    len(papers),
		BySource: make(map[types.Source]int),
	}
	perDay := make(map[string]int)
	for _, p := range papers {
		sum.BySource[p.Source]++
		if p.HasDocument() {
			sum.Downloaded++
		}
		if p.SkipReason != "" {
			sum.Skipped++
		}
		perDay[p.CreatedAt.UTC().Format("2006-01-02")]++
	}

	for day, n := range perDay {
		sum.PerDay = append(sum.PerDay, DayCount{Date: day, Count: n})
	}
	sort.Slice(sum.PerDay, func(i, j int) bool { return sum.PerDay[i].Date < sum.PerDay[j].Date })

	for _, kw := range keywords {
		needle := strings.ToLower(kw)
		n := 0
		for _, p := range papers {
			if strings.Contains(strings.ToLower(p.Title), needle) {
				n++
			}
		}
		sum.Keywords = append(sum.Keywords, KeywordCount{Keyword: kw, Matches: n})
	}

	if len(papers) > recentLimit {
		papers = papers[:recentLimit]
	}
	sum.Recent = papers
	return sum, nil
}

// FormatSummary writes a human-readable report of s to w.
func FormatSummary(s Summary, w io.Writer) {
	fmt.Fprintf(w, "Papers since %s: %d\n", s.Since.Format("2006-01-02"), s.Total)
	if s.Total == 0 {
		return
	}

	fmt.Fprintf(w, "\nBy source:\n")
	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Fprintf(w, "  %-8s %d\n", src, s.BySource[types.Source(src)])
	}

	fmt.Fprintf(w, "\nDocuments: %d/%d downloaded (%.1f%%), %d skipped\n",
		s.Downloaded, s.Total, s.DownloadRate(), s.Skipped)

	fmt.Fprintf(w, "\nPer day:\n")
	for _, d := range s.PerDay {
		fmt.Fprintf(w, "  %s  %d\n", d.Date, d.Count)
	}

	if len(s.Keywords) > 0 {
		fmt.Fprintf(w, "\nKeyword title matches:\n")
		for _, k := range s.Keywords {
			fmt.Fprintf(w, "  %-40s %d\n", k.Keyword, k.Matches)
		}
		if weak := s.WeakKeywords(); len(weak) > 0 {
			fmt.Fprintf(w, "\nKeywords with fewer than %d matches (consider revising):\n", weakKeywordMatches)
			for _, k := range weak {
				fmt.Fprintf(w, "  - %s\n", k)
			}
		}
	}

	fmt.Fprintf(w, "\nRecent:\n")
	for i, p := range s.Recent {
		mark := " "
		if p.HasDocument() {
			mark = "*"
		}
		fmt.Fprintf(w, "  %2d. [%s] %s (%s, %s)\n", i+1, mark, p.Title, p.Source, p.CreatedAt.Format("2006-01-02"))
	}
}
