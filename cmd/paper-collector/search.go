// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/pipeline"
	"github.com/pdiddy/paper-collector/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search arXiv and PubMed for new papers",
	Long: `Search queries arXiv, PubMed, or both for papers that are not yet stored.
Each source is asked for up to --max-results new papers; the new papers are
stored and printed. With --download their PDFs are fetched as well.

PubMed field searches can be built with --author, --journal and --recent-days;
they imply --source pubmed unless a source is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("max-results", 10, "new papers wanted per source")
	searchCmd.Flags().String("source", "", "arxiv, pubmed, or all (default arxiv)")
	searchCmd.Flags().String("author", "", "PubMed author search")
	searchCmd.Flags().String("journal", "", "PubMed journal search")
	searchCmd.Flags().Int("recent-days", 0, "PubMed search for papers from the last N days")
	searchCmd.Flags().Bool("download", false, "download the PDFs of new papers")
	searchCmd.Flags().String("group", "", "folder under the papers directory for downloads")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	source, _ := cmd.Flags().GetString("source")
	author, _ := cmd.Flags().GetString("author")
	journal, _ := cmd.Flags().GetString("journal")
	recentDays, _ := cmd.Flags().GetInt("recent-days")
	download, _ := cmd.Flags().GetBool("download")
	group, _ := cmd.Flags().GetString("group")
	asJSON, _ := cmd.Flags().GetBool("json")

	var terms []string
	if len(args) == 1 {
		terms = append(terms, args[0])
	}
	fielded := false
	if author != "" {
		terms = append(terms, search.AuthorQuery(author))
		fielded = true
	}
	if journal != "" {
		terms = append(terms, search.JournalQuery(journal))
		fielded = true
	}
	if recentDays > 0 {
		terms = append(terms, search.RecentQuery(recentDays))
		fielded = true
	}
	if len(terms) == 0 {
		return fmt.Errorf("provide a query or one of --author, --journal, --recent-days")
	}
	if source == "" && fielded {
		source = string(search.SelectPubMed)
	}

	sel := search.Selector("")
	if source != "" {
		s, err := search.ParseSelector(source)
		if err != nil {
			return err
		}
		sel = s
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	papers, sum, err := a.pipeline.Search(ctx, pipeline.SearchRequest{
		Query:        strings.Join(terms, " AND "),
		DesiredCount: maxResults,
		Source:       sel,
	})
	if err != nil {
		return err
	}

	if asJSON {
		if err := search.FormatJSON(papers, os.Stdout); err != nil {
			return err
		}
	} else {
		search.FormatTable(papers, os.Stdout)
	}

	if download {
		for i, p := range papers {
			if i > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(cfg.Acquisition.DownloadDelay):
				}
			}
			out := a.pipeline.Download(ctx, pipeline.DownloadRequest{URL: p.URL, Group: group})
			if out.Success {
				fmt.Fprintf(os.Stderr, "%-15s %s\n", out.Kind, out.FilePath)
			} else {
				fmt.Fprintf(os.Stderr, "%-15s %s (%s)\n", out.Kind, p.URL, out.Error)
			}
		}
	}

	if len(sum.FailedSources) > 0 {
		return fmt.Errorf("search failed for %v", sum.FailedSources)
	}
	return nil
}
