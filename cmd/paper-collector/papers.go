// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/search"
	"github.com/pdiddy/paper-collector/pkg/types"
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Inspect and manage stored papers",
}

var papersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored papers, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return withStore(func(ctx context.Context, st storeAPI) error {
			papers, err := st.List(ctx, limit, offset)
			if err != nil {
				return err
			}
			return printPapers(cmd, papers)
		})
	},
}

var papersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st storeAPI) error {
			p, err := st.Get(ctx, id)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(os.Stdout, p)
			}
			printPaper(os.Stdout, p)
			return nil
		})
	},
}

var papersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored paper and its PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, st storeAPI) error {
			if err := st.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted paper %d\n", id)
			return nil
		})
	},
}

var papersFindCmd = &cobra.Command{
	Use:   "find <text>",
	Short: "Find stored papers by title, abstract, or author",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(func(ctx context.Context, st storeAPI) error {
			papers, err := st.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printPapers(cmd, papers)
		})
	},
}

var papersExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export every stored paper as YAML or JSON",
	Long: `Export writes all stored papers to a file. The format follows --format, or
the file extension (.json, .yaml, .yml) when --format is not given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = "yaml"
			if strings.HasSuffix(strings.ToLower(path), ".json") {
				format = "json"
			}
		}
		return withStore(func(ctx context.Context, st storeAPI) error {
			var (
				n   int
				err error
			)
			switch format {
			case "json":
				n, err = st.ExportJSON(ctx, path)
			case "yaml":
				n, err = st.ExportYAML(ctx, path)
			default:
				return fmt.Errorf("unknown format %q: use yaml or json", format)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d papers to %s\n", n, path)
			return nil
		})
	},
}

func init() {
	papersListCmd.Flags().Int("limit", 50, "maximum papers to list")
	papersListCmd.Flags().Int("offset", 0, "papers to skip")
	papersListCmd.Flags().Bool("json", false, "output as JSON")

	papersShowCmd.Flags().Bool("json", false, "output as JSON")

	papersFindCmd.Flags().Int("limit", 50, "maximum papers to list")
	papersFindCmd.Flags().Bool("json", false, "output as JSON")

	papersExportCmd.Flags().String("format", "", "yaml or json")

	papersCmd.AddCommand(papersListCmd, papersShowCmd, papersDeleteCmd, papersFindCmd, papersExportCmd)
	rootCmd.AddCommand(papersCmd)
}

// storeAPI is the store surface the papers commands use.
type storeAPI interface {
	List(ctx context.Context, limit, offset int) ([]types.Paper, error)
	Get(ctx context.Context, id int64) (types.Paper, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, q string, limit int) ([]types.Paper, error)
	ExportJSON(ctx context.Context, path string) (int, error)
	ExportYAML(ctx context.Context, path string) (int, error)
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(ctx context.Context, st storeAPI) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}

func printPapers(cmd *cobra.Command, papers []types.Paper) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return search.FormatJSON(papers, os.Stdout)
	}
	search.FormatTable(papers, os.Stdout)
	return nil
}

func printPaper(w io.Writer, p types.Paper) {
	fmt.Fprintf(w, "ID:        %d\n", p.ID)
	fmt.Fprintf(w, "Title:     %s\n", p.Title)
	fmt.Fprintf(w, "Authors:   %s\n", strings.Join(p.Authors, ", "))
	fmt.Fprintf(w, "Source:    %s\n", p.Source)
	fmt.Fprintf(w, "URL:       %s\n", p.URL)
	if p.DocumentURL != "" {
		fmt.Fprintf(w, "PDF URL:   %s\n", p.DocumentURL)
	}
	if p.DOI != "" {
		fmt.Fprintf(w, "DOI:       %s\n", p.DOI)
	}
	if p.PublishedDate != "" {
		fmt.Fprintf(w, "Published: %s\n", p.PublishedDate)
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(w, "Keywords:  %s\n", strings.Join(p.Keywords, ", "))
	}
	switch {
	case p.FilePath != "":
		fmt.Fprintf(w, "File:      %s\n", p.FilePath)
	case p.SkipReason != "":
		fmt.Fprintf(w, "Skipped:   %s\n", p.SkipReason)
	}
	fmt.Fprintf(w, "Added:     %s\n", p.CreatedAt.Local().Format("2006-01-02 15:04"))
	if p.Abstract != "" {
		fmt.Fprintf(w, "\n%s\n", p.Abstract)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid paper id %q", s)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
