// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/pipeline"
)

var downloadCmd = &cobra.Command{
	Use:   "download [urls...]",
	Short: "Download the PDFs of stored papers or arbitrary reference URLs",
	Long: `Download resolves each URL to a PDF, downloads it under the size limit and
checks the page limit. A URL naming a stored paper records the file path on
that paper; other URLs only produce the file.

With --pending every stored paper without a PDF is processed instead. Papers
previously skipped for length or size are retried only with --retry-skipped,
usually together with a raised --max-pages.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().String("group", "", "folder under the papers directory")
	downloadCmd.Flags().Bool("pending", false, "download every stored paper that has no PDF")
	downloadCmd.Flags().Int("limit", 0, "maximum papers processed with --pending (0 = all)")
	downloadCmd.Flags().Bool("retry-skipped", false, "retry papers skipped by the page or size limit")
	downloadCmd.Flags().Int("max-pages", 0, "page limit (overrides config; negative disables)")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	group, _ := cmd.Flags().GetString("group")
	pending, _ := cmd.Flags().GetBool("pending")
	limit, _ := cmd.Flags().GetInt("limit")

	if !pending && len(args) == 0 {
		return fmt.Errorf("provide one or more URLs, or use --pending")
	}

	c := cfg
	if cmd.Flags().Changed("retry-skipped") {
		c.Acquisition.RetrySkipped, _ = cmd.Flags().GetBool("retry-skipped")
	}
	if cmd.Flags().Changed("max-pages") {
		c.Acquisition.MaxPages, _ = cmd.Flags().GetInt("max-pages")
	}

	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	if pending {
		sum, err := a.pipeline.DownloadPending(ctx, group, limit)
		if err != nil {
			return err
		}
		pipeline.FormatQuery(sum, os.Stdout)
		return sum.Err
	}

	failed := 0
	for _, u := range args {
		out := a.pipeline.Download(ctx, pipeline.DownloadRequest{URL: u, Group: group})
		switch {
		case out.Success:
			fmt.Printf("%-15s %s\n", out.Kind, out.FilePath)
		default:
			fmt.Printf("%-15s %s (%s)\n", out.Kind, u, out.Error)
			if !out.Kind.IsPolicySkip() {
				failed++
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d download(s) failed", failed)
	}
	return nil
}
