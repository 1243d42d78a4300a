// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search, download and paper endpoints over HTTP",
	Long: `Serve exposes the collector as a JSON API:

  POST   /search_papers    search sources and store new papers
  POST   /download_paper   download the PDF of a paper
  GET    /papers           list stored papers
  GET    /papers/{id}      show a stored paper
  DELETE /papers/{id}      delete a stored paper and its PDF
  GET    /search?query=    find stored papers
  GET    /health           health check

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.API.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		router := api.NewRouter(a.pipeline, a.store, logger)
		return api.ListenAndServe(ctx, addr, router, logger)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config, :8001)")
	rootCmd.AddCommand(serveCmd)
}
