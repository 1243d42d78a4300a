// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package api exposes the collector over HTTP: searching sources,
// downloading documents, and browsing the stored papers.
package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pdiddy/paper-collector/internal/pipeline"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Collector runs searches and downloads.
type Collector interface {
	Search(ctx context.Context, req pipeline.SearchRequest) ([]types.Paper, pipeline.QuerySummary, error)
	Download(ctx context.Context, req pipeline.DownloadRequest) pipeline.DownloadOutcome
}

// Papers reads and deletes stored papers.
type Papers interface {
	List(ctx context.Context, limit, offset int) ([]types.Paper, error)
	Get(ctx context.Context, id int64) (types.Paper, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, q string, limit int) ([]types.Paper, error)
	Ping(ctx context.Context) error
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(c Collector, p Papers, logger *slog.Logger) chi.Router {
	h := NewHandler(c, p, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Post("/search_papers", h.SearchPapers)
	r.Post("/download_paper", h.DownloadPaper)

	r.Get("/papers", h.ListPapers)
	r.Get("/papers/{id}", h.GetPaper)
	r.Delete("/papers/{id}", h.DeletePaper)

	r.Get("/search", h.SearchStored)

	return r
}
