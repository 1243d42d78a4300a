// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/paper-collector/internal/pipeline"
	"github.com/pdiddy/paper-collector/internal/store"
	"github.com/pdiddy/paper-collector/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxBodyBytes     = 1 << 20
)

// Handler holds API route handlers.
type Handler struct {
	collector Collector
	papers    Papers
	logger    *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(c Collector, p Papers, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{collector: c, papers: p, logger: logger}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.papers.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SearchPapers handles POST /search_papers. It queries the selected
// sources and responds with the newly persisted papers.
func (h *Handler) SearchPapers(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	papers, sum, err := h.collector.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.logger.Error("search failed", slog.String("query", req.Query), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if len(sum.FailedSources) > 0 {
		h.logger.Warn("search completed with source errors", slog.String("query", sum.Query), slog.Any("sources", sum.FailedSources))
	}
	if papers == nil {
		papers = []types.Paper{}
	}
	writeJSON(w, http.StatusOK, papers)
}

// DownloadPaper handles POST /download_paper. The paper URL and optional
// group folder come from a JSON body or from the paper_url and
// time_folder query parameters.
func (h *Handler) DownloadPaper(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DownloadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	q := r.URL.Query()
	if req.URL == "" {
		req.URL = q.Get("paper_url")
	}
	if req.Group == "" {
		req.Group = q.Get("time_folder")
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("paper_url is required"))
		return
	}

	writeJSON(w, http.StatusOK, h.collector.Download(r.Context(), req))
}

// ListPapers handles GET /papers?limit=&offset=.
func (h *Handler) ListPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	papers, err := h.papers.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list papers failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(papers))
}

// GetPaper handles GET /papers/{id}.
func (h *Handler) GetPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	p, err := h.papers.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, "get paper", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePaper handles DELETE /papers/{id}. The local document is removed
// with the record.
func (h *Handler) DeletePaper(w http.ResponseWriter, r *http.Request) {
	id, ok := paperID(w, r)
	if !ok {
		return
	}
	if err := h.papers.Delete(r.Context(), id); err != nil {
		h.storeError(w, "delete paper", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "paper deleted"})
}

// SearchStored handles GET /search?query=. It matches stored papers by
// title, abstract, or author.
func (h *Handler) SearchStored(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	papers, err := h.papers.Search(r.Context(), q, limit)
	if err != nil {
		h.logger.Error("search stored papers failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(papers))
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("paper not found"))
		return
	}
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

func paperID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid paper id"))
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func nonNil(papers []types.Paper) []types.Paper {
	if papers == nil {
		return []types.Paper{}
	}
	return papers
}
