package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantatirsk/filesearch"
	"github.com/quantatirsk/filesearch/query"
	"github.com/quantatirsk/filesearch/store"
)

type handler struct {
	engine *filesearch.Engine
	cfg    filesearch.Config
}

func newHandler(e *filesearch.Engine, cfg filesearch.Config) *handler {
	return &handler{engine: e, cfg: cfg}
}

// POST /search
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query         string   `json:"query"`
		SearchType    string   `json:"search_type"`
		Limit         int      `json:"limit"`
		MinFuzzyScore float64  `json:"min_fuzzy_score"`
		FileTypes     []string `json:"file_types,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	searchType := query.SearchType(req.SearchType)
	switch searchType {
	case query.TypeExact, query.TypeFuzzy, query.TypePath, query.TypeHybrid:
	case "":
		searchType = query.TypeExact
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid search_type %q", filesearch.ErrInvariantViolation, req.SearchType).Error())
		return
	}

	resp := h.engine.Search(r.Context(), req.Query, searchType,
		filesearch.WithLimit(req.Limit),
		filesearch.WithMinFuzzyScore(req.MinFuzzyScore),
		filesearch.WithFileTypes(req.FileTypes...),
	)
	writeJSON(w, http.StatusOK, resp)
}

// POST /search/advanced
func (h *handler) handleSearchAdvanced(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content       string   `json:"content"`
		Path          string   `json:"path"`
		FileTypes     []string `json:"file_types,omitempty"`
		Fuzzy         bool     `json:"fuzzy"`
		MinFuzzyScore float64  `json:"min_fuzzy_score"`
		Limit         int      `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	results, err := h.engine.SearchAdvanced(r.Context(), query.AdvancedQuery{
		Content:       req.Content,
		Path:          req.Path,
		FileTypes:     req.FileTypes,
		Fuzzy:         req.Fuzzy,
		MinFuzzyScore: req.MinFuzzyScore,
		Limit:         req.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "advanced search failed")
		slog.Error("search advanced error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":       results,
		"total_results": len(results),
	})
}

// POST /search/metadata
func (h *handler) handleSearchMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinSize        *int64   `json:"min_size,omitempty"`
		MaxSize        *int64   `json:"max_size,omitempty"`
		CreatedAfter   *int64   `json:"created_after,omitempty"`
		CreatedBefore  *int64   `json:"created_before,omitempty"`
		ModifiedAfter  *int64   `json:"modified_after,omitempty"`
		ModifiedBefore *int64   `json:"modified_before,omitempty"`
		FileTypes      []string `json:"file_types,omitempty"`
		Limit          int      `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	filter := store.MetadataFilter{
		MinSize:        req.MinSize,
		MaxSize:        req.MaxSize,
		CreatedAfter:   req.CreatedAfter,
		CreatedBefore:  req.CreatedBefore,
		ModifiedAfter:  req.ModifiedAfter,
		ModifiedBefore: req.ModifiedBefore,
		FileTypes:      req.FileTypes,
	}

	results, err := h.engine.SearchMetadata(r.Context(), filter, filesearch.WithLimit(req.Limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "metadata search failed")
		slog.Error("search metadata error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":       results,
		"total_results": len(results),
	})
}

// POST /search/combined
func (h *handler) handleSearchCombined(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content   string   `json:"content"`
		Path      string   `json:"path"`
		MinSize   *int64   `json:"min_size,omitempty"`
		MaxSize   *int64   `json:"max_size,omitempty"`
		FileTypes []string `json:"file_types,omitempty"`
		Limit     int      `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	filter := store.MetadataFilter{MinSize: req.MinSize, MaxSize: req.MaxSize, FileTypes: req.FileTypes}

	results, err := h.engine.SearchCombined(r.Context(), req.Content, req.Path, filter, filesearch.WithLimit(req.Limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "combined search failed")
		slog.Error("search combined error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":       results,
		"total_results": len(results),
	})
}

// POST /index
func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Directory       string `json:"directory"`
		Force           bool   `json:"force"`
		Workers         int    `json:"workers,omitempty"`
		IncludeAllFiles bool   `json:"include_all_files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Directory == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: directory is required", filesearch.ErrInvariantViolation).Error())
		return
	}

	var opts []filesearch.IndexOption
	if req.Force {
		opts = append(opts, filesearch.WithForce())
	}
	if req.IncludeAllFiles {
		opts = append(opts, filesearch.WithIncludeAllFiles())
	}
	if req.Workers > 0 {
		opts = append(opts, filesearch.WithWorkers(req.Workers))
	}

	start := time.Now()
	summary, err := h.engine.IndexDirectory(ctx, req.Directory, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "indexing failed")
		slog.Error("index error", "directory", req.Directory, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         summary.Status == "completed",
		"indexed_files":   summary.Succeeded,
		"total_files":     summary.Total,
		"processing_time": time.Since(start).Seconds(),
	})
}

// POST /index/stream
func (h *handler) handleIndexStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Directory       string `json:"directory"`
		Force           bool   `json:"force"`
		Workers         int    `json:"workers,omitempty"`
		IncludeAllFiles bool   `json:"include_all_files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Directory == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: directory is required", filesearch.ErrInvariantViolation).Error())
		return
	}

	var opts []filesearch.IndexOption
	if req.Force {
		opts = append(opts, filesearch.WithForce())
	}
	if req.IncludeAllFiles {
		opts = append(opts, filesearch.WithIncludeAllFiles())
	}
	if req.Workers > 0 {
		opts = append(opts, filesearch.WithWorkers(req.Workers))
	}

	id, err := h.engine.StartIndexSession(req.Directory, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start indexing session")
		slog.Error("index stream error", "directory", req.Directory, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":   id,
		"progress_url": "/index/progress/" + id,
	})
}

// GET /api/indexing/progress
func (h *handler) handleCurrentProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.CurrentProgress())
}

// GET /index/progress/{session_id}
func (h *handler) handleSessionProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	progress, err := h.engine.SessionProgress(id)
	if errors.Is(err, filesearch.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "unknown indexing session")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// POST /file/content
func (h *handler) handleFileContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: path is required", filesearch.ErrInvariantViolation).Error())
		return
	}

	body, err := h.engine.GetBody(r.Context(), req.Path)
	if errors.Is(err, filesearch.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read document")
		slog.Error("file content error", "path", req.Path, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    req.Path,
		"content": *body,
	})
}

// DELETE /file
func (h *handler) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: path is required", filesearch.ErrInvariantViolation).Error())
		return
	}

	_, err := h.engine.RemoveFile(r.Context(), req.Path)
	if errors.Is(err, filesearch.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "remove failed")
		slog.Error("file delete error", "path", req.Path, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// PUT /file/path
func (h *handler) handleFileRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPath string `json:"old_path"`
		NewPath string `json:"new_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: old_path and new_path are required", filesearch.ErrInvariantViolation).Error())
		return
	}

	_, err := h.engine.RenameFile(r.Context(), req.OldPath, req.NewPath)
	if errors.Is(err, filesearch.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "rename failed")
		slog.Error("file rename error", "old_path", req.OldPath, "new_path", req.NewPath, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		slog.Error("stats error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /supported-formats
func (h *handler) handleSupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": h.engine.SupportedFormats(),
	})
}

// GET /suggest
func (h *handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if q == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: query is required", filesearch.ErrInvariantViolation).Error())
		return
	}
	max := h.cfg.MaxSuggestions
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}

	suggestions, err := h.engine.Suggest(r.Context(), q, max)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "suggest failed")
		slog.Error("suggest error", "query", q, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
	})
}

// DELETE /index?confirm=true
func (h *handler) handleClearIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "clearing the index requires ?confirm=true")
		return
	}

	if err := h.engine.ClearIndex(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clear failed")
		slog.Error("clear index error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
