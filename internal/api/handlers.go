package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/entryservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *entryservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *entryservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListEntries handles GET /api/entries.
//
// Query parameters: limit, offset, plan, removed (bool) and from
// (RFC 3339 or YYYY-MM-DD).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	removed, _ := strconv.ParseBool(q.Get("removed"))

	var from time.Time
	if v := q.Get("from"); v != "" {
		var err error
		if from, err = parseFrom(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid 'from' parameter"))
			return
		}
	}

	items, total, err := h.svc.List(r.Context(), entryservice.ListQuery{
		Limit:          limit,
		Offset:         offset,
		Plan:           q.Get("plan"),
		IncludeRemoved: removed,
		From:           from,
	})
	if err != nil {
		slog.Error("list entries failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: items, Total: total})
}

func parseFrom(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

// GetEntry handles GET /api/entries/{id}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get entry failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Sync handles POST /api/sync. A run already in progress yields 409.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrSyncInProgress):
			writeJSON(w, http.StatusConflict, errorBody("sync already in progress"))
		case apperr.IsConfiguration(err):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		case apperr.IsRemote(err):
			slog.Error("sync failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
		default:
			slog.Error("sync failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		slog.Error("status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Ready handles GET /health/ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
