package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/onebot"
	"gitlab.com/timkado/api/message-snapper/internal/application"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
	"gitlab.com/timkado/api/message-snapper/pkg/contextkeys"
)

const maxRequestBytes = 1 << 20

// SnapshotService is what the HTTP surface needs from the snapshot service.
type SnapshotService interface {
	GenerateSnapshot(ctx context.Context, req domain.SnapshotRequest) ([]byte, error)
	GetGroupInfo(ctx context.Context, groupID int64) domain.Record
	AssetURI(ctx context.Context, id int64) (string, bool)
	AssetPath(id int64) string
	SaveCache(ctx context.Context)
	CacheStats() application.CacheStats
}

// Handler serves the snapshot API.
type Handler struct {
	logger  domain.Logger
	service SnapshotService
}

func NewHandler(logger domain.Logger, service SnapshotService) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the API routes on mux, each wrapped by auth.
func (h *Handler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /snapshot", auth(http.HandlerFunc(h.Snapshot)))
	mux.Handle("GET /assets/{id}", auth(http.HandlerFunc(h.Asset)))
	mux.Handle("GET /groups/{id}", auth(http.HandlerFunc(h.Group)))
	mux.Handle("GET /admin/cache", auth(http.HandlerFunc(h.CacheStats)))
	mux.Handle("POST /admin/cache/save", auth(http.HandlerFunc(h.SaveCache)))
}

// Snapshot renders the posted message and answers with the PNG.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var payload domain.SnapshotRequestPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&payload); err != nil {
		h.logger.Warn(r.Context(), "Failed to decode /snapshot payload", "error", err.Error())
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}
	req, err := onebot.DecodeSnapshotRequest(payload)
	if err != nil {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid snapshot request", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}

	img, err := h.service.GenerateSnapshot(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, application.ErrUnsupportedMessage):
		domain.NewErrorResponse(domain.ErrUnsupportedMessage, "Message has nothing to render", "").WriteJSON(w, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, application.ErrRenderFailed):
		domain.NewErrorResponse(domain.ErrRenderFailed, "Rendering failed", err.Error()).WriteJSON(w, http.StatusBadGateway)
		return
	default:
		h.logger.Error(r.Context(), "Snapshot generation failed", "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Snapshot generation failed", "").WriteJSON(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// Asset serves a cached face image, downloading it on first use.
func (h *Handler) Asset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid asset id", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}
	ctx := context.WithValue(r.Context(), contextkeys.AssetIDKey, id)
	if _, ok := h.service.AssetURI(ctx, id); !ok {
		domain.NewErrorResponse(domain.ErrNotFound, "Asset unavailable", "").WriteJSON(w, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, h.service.AssetPath(id))
}

// Group returns group metadata through the TTL cache.
func (h *Handler) Group(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid group id", "").WriteJSON(w, http.StatusBadRequest)
		return
	}
	ctx := context.WithValue(r.Context(), contextkeys.GroupIDKey, id)
	writeJSON(w, http.StatusOK, h.service.GetGroupInfo(ctx, id))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.CacheStats())
}

// SaveCache checkpoints the metadata cache immediately.
func (h *Handler) SaveCache(w http.ResponseWriter, r *http.Request) {
	h.service.SaveCache(r.Context())
	h.logger.Info(r.Context(), "Cache snapshot saved on request")
	writeJSON(w, http.StatusOK, h.service.CacheStats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
