// Package orchestratorapi implements the orchestrator's public HTTP
// surface (C10): analysis upload/listing/detail/image/logs and
// notification listing/read, plus health endpoints (C11). Grounded on the
// teacher's internal/app/httpapi/handler.go handler-struct-plus-mux shape,
// rebuilt on github.com/go-chi/chi/v5 path parameters in place of the
// teacher's manual "/accounts/" prefix-stripping.
package orchestratorapi

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LucasBiason/threat-modeling-ai/internal/jobstore"
	"github.com/LucasBiason/threat-modeling-ai/internal/notification"
	"github.com/LucasBiason/threat-modeling-ai/pkg/httpkit"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
	"github.com/LucasBiason/threat-modeling-ai/pkg/serviceerr"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

var allowedUploadTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

// Config controls upload limits.
type Config struct {
	MaxUploadBytes int64
}

func (c Config) normalize() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	return c
}

type handler struct {
	store   *jobstore.Store
	notifs  *notification.Repository
	blobs   *BlobStore
	db      *sql.DB
	cfg     Config
	log     *logger.Logger
}

// NewRouter builds the chi router exposing the full C10 surface plus
// health endpoints. db is used only for the readiness probe; it may be the
// same *sql.DB the store was built over.
func NewRouter(store *jobstore.Store, notifs *notification.Repository, blobs *BlobStore, db *sql.DB, cfg Config, log *logger.Logger) http.Handler {
	h := &handler{store: store, notifs: notifs, blobs: blobs, db: db, cfg: cfg.normalize(), log: log}

	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Get("/health/live", h.health)
	r.Get("/health/ready", h.ready)

	r.Route("/api/v1/analyses", func(r chi.Router) {
		r.Post("/", h.createAnalysis)
		r.Get("/", h.listAnalyses)
		r.Get("/{id}", h.getAnalysis)
		r.Get("/{id}/image", h.getAnalysisImage)
		r.Get("/{id}/logs", h.getAnalysisLogs)
	})
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/unread", h.listUnreadNotifications)
		r.Post("/{id}/read", h.markNotificationRead)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			httpkit.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) createAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes + 1<<20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpkit.WriteError(w, serviceerr.PayloadTooLarge(h.cfg.MaxUploadBytes))
			return
		}
		httpkit.WriteError(w, serviceerr.InvalidInput("invalid multipart form: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpkit.WriteError(w, serviceerr.InvalidInput("missing file field"))
		return
	}
	defer file.Close()

	if header.Size == 0 {
		httpkit.WriteError(w, serviceerr.InvalidInput("Empty file"))
		return
	}
	if header.Size > h.cfg.MaxUploadBytes {
		httpkit.WriteError(w, serviceerr.PayloadTooLarge(h.cfg.MaxUploadBytes))
		return
	}

	contentType := detectUploadContentType(header.Header.Get("Content-Type"))
	if !allowedUploadTypes[contentType] {
		httpkit.WriteError(w, serviceerr.UnsupportedMedia(contentType))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpkit.WriteError(w, serviceerr.InvalidInput("failed to read uploaded file"))
		return
	}

	imagePath, err := h.blobs.Save(data, contentType)
	if err != nil {
		h.log.WithError(err).Error("failed to persist uploaded image")
		httpkit.WriteError(w, serviceerr.Internal("failed to persist image", err))
		return
	}

	analysis, err := h.store.Create(r.Context(), imagePath, contentType)
	if err != nil {
		h.log.WithError(err).Error("failed to create analysis record")
		httpkit.WriteError(w, serviceerr.Internal("failed to create analysis", err))
		return
	}

	httpkit.WriteJSON(w, http.StatusCreated, analysisCreatedResponse{
		ID:        analysis.ID,
		Code:      analysis.Code,
		Status:    string(analysis.Status),
		CreatedAt: analysis.CreatedAt,
		ImageURL:  "/api/v1/analyses/" + analysis.ID.String() + "/image",
	})
}

func (h *handler) listAnalyses(w http.ResponseWriter, r *http.Request) {
	filter := jobstore.Filter{
		CodeSubstring: httpkit.QueryString(r, "code", ""),
		Status:        jobstore.Status(httpkit.QueryString(r, "status", "")),
	}
	if from := httpkit.QueryString(r, "createdAtFrom", ""); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.CreatedAtFrom = &t
		}
	}
	if to := httpkit.QueryString(r, "createdAtTo", ""); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.CreatedAtTo = &t
		}
	}

	page := httpkit.PaginationParams(r, 20, 100)
	pageNum := httpkit.QueryInt(r, "page", 0)
	size := httpkit.QueryInt(r, "size", page.Limit)
	if size <= 0 {
		size = page.Limit
	}
	if pageNum > 0 {
		page.Offset = pageNum * size
	}
	page.Limit = size

	analyses, err := h.store.ListAll(r.Context(), filter, jobstore.Page{Offset: page.Offset, Limit: page.Limit})
	if err != nil {
		h.log.WithError(err).Error("failed to list analyses")
		httpkit.WriteError(w, serviceerr.Internal("failed to list analyses", err))
		return
	}

	out := make([]analysisDetail, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, toAnalysisDetail(a))
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	analysis, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeGetErr(w, err, "analysis", id.String())
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, toAnalysisDetail(analysis))
}

func (h *handler) getAnalysisImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	analysis, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeGetErr(w, err, "analysis", id.String())
		return
	}
	data, err := os.ReadFile(analysis.ImagePath)
	if err != nil {
		httpkit.WriteError(w, serviceerr.NotFound("image", id.String()))
		return
	}
	contentType := analysis.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) getAnalysisLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	analysis, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeGetErr(w, err, "analysis", id.String())
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, logsResponse{Logs: analysis.ProcessingLogs})
}

func (h *handler) listUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	limit := httpkit.QueryInt(r, "limit", 20)
	items, err := h.notifs.ListUnread(r.Context(), limit)
	if err != nil {
		h.log.WithError(err).Error("failed to list unread notifications")
		httpkit.WriteError(w, serviceerr.Internal("failed to list notifications", err))
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, unreadNotificationsResponse{
		UnreadCount:   len(items),
		Notifications: items,
	})
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		httpkit.WriteError(w, serviceerr.InvalidInput("invalid notification id"))
		return
	}
	found, err := h.notifs.MarkRead(r.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("failed to mark notification read")
		httpkit.WriteError(w, serviceerr.Internal("failed to mark notification read", err))
		return
	}
	if !found {
		httpkit.WriteError(w, serviceerr.NotFound("notification", idStr))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		httpkit.WriteError(w, serviceerr.InvalidInput("invalid analysis id"))
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *handler) writeGetErr(w http.ResponseWriter, err error, resource, id string) {
	if errors.Is(err, jobstore.ErrNotFound) {
		httpkit.WriteError(w, serviceerr.NotFound(resource, id))
		return
	}
	h.log.WithError(err).WithField("id", id).Error("failed to load " + resource)
	httpkit.WriteError(w, serviceerr.Internal("failed to load "+resource, err))
}

func detectUploadContentType(raw string) string {
	if raw == "" {
		return "application/octet-stream"
	}
	if parsed, _, err := mime.ParseMediaType(raw); err == nil {
		return parsed
	}
	return raw
}

