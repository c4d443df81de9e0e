// Package analyzerapi implements the analyzer's single HTTP surface (C5):
// a multipart upload in, a ThreatReport out. Grounded on the teacher's
// internal/app/httpapi/handler.go handler-struct-plus-mux shape, rebuilt
// on github.com/go-chi/chi/v5 (declared but never mounted by the teacher's
// own stdlib-ServeMux router — first real use here).
package analyzerapi

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LucasBiason/threat-modeling-ai/internal/pipeline"
	"github.com/LucasBiason/threat-modeling-ai/pkg/httpkit"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
	"github.com/LucasBiason/threat-modeling-ai/pkg/serviceerr"
)

// defaultMaxUploadBytes is the spec's default 10 MiB cap, overridable via
// Config.
const defaultMaxUploadBytes = 10 * 1024 * 1024

var defaultAllowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Config controls upload limits for the /analyze endpoint.
type Config struct {
	MaxUploadBytes int64
	AllowedTypes   map[string]bool
}

func (c Config) normalize() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = defaultAllowedTypes
	}
	return c
}

type handler struct {
	pipeline *pipeline.Pipeline
	cfg      Config
	log      *logger.Logger
}

// NewRouter builds the chi router exposing POST /api/v1/threat-model/analyze.
func NewRouter(p *pipeline.Pipeline, cfg Config, log *logger.Logger) http.Handler {
	h := &handler{pipeline: p, cfg: cfg.normalize(), log: log}
	r := chi.NewRouter()
	r.Post("/api/v1/threat-model/analyze", h.analyze)
	r.Get("/health", healthOK)
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)
	return r
}

func healthOK(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyze accepts a multipart image upload, runs it through the pipeline,
// and returns the aggregated ThreatReport. confidence/iou are accepted and
// parsed for forward compatibility but are not yet consumed by any stage.
func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
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

	contentType := detectContentType(header)
	if !h.cfg.AllowedTypes[contentType] {
		httpkit.WriteError(w, serviceerr.UnsupportedMedia(contentType))
		return
	}

	_, _ = parseOptionalFloat(r.FormValue("confidence"))
	_, _ = parseOptionalFloat(r.FormValue("iou"))

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		httpkit.WriteError(w, serviceerr.InvalidInput("failed to read uploaded file"))
		return
	}

	report, err := h.pipeline.Run(r.Context(), imageBytes)
	if err != nil {
		var rejected *pipeline.RejectedError
		if errors.As(err, &rejected) {
			httpkit.WriteError(w, serviceerr.GuardrailRejected(rejected.Error()))
			return
		}
		h.log.WithError(err).Error("pipeline run failed")
		httpkit.WriteError(w, serviceerr.ProviderFailure(err))
		return
	}

	httpkit.WriteJSON(w, http.StatusOK, report)
}

func detectContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			return parsed
		}
		return ct
	}
	return "application/octet-stream"
}

func parseOptionalFloat(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
