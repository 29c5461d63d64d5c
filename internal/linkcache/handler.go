package linkcache

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/altiplano-labs/archivador/internal/observability/metrics"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

// Handler serves published files at GET /files/{token}.
type Handler struct {
	cache   Cache
	metrics *metrics.BotMetrics
	logger  *logging.Logger
}

func NewHandler(cache Cache, m *metrics.BotMetrics, logger *logging.Logger) *Handler {
	if cache == nil {
		panic("linkcache: cache cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{cache: cache, metrics: m, logger: logger}
}

func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		http.NotFound(w, r)
		return
	}

	data, err := h.cache.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.metrics.ObserveLinkResolve("miss")
			http.NotFound(w, r)
			return
		}
		h.metrics.ObserveLinkResolve("error")
		h.logger.Error("link resolve failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.metrics.ObserveLinkResolve("hit")

	w.Header().Set("Content-Type", SniffContentType(data))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SniffContentType identifies the payload by its leading magic bytes.
// Unrecognized content falls back to application/octet-stream.
func SniffContentType(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "image/jpeg"
	case len(data) >= 2 && data[0] == 0x89 && data[1] == 0x50:
		return "image/png"
	case len(data) >= 2 && data[0] == 0x47 && data[1] == 0x49:
		return "image/gif"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	case len(data) >= 2 && data[0] == 0x25 && data[1] == 0x50:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
