package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

// MediaAdminStore is the repository slice needed by the admin surface.
type MediaAdminStore interface {
	GetMediaFile(ctx context.Context, id uuid.UUID) (*media.File, error)
	DeleteMediaFile(ctx context.Context, id uuid.UUID) error
}

// AdminMediaHandler exposes the administrative delete for stored media.
// Users never hit this; it exists for operator cleanup.
type AdminMediaHandler struct {
	store  MediaAdminStore
	blobs  media.BlobStore
	logger *logging.Logger
}

func NewAdminMediaHandler(store MediaAdminStore, blobs media.BlobStore, logger *logging.Logger) *AdminMediaHandler {
	if store == nil {
		panic("handlers: media store cannot be nil")
	}
	if blobs == nil {
		panic("handlers: blob store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminMediaHandler{store: store, blobs: blobs, logger: logger}
}

// DeleteMedia handles DELETE /admin/media/{id}. The metadata row goes first;
// a dangling blob is harmless, a dangling row is not.
func (h *AdminMediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid media id", http.StatusBadRequest)
		return
	}

	file, err := h.store.GetMediaFile(r.Context(), id)
	if err != nil {
		h.logger.Error("media lookup failed", "error", err, "media_id", id)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if file == nil {
		http.NotFound(w, r)
		return
	}

	if err := h.store.DeleteMediaFile(r.Context(), id); err != nil {
		h.logger.Error("media delete failed", "error", err, "media_id", id)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := h.blobs.Delete(r.Context(), file.StorageKey); err != nil {
		h.logger.Warn("blob delete failed after metadata delete", "error", err, "storage_key", file.StorageKey)
	}

	h.logger.Info("media deleted", "media_id", id, "storage_key", file.StorageKey)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted", "id": id.String()})
}
