package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/webring/internal/photos"
)

// PhotoHandler serves and accepts profile photos.
type PhotoHandler struct {
	store *photos.Store
}

// NewPhotoHandler creates a handler over store.
func NewPhotoHandler(store *photos.Store) *PhotoHandler {
	return &PhotoHandler{store: store}
}

// ServeFile handles GET /photos/{filename}.
func (h *PhotoHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	data, err := h.store.Read(name)
	if err != nil {
		writeError(w, r, "serve photo", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

// List handles GET /admin/photos.
//
//	@Summary	List stored profile photos
//	@Tags		photos
//	@Produce	json
//	@Success	200	{object}	PhotosResponse
//	@Router		/admin/photos [get]
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List()
	if err != nil {
		writeError(w, r, "list photos", err)
		return
	}
	writeJSON(w, http.StatusOK, PhotosResponse{Photos: list})
}

// Upload handles POST /admin/photos (multipart/form-data, field "file").
// An optional "id" field names the file after a member id, keeping the
// uploaded extension.
//
//	@Summary	Upload a profile photo
//	@Tags		photos
//	@Accept		mpfd
//	@Produce	json
//	@Success	201	{object}	PhotoUploadResponse
//	@Failure	400	{object}	errResponse
//	@Router		/admin/photos [post]
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, photos.MaxBytes+(64<<10))

	if err := r.ParseMultipartForm(photos.MaxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, photos.MaxBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	p, err := h.store.Save(header.Filename, strings.TrimSpace(r.FormValue("id")), data)
	if err != nil {
		writeError(w, r, "upload photo", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
