package handlers

import (
	"fmt"
	"net/http"

	"github.com/vidfriends/watchparty/internal/access"
	"github.com/vidfriends/watchparty/internal/apierr"
	"github.com/vidfriends/watchparty/internal/auth"
	"github.com/vidfriends/watchparty/internal/logging"
)

const (
	// maxUploadBytes bounds a single media upload.
	maxUploadBytes = 512 << 20
	// uploadMemoryBytes is how much of a multipart form is buffered before
	// spilling to temporary files.
	uploadMemoryBytes = 32 << 20
)

// UploadHandler accepts admin media uploads and stores them in the object store.
type UploadHandler struct {
	Media  MediaStorage
	Admins AdminChecker
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Create handles POST /api/v1/uploads with a multipart "file" field.
func (h UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Media == nil {
		respondError(ctx, w, apierr.ErrUnavailable)
		return
	}

	identity := auth.IdentityFromContext(ctx)
	isAdmin, err := h.Admins.IsAdmin(ctx, identity.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if err := access.RequireAdmin(identity, isAdmin); err != nil {
		respondError(ctx, w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(uploadMemoryBytes); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: %v", apierr.ErrInvalidInput, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(ctx, w, fmt.Errorf("%w: %v", apierr.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	ctx, span := logging.StartSpan(ctx, "uploads.save")
	span.Annotate("filename", header.Filename, "size", header.Size)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := h.Media.Save(ctx, header.Filename, contentType, file)
	span.End(err)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, uploadResponse{URL: url})
}
