package httpserver

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"groupchat/internal/domain"
	"groupchat/internal/logger"
	"groupchat/internal/media"
)

const maxUploadBytes = 50 << 20

// UploadRoutes returns a sub-router mounted at /api/uploads.
//   - POST /      stores a multipart "file" field and returns a domain.File
//   - GET /{key}  streams a stored object
func UploadRoutes(store media.Store) chi.Router {
	r := chi.NewRouter()

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeError(w, r, domain.ErrInvalidRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, domain.ErrInvalidRequest)
			return
		}
		defer file.Close()

		key, err := media.NewKey(header.Filename)
		if err != nil {
			writeError(w, r, err)
			return
		}
		contentType := media.ContentType(key, header.Header.Get("Content-Type"))
		url, err := store.Put(r.Context(), key, file, header.Size, contentType)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeOK(w, http.StatusCreated, domain.File{
			URL:         url,
			Name:        header.Filename,
			ContentType: contentType,
			Size:        header.Size,
		})
	})

	r.Get("/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !media.ValidKey(key) {
			writeError(w, r, domain.ErrInvalidRequest)
			return
		}
		body, contentType, err := store.Get(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=86400")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			logger.Log.Warn("upload_stream_failed", zap.String("key", key), zap.Error(err))
		}
	})

	return r
}
