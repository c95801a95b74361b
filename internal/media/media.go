// Package media stores uploaded files. Keys are flat names; the store
// decides where the bytes live and which URL serves them.
package media

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"groupchat/internal/domain"
)

// Store is the object storage collaborator used for avatars and attachments.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (url string, err error)
	Get(ctx context.Context, key string) (body io.ReadCloser, contentType string, err error)
	Exists(ctx context.Context, key string) (bool, error)
}

// NewKey returns a fresh object key that keeps the extension of filename.
func NewKey(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 10 {
		return "", domain.ErrInvalidRequest
	}
	return uuid.NewString() + ext, nil
}

// ValidKey rejects keys that could escape the store's namespace.
func ValidKey(key string) bool {
	return key != "" && key != "." && key != ".." && filepath.Base(key) == key && !strings.ContainsAny(key, `/\`)
}

// ContentType returns the declared type or guesses one from the key.
func ContentType(key, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(filepath.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}
