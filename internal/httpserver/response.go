package httpserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"groupchat/internal/domain"
	"groupchat/internal/logger"
)

// envelope is the uniform body of every API response.
type envelope struct {
	Success    bool   `json:"success"`
	Describe   string `json:"describe"`
	StatusCode int    `json:"status_code"`
	Content    any    `json:"content"`
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeOK(w http.ResponseWriter, status int, content any) {
	writeJSON(w, status, envelope{
		Success:    true,
		Describe:   http.StatusText(status),
		StatusCode: status,
		Content:    content,
	})
}

// writeError maps err onto the taxonomy. Only the taxonomy description is
// sent; the underlying error is logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Log.Error("http_request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, envelope{
		Success:    false,
		Describe:   domain.Describe(err),
		StatusCode: status,
		Content:    map[string]string{"kind": string(kind)},
	})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindNotParticipant, domain.KindPermissionDenied, domain.KindNotSender:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyDeleted, domain.KindAlreadyRevoked, domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}
