package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sisirapr/doc-qa-system/internal/core/domain"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch domain.Code(err) {
	case domain.ErrEmptyDocument.Code,
		domain.ErrInvalidChunkSize.Code,
		domain.ErrInvalidChunkOverlap.Code,
		domain.ErrInvalidInput.Code:
		return http.StatusBadRequest
	case domain.ErrUnsupportedFormat.Code:
		return http.StatusUnsupportedMediaType
	case domain.ErrAuthenticationFailed.Code:
		return http.StatusUnauthorized
	case domain.ErrDocumentNotFound.Code:
		return http.StatusNotFound
	case domain.ErrRateLimited.Code:
		return http.StatusTooManyRequests
	case domain.ErrCircuitOpen.Code, domain.ErrTemporary.Code:
		return http.StatusServiceUnavailable
	case domain.ErrEmbedding.Code, domain.ErrVectorDB.Code, domain.ErrDocumentQA.Code:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	code := domain.Code(err)
	msg := err.Error()

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status, code = http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"code", code,
			"error", msg,
		)
	}
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeErrorMessage(w, r, status, code, msg)
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	w.Header().Set(errorCodeHeader, code)
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
