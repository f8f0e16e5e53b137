package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/internal/notify"
	"github.com/herodrop/rewards-service/internal/prompt"
	"github.com/herodrop/rewards-service/internal/store"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidTransition),
		errors.Is(err, store.ErrInvalidStatus),
		errors.Is(err, store.ErrDuplicateCode):
		return http.StatusConflict
	case errors.Is(err, prompt.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, notify.ErrDispatchFailed), errors.Is(err, prompt.ErrSchemaValidation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err under endpoint and writes the mapped response.
// Internal errors are not echoed to the caller.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		resp.Field = fieldErr.Field
	}
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		resp.Error = "Internal server error"
	case http.StatusServiceUnavailable:
		h.logger.Warn("request failed", zap.String("endpoint", endpoint), zap.String("outcome", "model_unavailable"), zap.Error(err))
		resp.Error = "The assistant is unavailable. Please try again later."
	default:
		h.logger.Info("request rejected", zap.String("endpoint", endpoint), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}
