package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"paper-trade-go/internal/apperror"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *Handler) success(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, Response{Status: "success", Data: data})
}

func (h *Handler) created(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, Response{Status: "success", Data: data})
}

func (h *Handler) message(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, Response{Status: "success", Message: message})
}

// fail maps err to a status code and writes it. Validation errors list the
// offending fields, application errors carry their own status and message, and
// anything else is logged and reported as an internal error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]FieldError, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, FieldError{Field: fe.Field(), Message: fe.Error()})
		}
		h.writeJSON(w, http.StatusBadRequest, Response{Status: "error", Message: "invalid request", Error: fields})
		return
	}

	var ae apperror.Error
	if errors.As(err, &ae) {
		h.writeJSON(w, ae.StatusCode, Response{Status: "error", Message: ae.Message})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.writeJSON(w, http.StatusGatewayTimeout, Response{Status: "error", Message: "request timed out"})
		return
	}

	h.logger.Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	h.writeJSON(w, http.StatusInternalServerError, Response{Status: "error", Message: "internal server error"})
}

var errInvalidBody = apperror.New(http.StatusBadRequest, "invalid request body")

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	return h.validate.Struct(v)
}
