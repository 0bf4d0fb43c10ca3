package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
)

// ConfirmHeader must be "true" on destructive requests.
const ConfirmHeader = "X-Confirm"

type errorResponse struct {
	Error    string          `json:"error"`
	Field    string          `json:"field,omitempty"`
	Rejected []rejectedPhoto `json:"rejected,omitempty"`
}

// rejectedPhoto reports one upload the intake refused.
type rejectedPhoto struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

func rejectedPhotos(rejected []*domain.UploadRejectedError) []rejectedPhoto {
	out := make([]rejectedPhoto, 0, len(rejected))
	for _, r := range rejected {
		out = append(out, rejectedPhoto{File: r.File, Reason: string(r.Reason), Error: domain.UserMessage(r)})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTML(w http.ResponseWriter, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// statusFor maps core errors onto HTTP statuses.
func statusFor(err error) int {
	var ve *domain.ValidationError
	var ue *domain.UploadRejectedError
	switch {
	case errors.As(err, &ve), errors.As(err, &ue):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidInitData):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrNoContact):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, domain.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := h.errorBody(r, err)
	writeJSON(w, status, resp)
}

func (h *Handler) errorBody(r *http.Request, err error) (int, errorResponse) {
	status := statusFor(err)
	resp := errorResponse{Error: domain.UserMessage(err)}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		resp.Error = "Внутренняя ошибка сервера"
	}
	return status, resp
}

func productIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrProductNotFound
	}
	return id, nil
}

func confirmed(r *http.Request) bool {
	v, err := strconv.ParseBool(r.Header.Get(ConfirmHeader))
	return err == nil && v
}
