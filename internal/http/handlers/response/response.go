package response

import (
	"encoding/json"
	"errors"
	"net/http"
	ratelimiter "repeatme/internal/core/domain/rate_limiter"
	"repeatme/internal/core/domain/reminder"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

func RenderInternalError(rw http.ResponseWriter) {
	RenderError(rw, "internal error", http.StatusInternalServerError)
}

func RenderRateLimitExceeded(rw http.ResponseWriter) {
	RenderError(rw, "rate limit exceeded", http.StatusTooManyRequests)
}

// RenderServiceError maps an error returned by a reminder service to a status.
func RenderServiceError(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ratelimiter.ErrRateLimitExceeded):
		RenderRateLimitExceeded(rw)
	case errors.Is(err, reminder.ErrReminderDoesNotExist):
		RenderError(rw, err.Error(), http.StatusNotFound)
	case reminder.IsInvalidInput(err):
		RenderError(rw, err.Error(), http.StatusBadRequest)
	default:
		RenderInternalError(rw)
	}
}

func RenderError(rw http.ResponseWriter, msg string, status int) {
	Render(rw, errorResponse{Error: msg}, status)
}

func Render(rw http.ResponseWriter, res interface{}, status int) {
	rw.Header().Set("Content-Type", "application/json")

	content, err := json.Marshal(res)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(status)
	rw.Write(content)
}

// ReminderID reads the reminderID URL parameter. On failure it renders 400
// and returns false.
func ReminderID(rw http.ResponseWriter, r *http.Request) (reminder.ID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reminderID"), 10, 64)
	if err != nil || id <= 0 {
		RenderError(rw, "invalid reminder ID", http.StatusBadRequest)
		return 0, false
	}
	return reminder.ID(id), true
}
