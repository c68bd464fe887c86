package cancelreminder

import (
	"net/http"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	service "repeatme/internal/core/services/cancel_reminder"
	"repeatme/internal/http/handlers/response"
)

type Handler struct {
	service   services.Service[service.Input, service.Result]
	projector *clock.Projector
}

func New(
	service services.Service[service.Input, service.Result],
	projector *clock.Projector,
) *Handler {
	if service == nil {
		panic(e.NewNilArgumentError("service"))
	}
	if projector == nil {
		panic(e.NewNilArgumentError("projector"))
	}
	return &Handler{service: service, projector: projector}
}

type Result struct {
	Reminder response.Reminder `json:"reminder"`
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	reminderID, ok := response.ReminderID(rw, r)
	if !ok {
		return
	}

	result, err := h.service.Run(r.Context(), service.Input{ReminderID: reminderID})
	if err != nil {
		response.RenderServiceError(rw, err)
		return
	}

	// A cancelled reminder is terminal, nothing remains until it is due.
	var canceled response.Reminder
	canceled.FromDomainType(reminder.PendingReminder{Reminder: result.Reminder}, h.projector)
	response.Render(rw, Result{Reminder: canceled}, http.StatusOK)
}
