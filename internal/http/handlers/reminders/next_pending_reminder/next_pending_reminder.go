package nextpendingreminder

import (
	"net/http"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	service "repeatme/internal/core/services/next_pending_reminder"
	"repeatme/internal/http/handlers/response"

	"github.com/go-chi/chi/v5"
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
	result, err := h.service.Run(
		r.Context(),
		service.Input{OwnerID: reminder.OwnerID(chi.URLParam(r, "ownerID"))},
	)
	if err != nil {
		response.RenderServiceError(rw, err)
		return
	}
	if !result.Reminder.IsPresent {
		response.RenderError(rw, "no pending reminders", http.StatusNotFound)
		return
	}

	var next response.Reminder
	next.FromDomainType(result.Reminder.Value, h.projector)
	response.Render(rw, Result{Reminder: next}, http.StatusOK)
}
