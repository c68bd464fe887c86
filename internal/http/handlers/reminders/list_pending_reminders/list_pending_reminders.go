package listpendingreminders

import (
	"net/http"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	service "repeatme/internal/core/services/list_pending_reminders"
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
	Reminders []response.Reminder `json:"reminders"`
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

	response.Render(rw, Result{Reminders: response.FromDomainTypes(result.Reminders, h.projector)}, http.StatusOK)
}
