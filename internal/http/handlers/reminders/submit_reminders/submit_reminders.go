package submitreminders

import (
	"encoding/json"
	"io"
	"net/http"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	service "repeatme/internal/core/services/submit_reminders"
	"repeatme/internal/http/handlers/response"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
)

type Handler struct {
	service   services.Service[service.Input, service.Result]
	projector *clock.Projector
	now       func() time.Time
}

func New(
	service services.Service[service.Input, service.Result],
	projector *clock.Projector,
	now func() time.Time,
) *Handler {
	if service == nil {
		panic(e.NewNilArgumentError("service"))
	}
	if projector == nil {
		panic(e.NewNilArgumentError("projector"))
	}
	if now == nil {
		panic(e.NewNilArgumentError("now"))
	}
	return &Handler{service: service, projector: projector, now: now}
}

type Input struct {
	Payload string `json:"payload"`
}

type Result struct {
	Reminders []response.Reminder `json:"reminders"`
}

func (i *Input) FromJSON(r io.Reader) error {
	e := json.NewDecoder(r)
	return e.Decode(i)
}

func (i Input) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Payload, validation.Required),
	)
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	input := Input{}
	if err := input.FromJSON(r.Body); err != nil {
		response.RenderError(rw, "invalid request data", http.StatusBadRequest)
		return
	}
	if err := input.Validate(); err != nil {
		response.Render(rw, err, http.StatusBadRequest)
		return
	}

	result, err := h.service.Run(
		r.Context(),
		service.Input{OwnerID: reminder.OwnerID(chi.URLParam(r, "ownerID")), Payload: input.Payload},
	)
	if err != nil {
		response.RenderServiceError(rw, err)
		return
	}

	now := clock.Normalize(h.now())
	pending := make([]reminder.PendingReminder, 0, len(result.Reminders))
	for _, created := range result.Reminders {
		pending = append(pending, reminder.NewPendingReminder(created, now))
	}
	response.Render(
		rw,
		Result{Reminders: response.FromDomainTypes(pending, h.projector)},
		http.StatusCreated,
	)
}
