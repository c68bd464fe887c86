package submitreminders

import (
	"context"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"repeatme/internal/telemetry"
	"time"

	"github.com/google/uuid"
)

type Input struct {
	OwnerID reminder.OwnerID
	Payload string
}

func (i Input) Validate() error {
	if err := reminder.ValidateOwner(i.OwnerID); err != nil {
		return err
	}
	return reminder.ValidatePayload(i.Payload)
}

func (i Input) GetRateLimitKey() string {
	return "submitReminders::" + string(i.OwnerID)
}

type Result struct {
	Reminders []reminder.Reminder
}

type service struct {
	log     logging.Logger
	store   reminder.Store
	offsets []reminder.Offset
	now     func() time.Time
}

func New(
	log logging.Logger,
	store reminder.Store,
	offsets []reminder.Offset,
	now func() time.Time,
) services.Service[Input, Result] {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if store == nil {
		panic(e.NewNilArgumentError("store"))
	}
	if now == nil {
		panic(e.NewNilArgumentError("now"))
	}
	if err := reminder.ValidateOffsets(offsets); err != nil {
		panic(e.NewInvalidArgumentError("offsets", err.Error()))
	}
	return &service{
		log:     log,
		store:   store,
		offsets: append([]reminder.Offset(nil), offsets...),
		now:     now,
	}
}

func (s *service) Run(ctx context.Context, input Input) (result Result, err error) {
	if err := input.Validate(); err != nil {
		return result, err
	}

	createInput := reminder.CreateInput{
		OwnerID:      input.OwnerID,
		SubmissionID: uuid.New(),
		Payload:      input.Payload,
		Offsets:      s.offsets,
		CreatedAt:    clock.Normalize(s.now()),
	}
	reminders, err := s.store.CreateReminders(ctx, createInput)
	if err != nil {
		logging.Error(ctx, s.log, err, logging.Entry("owner", input.OwnerID))
		return result, err
	}

	telemetry.RemindersSubmitted.Add(float64(len(reminders)))
	s.log.Info(
		ctx,
		"Reminders successfully submitted.",
		logging.Entry("owner", input.OwnerID),
		logging.Entry("submission", createInput.SubmissionID),
		logging.Entry("count", len(reminders)),
	)
	result.Reminders = reminders
	return result, nil
}
