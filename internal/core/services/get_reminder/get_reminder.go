package getreminder

import (
	"context"
	"errors"
	"repeatme/internal/core/domain/clock"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"time"
)

type Input struct {
	ReminderID reminder.ID
}

type Result struct {
	Reminder reminder.PendingReminder
}

type service struct {
	log   logging.Logger
	store reminder.Store
	now   func() time.Time
}

func New(
	log logging.Logger,
	store reminder.Store,
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
	return &service{log: log, store: store, now: now}
}

func (s *service) Run(ctx context.Context, input Input) (result Result, err error) {
	r, err := s.store.GetByID(ctx, input.ReminderID)
	if errors.Is(err, reminder.ErrReminderDoesNotExist) {
		return result, err
	}
	if err != nil {
		logging.Error(ctx, s.log, err, logging.Entry("reminderID", input.ReminderID))
		return result, err
	}
	result.Reminder = reminder.NewPendingReminder(r, clock.Normalize(s.now()))
	return result, nil
}
