package nextpendingreminder

import (
	"context"
	"repeatme/internal/core/domain/clock"
	c "repeatme/internal/core/domain/common"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	"time"
)

type Input struct {
	OwnerID reminder.OwnerID
}

type Result struct {
	Reminder c.Optional[reminder.PendingReminder]
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
	if err := reminder.ValidateOwner(input.OwnerID); err != nil {
		return result, err
	}

	next, err := s.store.NextPending(ctx, input.OwnerID)
	if err != nil {
		logging.Error(ctx, s.log, err, logging.Entry("owner", input.OwnerID))
		return result, err
	}
	if next.IsPresent {
		result.Reminder = c.NewOptional(reminder.NewPendingReminder(next.Value, clock.Normalize(s.now())), true)
	}
	return result, nil
}
