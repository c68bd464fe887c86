package services

import (
	"repeatme/internal/app/deps"
	drl "repeatme/internal/core/domain/rate_limiter"
	"repeatme/internal/core/services"
	cancelreminder "repeatme/internal/core/services/cancel_reminder"
	dispatchreminders "repeatme/internal/core/services/dispatch_reminders"
	getreminder "repeatme/internal/core/services/get_reminder"
	listpendingreminders "repeatme/internal/core/services/list_pending_reminders"
	nextpendingreminder "repeatme/internal/core/services/next_pending_reminder"
	ratelimiting "repeatme/internal/core/services/rate_limiting"
	submitreminders "repeatme/internal/core/services/submit_reminders"
)

type Services struct {
	SubmitReminders      services.Service[submitreminders.Input, submitreminders.Result]
	ListPendingReminders services.Service[listpendingreminders.Input, listpendingreminders.Result]
	NextPendingReminder  services.Service[nextpendingreminder.Input, nextpendingreminder.Result]
	GetReminder          services.Service[getreminder.Input, getreminder.Result]
	CancelReminder       services.Service[cancelreminder.Input, cancelreminder.Result]
	DispatchReminders    services.Service[dispatchreminders.Input, dispatchreminders.Result]
}

func InitServices(deps *deps.Deps) *Services {
	s := &Services{}

	s.SubmitReminders = ratelimiting.WithRateLimiting(
		deps.Logger,
		deps.RateLimiter,
		drl.Limit{Interval: drl.Hour, Value: deps.Config.SubmitRateLimitPerHour},
		submitreminders.New(
			deps.Logger,
			deps.ReminderStore,
			deps.Config.ReminderOffsets,
			deps.Now,
		),
	)
	s.ListPendingReminders = listpendingreminders.New(
		deps.Logger,
		deps.ReminderStore,
		deps.Now,
	)
	s.NextPendingReminder = nextpendingreminder.New(
		deps.Logger,
		deps.ReminderStore,
		deps.Now,
	)
	s.GetReminder = getreminder.New(
		deps.Logger,
		deps.ReminderStore,
		deps.Now,
	)
	s.CancelReminder = cancelreminder.New(
		deps.Logger,
		deps.ReminderStore,
		deps.Now,
	)
	s.DispatchReminders = dispatchreminders.New(
		deps.Logger,
		deps.ReminderStore,
		deps.Notifier,
		deps.Config.Dispatch(),
		deps.Now,
	)

	return s
}
