package remindersender

import (
	"context"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
)

// LogSender only logs reminders. It is the transport of the test mode.
type LogSender struct {
	log logging.Logger
}

func NewLog(log logging.Logger) *LogSender {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	return &LogSender{log: log}
}

func (s *LogSender) Deliver(ctx context.Context, address string, payload string) error {
	s.log.Info(
		ctx,
		"Reminder has been logged.",
		logging.Entry("address", address),
		logging.Entry("payload", payload),
	)
	return nil
}
