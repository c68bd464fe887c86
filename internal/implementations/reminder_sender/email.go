package remindersender

import (
	"context"
	"errors"
	"repeatme/internal/core/domain/reminder"

	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type EmailReminderSender interface {
	SendReminder(ctx context.Context, email string, text string) error
}

type EmailSender struct {
	emailSender EmailReminderSender
}

// NewEmail returns a transport that fails permanently when emailSender is
// nil, which is the case when SES is not configured.
func NewEmail(emailSender EmailReminderSender) *EmailSender {
	return &EmailSender{emailSender: emailSender}
}

func (s *EmailSender) Deliver(ctx context.Context, address string, payload string) error {
	if s.emailSender == nil {
		return reminder.PermanentFailure(errors.New("email transport is not configured"))
	}
	if err := validation.Validate(address, validation.Required, is.Email); err != nil {
		return reminder.PermanentFailure(err)
	}

	err := s.emailSender.SendReminder(ctx, address, payload)
	var rejected *types.MessageRejected
	var notVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &rejected) || errors.As(err, &notVerified) {
		return reminder.PermanentFailure(err)
	}
	return err
}
