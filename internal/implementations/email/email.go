package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// ReminderTemplate is the SES template reminders are rendered with. Every
// part may reference the {{text}} variable.
type ReminderTemplate struct {
	Subject string
	HTML    string
	Text    string
}

type EmailSender struct {
	ses *ses.Client
	// This address must be verified with Amazon SES.
	sender       string
	templateName string
}

func NewEmailSender(
	awsConfig aws.Config,
	sender string,
	templateName string,
) *EmailSender {
	return &EmailSender{
		ses:          ses.NewFromConfig(awsConfig),
		sender:       sender,
		templateName: templateName,
	}
}

func (s *EmailSender) SendReminder(ctx context.Context, email string, text string) error {
	templateData, err := json.Marshal(reminderTemplateData{Text: text})
	if err != nil {
		return err
	}

	_, err = s.ses.SendTemplatedEmail(
		ctx,
		&ses.SendTemplatedEmailInput{
			Source: aws.String(s.sender),
			Destination: &types.Destination{
				ToAddresses: []string{email},
			},
			Template:     aws.String(s.templateName),
			TemplateData: aws.String(string(templateData)),
		},
	)
	if err != nil {
		return fmt.Errorf("could not send reminder email: %w", err)
	}
	return nil
}

// CreateReminderTemplate creates the template, or replaces it when a
// template with the same name already exists.
func (s *EmailSender) CreateReminderTemplate(ctx context.Context, template ReminderTemplate) error {
	sesTemplate := &types.Template{
		TemplateName: aws.String(s.templateName),
		SubjectPart:  aws.String(template.Subject),
		HtmlPart:     aws.String(template.HTML),
		TextPart:     aws.String(template.Text),
	}

	_, err := s.ses.CreateTemplate(ctx, &ses.CreateTemplateInput{Template: sesTemplate})
	var exists *types.AlreadyExistsException
	if errors.As(err, &exists) {
		_, err = s.ses.UpdateTemplate(ctx, &ses.UpdateTemplateInput{Template: sesTemplate})
	}
	if err != nil {
		return fmt.Errorf("could not create template %s: %w", s.templateName, err)
	}
	return nil
}

func (s *EmailSender) DeleteReminderTemplate(ctx context.Context) error {
	_, err := s.ses.DeleteTemplate(ctx, &ses.DeleteTemplateInput{TemplateName: aws.String(s.templateName)})
	if err != nil {
		return fmt.Errorf("could not delete template %s: %w", s.templateName, err)
	}
	return nil
}

type reminderTemplateData struct {
	Text string `json:"text"`
}
