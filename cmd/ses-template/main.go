// Command ses-template manages the SES template used by the email transport.
//
//	ses-template create
//	ses-template delete
//	ses-template send <address> <text>
package main

import (
	"context"
	"fmt"
	"os"
	"repeatme/internal/config"
	"repeatme/internal/implementations/email"
	remindersender "repeatme/internal/implementations/reminder_sender"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	reminderSubject = "Time to review"
	reminderHTML    = "<p>🔁 Time to review:</p><p>📘 {{text}}</p>"
)

func main() {
	if len(os.Args) < 2 {
		exit(fmt.Errorf("usage: %s create|delete|send <address> <text>", os.Args[0]))
	}

	cfg, err := config.Load()
	if err != nil {
		exit(err)
	}
	if !cfg.IsEmailEnabled() {
		exit(fmt.Errorf("AWS_REGION, AWS_EMAIL_SENDER and AWS_EMAIL_REMINDER_TEMPLATE must be set"))
	}
	awsCfg, err := loadAwsConfig(cfg)
	if err != nil {
		exit(err)
	}

	sender := email.NewEmailSender(awsCfg, cfg.AwsEmailSender, cfg.AwsEmailReminderTemplate)
	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		err = sender.CreateReminderTemplate(ctx, email.ReminderTemplate{
			Subject: reminderSubject,
			HTML:    reminderHTML,
			Text:    remindersender.ReminderText("{{text}}"),
		})
	case "delete":
		err = sender.DeleteReminderTemplate(ctx)
	case "send":
		if len(os.Args) != 4 {
			exit(fmt.Errorf("usage: %s send <address> <text>", os.Args[0]))
		}
		err = sender.SendReminder(ctx, os.Args[2], os.Args[3])
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		exit(err)
	}
	fmt.Println("Success.")
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func loadAwsConfig(cfg *config.Config) (aws.Config, error) {
	return awsConfig.LoadDefaultConfig(
		context.Background(),
		awsConfig.WithRegion(cfg.AwsRegion),
		awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AwsAccessKey,
				cfg.AwsSecretKey,
				"",
			),
		),
	)
}
