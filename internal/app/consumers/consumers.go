package consumers

import (
	"context"
	"repeatme/internal/app/deps"
	"repeatme/internal/app/services"
	dl "repeatme/internal/core/domain/logging"
	remindersubmitted "repeatme/internal/rabbitmq/consumers/reminder_submitted"
)

func initReminderSubmittedConsumer(deps *deps.Deps, services *services.Services) func() {
	rabbitmqChannel, err := deps.Rabbitmq.Channel()
	if err != nil {
		deps.Logger.Error(context.Background(), "Could not create RabbitMQ channel.", dl.Entry("err", err))
		panic(err)
	}

	queue := deps.Config.RabbitmqReminderSubmittedQueue
	if err := rabbitmqChannel.DeclareQueue(queue); err != nil {
		deps.Logger.Error(context.Background(), "Could not create RabbitMQ queue.", dl.Entry("err", err))
		panic(err)
	}

	reminderSubmittedConsumer := remindersubmitted.New(
		deps.Logger,
		rabbitmqChannel,
		queue,
		services.SubmitReminders,
	)
	if err = reminderSubmittedConsumer.Consume(); err != nil {
		deps.Logger.Error(
			context.Background(),
			"Could not start RabbitMQ consuming.",
			dl.Entry("err", err),
			dl.Entry("queue", queue),
		)
		panic(err)
	}

	deps.Logger.Info(context.Background(), "Consumer has started.", dl.Entry("queue", queue))
	return func() { rabbitmqChannel.Close() }
}

// InitConsumers starts broker consumers. Without a RabbitMQ connection
// submissions are accepted over HTTP only.
func InitConsumers(deps *deps.Deps, services *services.Services) func() {
	if deps.Rabbitmq == nil {
		deps.Logger.Info(context.Background(), "RabbitMQ is not configured, consumers are disabled.")
		return func() {}
	}

	shutdownReminderSubmittedConsumer := initReminderSubmittedConsumer(deps, services)

	return func() {
		shutdownReminderSubmittedConsumer()
	}
}
