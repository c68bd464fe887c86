package remindersubmitted

import (
	"context"
	"errors"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	ratelimiter "repeatme/internal/core/domain/rate_limiter"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/core/services"
	submitreminders "repeatme/internal/core/services/submit_reminders"
	"repeatme/internal/rabbitmq/schema"

	"github.com/rabbitmq/amqp091-go"
)

type Channel interface {
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp091.Table,
	) (<-chan amqp091.Delivery, error)
}

type Consumer struct {
	log     logging.Logger
	channel Channel
	queue   string
	service services.Service[submitreminders.Input, submitreminders.Result]
}

func New(
	log logging.Logger,
	channel Channel,
	queue string,
	service services.Service[submitreminders.Input, submitreminders.Result],
) *Consumer {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if channel == nil {
		panic(e.NewNilArgumentError("channel"))
	}
	if queue == "" {
		panic("queue name must not be empty")
	}
	if service == nil {
		panic(e.NewNilArgumentError("service"))
	}

	return &Consumer{log: log, channel: channel, queue: queue, service: service}
}

// Consume handles submissions in the background until the channel is closed.
func (c *Consumer) Consume() error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		c.log.Error(context.Background(), "Could not start consuming.", logging.Entry("err", err))
		return err
	}

	go func() {
		for delivery := range deliveries {
			c.handle(context.Background(), delivery)
		}
	}()
	return nil
}

func (c *Consumer) handle(ctx context.Context, delivery amqp091.Delivery) {
	message := &schema.ReminderSubmitted{}
	if err := message.Unmarshal(delivery.Body); err != nil {
		c.log.Error(
			ctx,
			"Could not unmarshal submitted reminder.",
			logging.Entry("err", err),
			logging.Entry("body", string(delivery.Body)),
		)
		c.Ack(delivery)
		return
	}

	result, err := c.service.Run(
		ctx,
		submitreminders.Input{OwnerID: reminder.OwnerID(message.OwnerID), Payload: message.Payload},
	)
	switch {
	case err == nil:
		c.log.Info(
			ctx,
			"Submitted reminder has been consumed.",
			logging.Entry("owner", message.OwnerID),
			logging.Entry("count", len(result.Reminders)),
		)
		c.Ack(delivery)
	case isRejected(err):
		c.log.Warning(
			ctx,
			"Submitted reminder has been rejected.",
			logging.Entry("owner", message.OwnerID),
			logging.Entry("err", err),
		)
		c.Ack(delivery)
	default:
		c.log.Error(
			ctx,
			"Could not submit reminder, service returned an error.",
			logging.Entry("owner", message.OwnerID),
			logging.Entry("err", err),
		)
		c.Nack(delivery)
	}
}

func isRejected(err error) bool {
	return errors.Is(err, ratelimiter.ErrRateLimitExceeded) || reminder.IsInvalidInput(err)
}

func (c *Consumer) Ack(delivery amqp091.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.log.Error(context.Background(), "Could not ACK AMQP message.", logging.Entry("err", err))
	}
}

func (c *Consumer) Nack(delivery amqp091.Delivery) {
	if err := delivery.Nack(false, true); err != nil {
		c.log.Error(context.Background(), "Could not NACK AMQP message.", logging.Entry("err", err))
	}
}
