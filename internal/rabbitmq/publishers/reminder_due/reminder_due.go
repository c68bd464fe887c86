package reminderdue

import (
	"context"
	"fmt"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	"repeatme/internal/rabbitmq/schema"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Channel interface {
	PublishWithContext(
		ctx context.Context,
		exchange string,
		key string,
		mandatory bool,
		immediate bool,
		msg amqp091.Publishing,
	) error
}

// RabbitMQ hands due reminders over to an external transport service.
type RabbitMQ struct {
	log        logging.Logger
	channel    Channel
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewRabbitMQ(
	log logging.Logger,
	channel Channel,
	exchange string,
	routingKey string,
	now func() time.Time,
) *RabbitMQ {
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if channel == nil {
		panic(e.NewNilArgumentError("channel"))
	}
	if now == nil {
		panic(e.NewNilArgumentError("now"))
	}
	return &RabbitMQ{log: log, channel: channel, exchange: exchange, routingKey: routingKey, now: now}
}

func (s *RabbitMQ) Deliver(ctx context.Context, address string, payload string) error {
	message := schema.ReminderDue{Recipient: address, Payload: payload, PublishedAt: s.now().UTC()}
	body, err := message.Marshal()
	if err != nil {
		return err
	}

	err = s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    message.PublishedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("could not publish due reminder: %w", err)
	}
	s.log.Info(
		ctx,
		"AMQP message has been successfully published.",
		logging.Entry("exchange", s.exchange),
		logging.Entry("RK", s.routingKey),
		logging.Entry("recipient", address),
	)
	return nil
}
