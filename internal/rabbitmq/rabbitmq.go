package rabbitmq

import (
	"context"
	"fmt"
	"repeatme/internal/core/domain/logging"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const reconnectDelay = 3 * time.Second

// Connection is an AMQP connection that is redialed when the broker drops it.
type Connection struct {
	log    logging.Logger
	lock   sync.RWMutex
	conn   *amqp.Connection
	closed atomic.Bool
}

func Dial(url string, log logging.Logger) (*Connection, error) {
	if log == nil {
		return nil, fmt.Errorf("log argument must not be nil")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	connection := &Connection{log: log, conn: conn}
	go connection.watch(url)
	return connection, nil
}

func (c *Connection) watch(url string) {
	for {
		c.lock.RLock()
		notify := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		c.lock.RUnlock()

		reason, ok := <-notify
		if !ok || c.closed.Load() {
			c.log.Info(context.Background(), "RabbitMQ connection closed.")
			return
		}

		c.log.Warning(context.Background(), "RabbitMQ connection lost.", logging.Entry("reason", reason.Error()))
		conn := redial(c.log, "connection", &c.closed, func() (*amqp.Connection, error) {
			return amqp.Dial(url)
		})
		if conn == nil {
			return
		}
		c.lock.Lock()
		c.conn = conn
		c.lock.Unlock()
	}
}

func (c *Connection) channel() (*amqp.Channel, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.conn.Channel()
}

// Channel opens a channel that is reopened whenever the broker closes it.
func (c *Connection) Channel() (*Channel, error) {
	ch, err := c.channel()
	if err != nil {
		return nil, err
	}

	channel := &Channel{log: c.log, ch: ch}
	go channel.watch(c)
	return channel, nil
}

func (c *Connection) Close() error {
	c.closed.Store(true)
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.conn.Close()
}

// Channel is an AMQP channel that survives broker side closes until Close
// is called.
type Channel struct {
	log    logging.Logger
	lock   sync.RWMutex
	ch     *amqp.Channel
	closed atomic.Bool
}

func (ch *Channel) watch(c *Connection) {
	for {
		ch.lock.RLock()
		notify := ch.ch.NotifyClose(make(chan *amqp.Error, 1))
		ch.lock.RUnlock()

		reason, ok := <-notify
		if !ok || ch.closed.Load() {
			return
		}

		ch.log.Warning(context.Background(), "RabbitMQ channel closed.", logging.Entry("reason", reason.Error()))
		reopened := redial(ch.log, "channel", &ch.closed, c.channel)
		if reopened == nil {
			return
		}
		ch.lock.Lock()
		ch.ch = reopened
		ch.lock.Unlock()
	}
}

func (ch *Channel) current() *amqp.Channel {
	ch.lock.RLock()
	defer ch.lock.RUnlock()
	return ch.ch
}

func (ch *Channel) IsClosed() bool {
	return ch.closed.Load()
}

func (ch *Channel) Close() error {
	if ch.closed.Swap(true) {
		return amqp.ErrClosed
	}
	return ch.current().Close()
}

func (ch *Channel) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	return ch.current().PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

// Consume keeps consuming across channel reopenings. The returned channel
// is closed only after Close.
func (ch *Channel) Consume(
	queue, consumer string,
	autoAck, exclusive, noLocal, noWait bool,
	args amqp.Table,
) (<-chan amqp.Delivery, error) {
	deliveries := make(chan amqp.Delivery)

	go func() {
		defer close(deliveries)
		for !ch.IsClosed() {
			d, err := ch.current().Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
			if err != nil {
				ch.log.Error(context.Background(), "Could not start consuming.", logging.Entry("queue", queue), logging.Entry("err", err))
				time.Sleep(reconnectDelay)
				continue
			}

			for msg := range d {
				deliveries <- msg
			}
			time.Sleep(reconnectDelay)
		}
		ch.log.Info(context.Background(), "Channel is closed, stop consuming.", logging.Entry("queue", queue))
	}()

	return deliveries, nil
}

// DeclareQueue declares a durable queue. The default exchange routes
// messages published with the queue name as routing key to it.
func (ch *Channel) DeclareQueue(name string) error {
	_, err := ch.current().QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("could not declare queue %s: %w", name, err)
	}
	return nil
}

// redial retries open until it succeeds. It gives up and returns nil once
// closed is set.
func redial[T any](log logging.Logger, what string, closed *atomic.Bool, open func() (*T, error)) *T {
	for {
		time.Sleep(reconnectDelay)
		if closed.Load() {
			return nil
		}

		value, err := open()
		if err == nil {
			log.Info(context.Background(), fmt.Sprintf("RabbitMQ %s restored.", what))
			return value
		}
		log.Error(context.Background(), fmt.Sprintf("Could not restore RabbitMQ %s.", what), logging.Entry("err", err))
	}
}
