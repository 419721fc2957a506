package internal

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dialer opens a broker connection
type Dialer func(url string, timeout time.Duration) (Connection, error)

// Connection a broker connection
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel the subset of an AMQP channel used by Publisher
type Channel interface {
	Confirm(noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	// Publish sends msg to the default exchange, returns nil Confirmation if channel is not in confirm mode
	Publish(ctx context.Context, queue string, msg amqp.Publishing) (Confirmation, error)
	Close() error
}

// Confirmation a pending publisher confirm
type Confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// DialAMQP dials with github.com/rabbitmq/amqp091-go
func DialAMQP(url string, timeout time.Duration) (Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": "elkamqp"},
	})
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) Confirm(noWait bool) error {
	return c.ch.Confirm(noWait)
}

func (c *amqpChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return c.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (c *amqpChannel) Publish(ctx context.Context, queue string, msg amqp.Publishing) (Confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, nil
	}
	return dc, nil
}

func (c *amqpChannel) Close() error {
	return c.ch.Close()
}
