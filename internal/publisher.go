package internal

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/logtube/elkamqp/internal/errutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// kinds of PublishError, match with errors.Is
var (
	ErrConnection   = errors.New("connection error")
	ErrChannel      = errors.New("channel error")
	ErrQueueDeclare = errors.New("queue declare error")
	ErrPublish      = errors.New("publish error")
	ErrPublishAck   = errors.New("publish ack error")
)

var errNack = errors.New("broker did not acknowledge the message")

// PublishError a failed publish cycle, Kind tells which step failed
type PublishError struct {
	Kind error
	Err  error
}

func (e *PublishError) Error() string {
	return "amqp: " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *PublishError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

type PublisherOptions struct {
	Hostname string
	Port     int
	Username string
	Password string
	Queue    string

	Confirm        bool          // wait for publisher confirm before teardown
	CloseDelay     time.Duration // grace delay before teardown, only without Confirm
	ConnectTimeout time.Duration
	PublishTimeout time.Duration // whole cycle, defaults to 30s

	Dialer Dialer
	Logger *zerolog.Logger
}

// Publisher delivers one payload per call, over a fresh connection
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type publisher struct {
	optURL            string
	optRedactedURL    string
	optQueue          string
	optConfirm        bool
	optCloseDelay     time.Duration
	optConnectTimeout time.Duration
	optPublishTimeout time.Duration

	dial   Dialer
	logger *zerolog.Logger
}

func NewPublisher(opts PublisherOptions) (Publisher, error) {
	if len(opts.Hostname) == 0 {
		opts.Hostname = "localhost"
	}
	if opts.Port <= 0 {
		opts.Port = 5672
	}
	if len(opts.Username) == 0 {
		opts.Username = "rabbitmq"
	}
	if len(opts.Password) == 0 {
		opts.Password = "rabbitmq"
	}
	if len(opts.Queue) == 0 {
		opts.Queue = "elk"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = time.Second * 10
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = time.Second * 30
	}
	if opts.Dialer == nil {
		opts.Dialer = DialAMQP
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	u := &url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(opts.Username, opts.Password),
		Host:   net.JoinHostPort(opts.Hostname, strconv.Itoa(opts.Port)),
	}
	p := &publisher{
		optURL:            u.String(),
		optRedactedURL:    u.Redacted(),
		optQueue:          opts.Queue,
		optConfirm:        opts.Confirm,
		optCloseDelay:     opts.CloseDelay,
		optConnectTimeout: opts.ConnectTimeout,
		optPublishTimeout: opts.PublishTimeout,
		dial:              opts.Dialer,
		logger:            opts.Logger,
	}
	log.Info().Str("url", p.optRedactedURL).Str("queue", p.optQueue).Bool("confirm", p.optConfirm).Msg("publisher created")
	return p, nil
}

// NewMessageID epoch milliseconds followed by a random UUID
func NewMessageID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + uuid.NewString()
}

// Publish connect, open channel, declare queue, publish and teardown
func (p *publisher) Publish(ctx context.Context, payload []byte) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.optPublishTimeout)
	defer cancel()

	var conn Connection
	if conn, err = p.dial(p.optURL, p.optConnectTimeout); err != nil {
		return &PublishError{Kind: ErrConnection, Err: err}
	}

	var ch Channel
	if ch, err = conn.Channel(); err != nil {
		p.teardown(nil, conn)
		return &PublishError{Kind: ErrChannel, Err: err}
	}

	if p.optConfirm {
		if err = ch.Confirm(false); err != nil {
			p.teardown(nil, conn)
			return &PublishError{Kind: ErrChannel, Err: err}
		}
	}

	// the queue survives broker restart
	if _, err = ch.QueueDeclare(p.optQueue, true, false, false, false, nil); err != nil {
		p.teardown(nil, conn)
		return &PublishError{Kind: ErrQueueDeclare, Err: err}
	}

	now := time.Now()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    NewMessageID(now),
		Timestamp:    now,
		Body:         payload,
	}

	var cf Confirmation
	if cf, err = ch.Publish(ctx, p.optQueue, msg); err != nil {
		err = &PublishError{Kind: ErrPublish, Err: err}
	} else if cf != nil {
		var ack bool
		if ack, err = cf.WaitContext(ctx); err != nil {
			err = &PublishError{Kind: ErrPublishAck, Err: err}
		} else if !ack {
			err = &PublishError{Kind: ErrPublishAck, Err: errNack}
		}
	} else if p.optCloseDelay > 0 {
		// no confirm, give the broker a moment to flush the frame
		t := time.NewTimer(p.optCloseDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	if err == nil {
		p.logger.Debug().Str("queue", p.optQueue).Str("message_id", msg.MessageId).Int("size", len(payload)).Msg("message sent")
	}

	p.teardown(ch, conn)
	return
}

// teardown closes channel before connection, failures are logged only
func (p *publisher) teardown(ch Channel, conn Connection) {
	eg := errutil.UnsafeGroup()
	if ch != nil {
		eg.Add(ch.Close())
	}
	eg.Add(conn.Close())
	if err := eg.Err(); err != nil {
		p.logger.Warn().Err(err).Str("url", p.optRedactedURL).Msg("failed to close broker connection")
	}
}
