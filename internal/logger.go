package internal

import (
	"io"
	"os"
	"sync"

	"github.com/logtube/elkamqp/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var configureRecordFormatOnce sync.Once

// ConfigureRecordFormat makes zerolog emit records the Normalizer understands:
// "time" in epoch milliseconds and "msg" for the message. zerolog keeps these
// settings globally, so this is done once per process.
func ConfigureRecordFormat() {
	configureRecordFormatOnce.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		zerolog.TimestampFieldName = types.FieldTime
		zerolog.MessageFieldName = types.FieldMsg
		zerolog.LevelFieldName = types.FieldLevel
	})
}

type LoggerOptions struct {
	Options types.Options
	Stdout  io.Writer // console stream, defaults to os.Stdout
	Dialer  Dialer    // defaults to DialAMQP
	Stats   *Stats

	Diagnostic *zerolog.Logger // delivery failures, must not write into the transport
}

// LoggerResult either a logger shipping to the broker, or a console only fallback
type LoggerResult struct {
	Logger    zerolog.Logger
	Transport Transport // nil when Fallback
	Fallback  bool
	Missing   []string // required options not set, when Fallback
}

// NewLogger validates options and builds the application logger.
//
// With valid options the logger writes every record to stdout and to a Transport,
// the caller must Run the Transport. Otherwise a console logger is returned.
func NewLogger(opts LoggerOptions) (res LoggerResult, err error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Diagnostic == nil {
		opts.Diagnostic = &log.Logger
	}

	ConfigureRecordFormat()

	o := opts.Options
	if res.Missing = o.Missing(); len(res.Missing) > 0 {
		opts.Diagnostic.Error().Strs("missing", res.Missing).Msg("invalid logstash options, using console logger")
		res.Fallback = true
		res.Logger = zerolog.New(zerolog.ConsoleWriter{Out: opts.Stdout}).With().Timestamp().Logger()
		return
	}

	var p Publisher
	if p, err = NewPublisher(PublisherOptions{
		Hostname:       o.AMQP.Hostname,
		Port:           o.AMQP.Port,
		Username:       o.AMQP.Username,
		Password:       o.AMQP.Password,
		Queue:          o.AMQP.Queue,
		Confirm:        !o.Transport.DisableConfirm,
		CloseDelay:     o.Transport.CloseDelayDuration(),
		ConnectTimeout: o.Transport.ConnectTimeoutDuration(),
		PublishTimeout: o.Transport.PublishTimeoutDuration(),
		Dialer:         opts.Dialer,
		Logger:         opts.Diagnostic,
	}); err != nil {
		return
	}

	var t Transport
	if t, err = NewTransport(TransportOptions{
		Identity:    o.Identity().WithDefaults(),
		Publisher:   p,
		Concurrency: o.Transport.Concurrency,
		QueueSize:   o.Transport.QueueSize,
		Rate:        o.Transport.Rate,
		Burst:       o.Transport.Burst,
		Stats:       opts.Stats,
		Logger:      opts.Diagnostic,
	}); err != nil {
		return
	}

	res.Transport = t
	res.Logger = zerolog.New(zerolog.MultiLevelWriter(opts.Stdout, t)).With().
		Timestamp().
		Str("name", o.Logstash.Application).
		Logger()
	return
}
