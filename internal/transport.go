package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"github.com/logtube/elkamqp/internal/runner"
	"github.com/logtube/elkamqp/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type TransportOptions struct {
	Identity    types.Identity
	Publisher   Publisher
	Concurrency int // publish workers
	QueueSize   int // pending payloads, overflow is dropped
	Rate        int // publish attempts per second, 0 for unlimited
	Burst       int

	Stats  *Stats
	Logger *zerolog.Logger
}

// Transport a log stream sink, each written entry is normalized and published to the broker.
//
// Write and WriteEntry return decode and normalization errors synchronously, delivery
// failures are only logged and counted. Payloads wait in a bounded queue for Run's workers.
type Transport interface {
	io.Writer
	runner.Runnable
	WriteEntry(e types.LogEntry) error
	Stats() StatsSnapshot
}

type transport struct {
	optIdentity    types.Identity
	optConcurrency int

	queue  chan []byte
	bucket *ratelimit.Bucket

	publisher Publisher
	stats     *Stats
	logger    *zerolog.Logger
}

func NewTransport(opts TransportOptions) (Transport, error) {
	if opts.Publisher == nil {
		return nil, errors.New("Transport: Publisher is not set")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	t := &transport{
		optIdentity:    opts.Identity,
		optConcurrency: opts.Concurrency,
		queue:          make(chan []byte, opts.QueueSize),
		publisher:      opts.Publisher,
		stats:          opts.Stats,
		logger:         opts.Logger,
	}
	if opts.Rate > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.Rate
		}
		t.bucket = ratelimit.NewBucketWithRate(float64(opts.Rate), int64(opts.Burst))
	}
	log.Info().Str("source", opts.Identity.Source()).Int("concurrency", opts.Concurrency).Int("queue_size", opts.QueueSize).Int("rate", opts.Rate).Msg("transport created")
	return t, nil
}

// Write accepts the serialized form of exactly one log entry
func (t *transport) Write(p []byte) (int, error) {
	t.stats.IncrReceived()
	c, err := types.NormalizeJSON(p, t.optIdentity)
	if err != nil {
		t.stats.IncrInvalid()
		return 0, err
	}
	if err = t.enqueue(c); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *transport) WriteEntry(e types.LogEntry) error {
	t.stats.IncrReceived()
	c, err := types.Normalize(e, t.optIdentity)
	if err != nil {
		t.stats.IncrInvalid()
		return err
	}
	return t.enqueue(c)
}

func (t *transport) enqueue(c types.CanonicalEvent) error {
	buf, err := json.Marshal(c)
	if err != nil {
		t.stats.IncrInvalid()
		return err
	}
	select {
	case t.queue <- buf:
	default:
		t.stats.AddDropped(1)
		t.logger.Warn().Int("size", len(buf)).Msg("transport queue full, log entry dropped")
	}
	return nil
}

func (t *transport) Stats() StatsSnapshot {
	s := t.stats.Snapshot()
	s.Pending = int64(len(t.queue))
	return s
}

// Run returns once ctx is done and every in-flight publish has finished
func (t *transport) Run(ctx context.Context) error {
	log.Info().Str("transport", "amqp").Msg("started")
	defer log.Info().Str("transport", "amqp").Msg("stopped")

	wg := &sync.WaitGroup{}
	for i := 0; i < t.optConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.runWorker(ctx)
		}()
	}
	wg.Wait()

	if n := len(t.queue); n > 0 {
		t.stats.AddDropped(int64(n))
		t.logger.Warn().Int("count", n).Msg("transport stopped with pending log entries")
	}
	return nil
}

// runWorker stops taking payloads once ctx is done, a publish already started
// runs to completion under the publisher's own timeout
func (t *transport) runWorker(ctx context.Context) {
	pctx := context.WithoutCancel(ctx)
	for {
		select {
		case buf := <-t.queue:
			if ctx.Err() != nil || !t.wait(ctx) {
				// put it back for the pending count
				select {
				case t.queue <- buf:
				default:
					t.stats.AddDropped(1)
				}
				return
			}
			if err := t.publisher.Publish(pctx, buf); err != nil {
				t.stats.IncrFailed()
				t.logger.Error().Err(err).Int("size", len(buf)).Msg("failed to publish log entry")
			} else {
				t.stats.IncrPublished()
			}
		case <-ctx.Done():
			return
		}
	}
}

// wait takes a token from the rate bucket, returns false if ctx is done first
func (t *transport) wait(ctx context.Context) bool {
	if t.bucket == nil {
		return true
	}
	d := t.bucket.Take(1)
	if d <= 0 {
		return true
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-ctx.Done():
		return false
	}
}
