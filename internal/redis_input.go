package internal

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/logtube/elkamqp/internal/runner"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/redcon"
)

type RedisInputOptions struct {
	Bind  string
	Multi bool      // report as redis 2.4+, support multiple values in RPUSH/LPUSH
	Next  io.Writer // receives one raw entry per Write
}

type RedisInput interface {
	runner.Runnable
}

type redisInput struct {
	optBind  string
	optMulti bool

	connsCount    int64
	connsSum      map[string]int
	connsSumMutex sync.Locker

	next io.Writer
}

func NewRedisInput(opts RedisInputOptions) (RedisInput, error) {
	if len(opts.Bind) == 0 {
		opts.Bind = "0.0.0.0:6379"
	}
	if opts.Next == nil {
		return nil, errors.New("RedisInput: Next is not set")
	}
	log.Info().Str("input", "redis").Str("bind", opts.Bind).Bool("multi", opts.Multi).Msg("input created")
	o := &redisInput{
		optBind:  opts.Bind,
		optMulti: opts.Multi,

		connsSum:      map[string]int{},
		connsSumMutex: &sync.Mutex{},

		next: opts.Next,
	}
	return o, nil
}

func (r *redisInput) increaseConnsSum(addr string) int {
	r.connsSumMutex.Lock()
	defer r.connsSumMutex.Unlock()
	i := extractIP(addr)
	r.connsSum[i] = r.connsSum[i] + 1
	return r.connsSum[i]
}

func (r *redisInput) decreaseConnsSum(addr string) int {
	r.connsSumMutex.Lock()
	defer r.connsSumMutex.Unlock()
	i := extractIP(addr)
	r.connsSum[i] = r.connsSum[i] - 1
	if r.connsSum[i] <= 0 {
		delete(r.connsSum, i)
		return 0
	}
	return r.connsSum[i]
}

// consumeRawEntry returns false if the entry was rejected
func (r *redisInput) consumeRawEntry(raw []byte) bool {
	// ignore entry > 1mb
	if len(raw) > 1000000 {
		log.Warn().Int("raw-length", len(raw)).Str("input", "redis").Msg("raw entry larger than 1m ignored")
		return false
	}
	if _, err := r.next.Write(raw); err != nil {
		log.Debug().Err(err).Str("input", "redis").Str("entry", string(raw)).Msg("failed to deliver entry")
		return false
	}
	return true
}

func (r *redisInput) handleCommand(conn redcon.Conn, cmd redcon.Command) {
	// empty arguments, not possible
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR bad command")
		return
	}
	command := strings.ToLower(string(cmd.Args[0]))
	log.Debug().Str("addr", conn.RemoteAddr()).Str("cmd", command).Int("args", len(cmd.Args)-1).Msg("new command")
	switch command {
	default:
		log.Error().Str("command", command).Msg("unknown command")
		conn.WriteError("ERR unknown command '" + command + "'")
	case "ping":
		conn.WriteString("PONG")
	case "quit":
		conn.WriteString("OK")
		_ = conn.Close()
	case "info":
		if r.optMulti {
			conn.WriteBulkString("redis_version:2.4\r\n")
		} else {
			conn.WriteBulkString("redis_version:2.3\r\n")
		}
	case "rpush", "lpush":
		// at least 3 arguments, RPUSH elk "{....}"
		if len(cmd.Args) < 3 {
			conn.WriteError("ERR wrong number of arguments for '" + command + "' command")
			return
		}
		var accepted int64
		for _, raw := range cmd.Args[2:] {
			if r.consumeRawEntry(raw) {
				accepted++
			}
		}
		conn.WriteInt64(accepted)
	case "llen":
		conn.WriteInt64(0)
	}
}

func (r *redisInput) handleConnect(conn redcon.Conn) bool {
	log.Info().Int64(
		"conns",
		atomic.AddInt64(&r.connsCount, 1),
	).Int(
		"conns-dup",
		r.increaseConnsSum(conn.RemoteAddr()),
	).Str(
		"addr",
		conn.RemoteAddr(),
	).Msg("connection established")
	return true
}

func (r *redisInput) handleDisconnect(conn redcon.Conn, err error) {
	log.Info().Err(err).Int64(
		"conns",
		atomic.AddInt64(&r.connsCount, -1),
	).Int(
		"conns-dup",
		r.decreaseConnsSum(conn.RemoteAddr()),
	).Str(
		"addr",
		conn.RemoteAddr(),
	).Msg("connection closed")
}

func (r *redisInput) Run(ctx context.Context) error {
	log.Info().Str("input", "redis").Msg("started")
	defer log.Info().Str("input", "redis").Msg("stopped")

	init := make(chan error, 1)
	done := make(chan error, 1)

	s := redcon.NewServer(r.optBind, r.handleCommand, r.handleConnect, r.handleDisconnect)

	go func() {
		done <- s.ListenServeAndSignal(init)
	}()
	// wait server initialization
	if err := <-init; err != nil {
		log.Error().Err(err).Str("input", "redis").Msg("failed to initialize redis input")
		return err
	}
	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-done:
		return err
	}
}

func extractIP(addr string) string {
	c := strings.Split(addr, ":")
	if len(c) < 2 {
		return "UNKNOWN"
	} else if len(c) == 2 {
		return c[0]
	} else {
		return strings.Join(c[0:len(c)-1], ":")
	}
}
