package internal

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/logtube/elkamqp/internal/runner"
	"github.com/logtube/sptp"
	"github.com/rs/zerolog/log"
)

type SPTPInputOptions struct {
	Bind string
	Next io.Writer // receives one raw entry per Write
}

type SPTPInput interface {
	runner.Runnable
}

type sptpInput struct {
	addr *net.UDPAddr
	next io.Writer
}

func NewSPTPInput(opts SPTPInputOptions) (SPTPInput, error) {
	if len(opts.Bind) == 0 {
		opts.Bind = "0.0.0.0:9921"
	}
	if opts.Next == nil {
		return nil, errors.New("SPTPInput: Next is not set")
	}
	var addr *net.UDPAddr
	var err error
	if addr, err = net.ResolveUDPAddr("udp", opts.Bind); err != nil {
		return nil, err
	}
	log.Info().Str("input", "sptp").Str("bind", opts.Bind).Msg("input created")
	return &sptpInput{addr: addr, next: opts.Next}, nil
}

func (s *sptpInput) consumePacket(buf []byte) {
	if len(buf) == 0 {
		return
	}
	if _, err := s.next.Write(buf); err != nil {
		log.Debug().Err(err).Str("input", "sptp").Msg("failed to deliver entry")
	}
}

func (s *sptpInput) Run(ctx context.Context) error {
	log.Info().Str("input", "sptp").Msg("started")
	defer log.Info().Str("input", "sptp").Msg("stopped")

	var conn *net.UDPConn
	var err error
	if conn, err = net.ListenUDP("udp", s.addr); err != nil {
		log.Error().Err(err).Str("input", "sptp").Msg("failed to bind UDP socket")
		return err
	}
	recv := sptp.NewReceiver(conn)

	closing := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(closing)
		_ = conn.Close()
	}()

	for {
		var buf []byte
		if buf, err = recv.Receive(); err != nil {
			select {
			case <-closing:
				return nil
			default:
			}
			log.Error().Err(err).Str("input", "sptp").Msg("failed to read SPTP packet")
			continue
		}
		s.consumePacket(buf)
	}
}
