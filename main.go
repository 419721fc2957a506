package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/logtube/elkamqp/internal"
	"github.com/logtube/elkamqp/internal/runner"
	"github.com/logtube/elkamqp/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	err error

	optionsFile string
	options     types.Options

	verbose bool
)

func exit() {
	if err != nil {
		log.Error().Err(err).Msg("exited")
		os.Exit(1)
	} else {
		log.Info().Msg("exited")
	}
}

func setupZerolog(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !verbose, TimeFormat: time.RFC3339})
}

func main() {
	defer exit()

	// init logger
	setupZerolog(false)

	// decode command line arguments
	flag.StringVar(&optionsFile, "c", "/etc/elkamqp.yml", "config file")
	flag.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flag.Parse()

	// load options
	log.Info().Str("file", optionsFile).Msg("load options file")
	if options, err = types.LoadOptions(optionsFile); err != nil {
		log.Error().Err(err).Msg("failed to load options file")
		return
	}

	// re-init logger
	if verbose || options.Verbose {
		setupZerolog(true)
	}

	// create logger and transport, the diagnostic logger never writes into the transport
	var res internal.LoggerResult
	if res, err = internal.NewLogger(internal.LoggerOptions{
		Options:    options,
		Stdout:     os.Stdout,
		Stats:      internal.NewStats(),
		Diagnostic: &log.Logger,
	}); err != nil {
		log.Error().Err(err).Msg("failed to create logger")
		return
	}
	if res.Fallback {
		err = errors.New("missing options: " + strings.Join(res.Missing, ", "))
		return
	}

	// create inputs
	inputs := runner.NewGroup()

	if options.InputHTTP.Enabled {
		var input internal.HTTPInput
		if input, err = internal.NewHTTPInput(internal.HTTPInputOptions{
			Bind:  options.InputHTTP.Bind,
			Next:  res.Transport,
			Stats: res.Transport.Stats,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create http input")
			return
		}
		inputs.Add(input)
	}

	if options.InputRedis.Enabled {
		var input internal.RedisInput
		if input, err = internal.NewRedisInput(internal.RedisInputOptions{
			Bind:  options.InputRedis.Bind,
			Multi: options.InputRedis.Multi,
			Next:  res.Transport,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create redis input")
			return
		}
		inputs.Add(input)
	}

	if options.InputSPTP.Enabled {
		var input internal.SPTPInput
		if input, err = internal.NewSPTPInput(internal.SPTPInputOptions{
			Bind: options.InputSPTP.Bind,
			Next: res.Transport,
		}); err != nil {
			log.Error().Err(err).Msg("failed to create SPTP input")
			return
		}
		inputs.Add(input)
	}

	if inputs.Len() == 0 {
		err = errors.New("no input")
		return
	}

	// transport outlives inputs
	tctx, tcancel := context.WithCancel(context.Background())
	defer tcancel()
	tdone := make(chan error, 1)
	go func() {
		tdone <- res.Transport.Run(tctx)
	}()

	ictx, icancel := context.WithCancel(context.Background())
	defer icancel()
	idone := make(chan error, 1)
	go func() {
		idone <- inputs.Run(ictx)
	}()

	res.Logger.Info().Str("stand", options.Logstash.Stand).Str("project", options.Logstash.Project).Msg("elkamqp started")

	// wait for signal or early input failure
	waitSignal := make(chan os.Signal, 3)
	signal.Notify(waitSignal, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-waitSignal:
		log.Info().Str("signal", sig.String()).Msg("signal caught")
		icancel()
		err = <-idone
	case err = <-idone:
		log.Info().Err(err).Msg("inputs exited early")
	}
	log.Info().Msg("inputs exited")

	// drain pending entries, at most 5 seconds
	deadline := time.Now().Add(time.Second * 5)
	for res.Transport.Stats().Pending > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond * 100)
	}

	// shutdown transport, in-flight publishes run to completion
	tcancel()
	if terr := <-tdone; err == nil {
		err = terr
	}
	s := res.Transport.Stats()
	log.Info().Int64("published", s.Published).Int64("failed", s.Failed).Int64("dropped", s.Dropped).Msg("transport exited")
}
