package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/logtube/elkamqp/internal/runner"
	"github.com/rs/zerolog/log"
)

// max body of a single request
const httpInputBodyLimit = 10 * 1024 * 1024

type HTTPInputOptions struct {
	Bind string
	// Next receives one raw entry per Write
	Next io.Writer
	// Stats served at /stats, optional
	Stats func() StatsSnapshot
}

type HTTPInput interface {
	runner.Runnable
}

type httpInput struct {
	optBind string

	e *echo.Echo

	next  io.Writer
	stats func() StatsSnapshot
}

func NewHTTPInput(opts HTTPInputOptions) (HTTPInput, error) {
	if len(opts.Bind) == 0 {
		opts.Bind = "0.0.0.0:8080"
	}
	if opts.Next == nil {
		return nil, errors.New("HTTPInput: Next is not set")
	}
	log.Info().Str("input", "http").Str("bind", opts.Bind).Msg("input created")
	h := &httpInput{
		optBind: opts.Bind,
		next:    opts.Next,
		stats:   opts.Stats,
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/healthz", h.routeHealth)
	e.GET("/stats", h.routeStats)
	e.POST("/api/entries", h.routeEntries)
	h.e = e
	return h, nil
}

func (h *httpInput) routeHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *httpInput) routeStats(c echo.Context) error {
	if h.stats == nil {
		return c.JSON(http.StatusOK, StatsSnapshot{})
	}
	return c.JSON(http.StatusOK, h.stats())
}

// routeEntries accepts a JSON object, a JSON array of objects, or a stream of objects
func (h *httpInput) routeEntries(c echo.Context) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, httpInputBodyLimit))
	var accepted int
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"accepted": accepted, "error": err.Error()})
		}
		items := []json.RawMessage{raw}
		if len(raw) > 0 && raw[0] == '[' {
			items = nil
			if err := json.Unmarshal(raw, &items); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]interface{}{"accepted": accepted, "error": err.Error()})
			}
		}
		for _, item := range items {
			if _, err := h.next.Write(item); err != nil {
				log.Debug().Err(err).Str("input", "http").Msg("failed to deliver entry")
				return c.JSON(http.StatusBadRequest, map[string]interface{}{"accepted": accepted, "error": err.Error()})
			}
			accepted++
		}
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"accepted": accepted})
}

func (h *httpInput) Run(ctx context.Context) error {
	log.Info().Str("input", "http").Msg("started")
	defer log.Info().Str("input", "http").Msg("stopped")

	done := make(chan error, 1)
	go func() {
		done <- h.e.Start(h.optBind)
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return h.e.Shutdown(sctx)
	case err := <-done:
		if err == http.ErrServerClosed {
			return nil
		}
		log.Error().Err(err).Str("input", "http").Msg("failed to serve http input")
		return err
	}
}
