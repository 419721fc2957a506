package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/logtube/elkamqp/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoggerOptions() types.Options {
	return types.Options{
		Logstash: types.LogstashOptions{
			Server:      "host-1",
			Application: "billing",
			Stand:       "staging",
			Project:     "acme",
			PID:         "42",
		},
		AMQP: types.AMQPOptions{Queue: "elk"},
	}
}

func TestNewLogger(t *testing.T) {
	b := &testBroker{}
	stdout := &bytes.Buffer{}
	diag := zerolog.Nop()

	res, err := NewLogger(LoggerOptions{
		Options:    testLoggerOptions(),
		Stdout:     stdout,
		Dialer:     b.Dial,
		Diagnostic: &diag,
	})
	require.NoError(t, err)
	require.False(t, res.Fallback)
	require.NotNil(t, res.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- res.Transport.Run(ctx)
	}()

	res.Logger.Info().Str("user", "u1").Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "billing", line["name"])
	assert.IsType(t, float64(0), line["time"])

	require.Eventually(t, func() bool { return len(b.Published()) == 1 }, time.Second*3, time.Millisecond*10)
	cancel()
	require.NoError(t, <-done)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b.Published()[0].Body, &m))
	assert.Equal(t, "hello", m["message"])
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "host-1/billing", m["source"])
	assert.Equal(t, "staging", m["stand"])
	assert.Equal(t, "acme", m["project"])
	assert.Equal(t, "42", m["pid"])
	assert.Equal(t, "billing", m["name"])
	assert.Equal(t, "u1", m["user"])
	assert.NotContains(t, m, "msg")
	assert.NotContains(t, m, "time")
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, m["@timestamp"])
}

func TestNewLogger_Fallback(t *testing.T) {
	opts := testLoggerOptions()
	opts.Logstash.Stand = ""
	opts.Logstash.Project = ""

	stdout := &bytes.Buffer{}
	diagOut := &bytes.Buffer{}
	diag := zerolog.New(diagOut)

	res, err := NewLogger(LoggerOptions{
		Options:    opts,
		Stdout:     stdout,
		Diagnostic: &diag,
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Nil(t, res.Transport)
	assert.Equal(t, []string{"logstash.stand", "logstash.project"}, res.Missing)
	assert.Contains(t, diagOut.String(), "logstash.stand")

	res.Logger.Info().Msg("still logging")
	assert.Contains(t, stdout.String(), "still logging")
}
