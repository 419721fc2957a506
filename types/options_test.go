package types

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOptionsYAML = `
verbose: true
logstash:
  server: h1
  application: svc
  stand: prod
  project: proj
  pid: 77
amqp:
  hostname: mq.example.com
  queue: logs
transport:
  concurrency: 2
  rate: 50
input_redis:
  enabled: true
  multi: true
`

func TestLoadOptions(t *testing.T) {
	dir, err := ioutil.TempDir("", "elkamqp-options")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "elkamqp.yml")
	require.NoError(t, ioutil.WriteFile(file, []byte(testOptionsYAML), 0644))

	require.NoError(t, os.Setenv("ELKAMQP_AMQP_PORT", "5673"))
	defer os.Unsetenv("ELKAMQP_AMQP_PORT")

	opt, err := LoadOptions(file)
	require.NoError(t, err)

	assert.True(t, opt.Verbose)
	assert.Equal(t, "77", opt.Logstash.PID)
	assert.Equal(t, "mq.example.com", opt.AMQP.Hostname)
	assert.Equal(t, 5673, opt.AMQP.Port, "env should override")
	assert.Equal(t, "rabbitmq", opt.AMQP.Username)
	assert.Equal(t, "rabbitmq", opt.AMQP.Password)
	assert.Equal(t, "logs", opt.AMQP.Queue)
	assert.Equal(t, 2, opt.Transport.Concurrency)
	assert.Equal(t, 1000, opt.Transport.QueueSize)
	assert.Equal(t, 50, opt.Transport.Burst)
	assert.Equal(t, 0, opt.Transport.CloseDelay, "no close delay with confirms")
	assert.Equal(t, 10*time.Second, opt.Transport.ConnectTimeoutDuration())
	assert.True(t, opt.InputRedis.Enabled)
	assert.Equal(t, "0.0.0.0:6379", opt.InputRedis.Bind)
	assert.Empty(t, opt.Missing())

	id := opt.Identity()
	assert.Equal(t, "h1/svc", id.Source())
	assert.Equal(t, "prod", id.Stand)
}

func TestLoadOptions_NotExist(t *testing.T) {
	require.NoError(t, os.Setenv("ELKAMQP_TRANSPORT_DISABLE_CONFIRM", "true"))
	defer os.Unsetenv("ELKAMQP_TRANSPORT_DISABLE_CONFIRM")

	opt, err := LoadOptions("/nonexistent/elkamqp.yml")
	require.NoError(t, err)

	assert.Equal(t, "localhost", opt.AMQP.Hostname)
	assert.Equal(t, 5672, opt.AMQP.Port)
	assert.Equal(t, "elk", opt.AMQP.Queue)
	assert.Equal(t, 500*time.Millisecond, opt.Transport.CloseDelayDuration())
	assert.NotEmpty(t, opt.Logstash.Server)
	assert.NotEmpty(t, opt.Logstash.PID)
	assert.Equal(t, []string{"logstash.application", "logstash.stand", "logstash.project"}, opt.Missing())
}

func TestLoadOptions_Malformed(t *testing.T) {
	dir, err := ioutil.TempDir("", "elkamqp-options")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "elkamqp.yml")
	require.NoError(t, ioutil.WriteFile(file, []byte("amqp: [unclosed"), 0644))

	_, err = LoadOptions(file)
	assert.Error(t, err)
}

func TestIdentity_WithDefaults(t *testing.T) {
	id := Identity{Application: "svc"}.WithDefaults()
	assert.Equal(t, "svc", id.Application)
	assert.NotEmpty(t, id.PID)

	id = Identity{Server: "s", PID: "1"}.WithDefaults()
	assert.Equal(t, "s", id.Server)
	assert.Equal(t, "1", id.PID)
	assert.NotEmpty(t, id.Application)
}
