package types

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// LogstashOptions identity of the application, embedded in every event
type LogstashOptions struct {
	Server      string `yaml:"server"`
	Application string `yaml:"application"`
	Stand       string `yaml:"stand"`
	Project     string `yaml:"project"`
	Type        string `yaml:"type"`
	PID         string `yaml:"pid"`
}

// AMQPOptions broker connection and target queue
type AMQPOptions struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Queue    string `yaml:"queue"`
}

// TransportOptions publish worker pool
type TransportOptions struct {
	Concurrency    int  `yaml:"concurrency"`     // number of publish workers
	QueueSize      int  `yaml:"queue_size"`      // pending entries, overflow is dropped
	Rate           int  `yaml:"rate"`            // publishes per second, 0 for unlimited
	Burst          int  `yaml:"burst"`           // token bucket capacity
	DisableConfirm bool `yaml:"disable_confirm"` // do not wait for publisher confirms
	CloseDelay     int  `yaml:"close_delay"`     // milliseconds to wait before teardown when confirms are disabled
	ConnectTimeout int  `yaml:"connect_timeout"` // seconds
	PublishTimeout int  `yaml:"publish_timeout"` // seconds, whole connect-publish-teardown cycle
}

type InputHTTPOptions struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

type InputRedisOptions struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Multi   bool   `yaml:"multi"` // report as redis 2.4+, support multiple RPUSH/LPUSH
}

type InputSPTPOptions struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

// Options options for elkamqp
type Options struct {
	Verbose    bool              `yaml:"verbose"`
	Logstash   LogstashOptions   `yaml:"logstash"`
	AMQP       AMQPOptions       `yaml:"amqp"`
	Transport  TransportOptions  `yaml:"transport"`
	InputHTTP  InputHTTPOptions  `yaml:"input_http"`
	InputRedis InputRedisOptions `yaml:"input_redis"`
	InputSPTP  InputSPTPOptions  `yaml:"input_sptp"`
}

// Identity the normalizer identity derived from logstash options
func (o Options) Identity() Identity {
	return Identity{
		Server:      o.Logstash.Server,
		Application: o.Logstash.Application,
		Stand:       o.Logstash.Stand,
		Project:     o.Logstash.Project,
		Type:        o.Logstash.Type,
		PID:         o.Logstash.PID,
	}
}

// Missing names of required fields not set
func (o Options) Missing() (out []string) {
	if len(o.Logstash.Application) == 0 {
		out = append(out, "logstash.application")
	}
	if len(o.Logstash.Stand) == 0 {
		out = append(out, "logstash.stand")
	}
	if len(o.Logstash.Project) == 0 {
		out = append(out, "logstash.project")
	}
	return
}

func (t TransportOptions) CloseDelayDuration() time.Duration {
	return time.Duration(t.CloseDelay) * time.Millisecond
}

func (t TransportOptions) ConnectTimeoutDuration() time.Duration {
	return time.Duration(t.ConnectTimeout) * time.Second
}

func (t TransportOptions) PublishTimeoutDuration() time.Duration {
	return time.Duration(t.PublishTimeout) * time.Second
}

func loadOptionsFile(filename string) (opt Options, err error) {
	var buf []byte
	if buf, err = ioutil.ReadFile(filename); err != nil {
		return
	}
	if err = yaml.Unmarshal(buf, &opt); err != nil {
		return
	}
	return
}

// LoadOptions load options from yaml file, then environment variables, then defaults
func LoadOptions(filename string) (opt Options, err error) {
	if opt, err = loadOptionsFile(filename); err != nil {
		if !os.IsNotExist(err) {
			return
		}
		err = nil
		log.Info().Str("filename", filename).Msg("config file not found, loading from defaults and envs")
	}
	opt.applyEnv()
	opt.applyDefaults()
	return
}

func (o *Options) applyEnv() {
	envBool(&o.Verbose, "ELKAMQP_VERBOSE")
	envStr(&o.Logstash.Server, "ELKAMQP_SERVER")
	envStr(&o.Logstash.Application, "ELKAMQP_APPLICATION")
	envStr(&o.Logstash.Stand, "ELKAMQP_STAND")
	envStr(&o.Logstash.Project, "ELKAMQP_PROJECT")
	envStr(&o.Logstash.Type, "ELKAMQP_TYPE")
	envStr(&o.Logstash.PID, "ELKAMQP_PID")
	envStr(&o.AMQP.Hostname, "ELKAMQP_AMQP_HOSTNAME")
	envInt(&o.AMQP.Port, "ELKAMQP_AMQP_PORT")
	envStr(&o.AMQP.Username, "ELKAMQP_AMQP_USERNAME")
	envStr(&o.AMQP.Password, "ELKAMQP_AMQP_PASSWORD")
	envStr(&o.AMQP.Queue, "ELKAMQP_AMQP_QUEUE")
	envInt(&o.Transport.Concurrency, "ELKAMQP_TRANSPORT_CONCURRENCY")
	envInt(&o.Transport.QueueSize, "ELKAMQP_TRANSPORT_QUEUE_SIZE")
	envInt(&o.Transport.Rate, "ELKAMQP_TRANSPORT_RATE")
	envInt(&o.Transport.Burst, "ELKAMQP_TRANSPORT_BURST")
	envBool(&o.Transport.DisableConfirm, "ELKAMQP_TRANSPORT_DISABLE_CONFIRM")
	envInt(&o.Transport.CloseDelay, "ELKAMQP_TRANSPORT_CLOSE_DELAY")
	envInt(&o.Transport.ConnectTimeout, "ELKAMQP_TRANSPORT_CONNECT_TIMEOUT")
	envInt(&o.Transport.PublishTimeout, "ELKAMQP_TRANSPORT_PUBLISH_TIMEOUT")
	envBool(&o.InputHTTP.Enabled, "ELKAMQP_HTTP_ENABLED")
	envStr(&o.InputHTTP.Bind, "ELKAMQP_HTTP_BIND")
	envBool(&o.InputRedis.Enabled, "ELKAMQP_REDIS_ENABLED")
	envStr(&o.InputRedis.Bind, "ELKAMQP_REDIS_BIND")
	envBool(&o.InputRedis.Multi, "ELKAMQP_REDIS_MULTI")
	envBool(&o.InputSPTP.Enabled, "ELKAMQP_SPTP_ENABLED")
	envStr(&o.InputSPTP.Bind, "ELKAMQP_SPTP_BIND")
}

func (o *Options) applyDefaults() {
	if len(o.Logstash.Server) == 0 {
		o.Logstash.Server, _ = os.Hostname()
	}
	defaultStr(&o.Logstash.Server, "localhost")
	defaultStr(&o.Logstash.PID, strconv.Itoa(os.Getpid()))
	defaultStr(&o.AMQP.Hostname, "localhost")
	defaultInt(&o.AMQP.Port, 5672)
	defaultStr(&o.AMQP.Username, "rabbitmq")
	defaultStr(&o.AMQP.Password, "rabbitmq")
	defaultStr(&o.AMQP.Queue, "elk")
	defaultInt(&o.Transport.Concurrency, 4)
	defaultInt(&o.Transport.QueueSize, 1000)
	defaultInt(&o.Transport.ConnectTimeout, 10)
	defaultInt(&o.Transport.PublishTimeout, 30)
	if o.Transport.DisableConfirm {
		defaultInt(&o.Transport.CloseDelay, 500)
	}
	if o.Transport.Rate > 0 {
		defaultInt(&o.Transport.Burst, o.Transport.Rate)
	}
	defaultStr(&o.InputHTTP.Bind, "0.0.0.0:8080")
	defaultStr(&o.InputRedis.Bind, "0.0.0.0:6379")
	defaultStr(&o.InputSPTP.Bind, "0.0.0.0:9921")
}

func envStr(v *string, key string) {
	if s := strings.TrimSpace(os.Getenv(key)); len(s) > 0 {
		*v = s
	}
}

func envInt(v *int, key string) {
	if s := strings.TrimSpace(os.Getenv(key)); len(s) > 0 {
		if i, err := strconv.Atoi(s); err == nil {
			*v = i
		}
	}
}

func envBool(v *bool, key string) {
	if s := strings.TrimSpace(os.Getenv(key)); len(s) > 0 {
		if b, err := strconv.ParseBool(s); err == nil {
			*v = b
		}
	}
}

func defaultStr(v *string, defaultValue string) {
	*v = strings.TrimSpace(*v)
	if len(*v) == 0 {
		*v = defaultValue
	}
}

func defaultInt(v *int, defaultValue int) {
	if *v <= 0 {
		*v = defaultValue
	}
}
