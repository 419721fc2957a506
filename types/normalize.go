package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrInvalidTime the entry has no usable timestamp
var ErrInvalidTime = errors.New("invalid log entry time")

// ECMAScript date range, in milliseconds
const maxEpochMillis = 8.64e15

// Identity fields embedded in every event
type Identity struct {
	Server      string
	Application string
	Stand       string
	Project     string
	Type        string // optional type label
	PID         string
}

// WithDefaults fills empty server, application and pid from the current process
func (id Identity) WithDefaults() Identity {
	if len(id.Server) == 0 {
		id.Server, _ = os.Hostname()
	}
	if len(id.Application) == 0 && len(os.Args) > 0 {
		id.Application = filepath.Base(os.Args[0])
	}
	if len(id.PID) == 0 {
		id.PID = strconv.Itoa(os.Getpid())
	}
	return id
}

// Source the "<server>/<application>" label
func (id Identity) Source() string {
	return id.Server + "/" + id.Application
}

// NormalizeJSON decodes and normalizes the serialized form of a log entry
func NormalizeJSON(buf []byte, id Identity) (c CanonicalEvent, err error) {
	var e LogEntry
	if e, err = DecodeLogEntry(buf); err != nil {
		return
	}
	return Normalize(e, id)
}

// Normalize converts a log entry into a CanonicalEvent
func Normalize(e LogEntry, id Identity) (c CanonicalEvent, err error) {
	if c.Timestamp, err = parseTime(e.Time); err != nil {
		return
	}
	c.Message = e.Msg
	c.Level = ResolveLevel(e.Level)
	c.Source = id.Source()
	c.Stand = id.Stand
	c.Project = id.Project
	c.PID = id.PID
	c.Type = id.Type
	c.Extra = e.Extra
	return
}

func parseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidTime)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, t.String())
		}
		return timeFromMillis(f)
	case string:
		r, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, err.Error())
		}
		return timeFromMillis(float64(r.UnixMilli()))
	case time.Time:
		return timeFromMillis(float64(t.UnixMilli()))
	}
	if f, ok := numberValue(v); ok {
		return timeFromMillis(f)
	}
	return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidTime, v)
}

func timeFromMillis(ms float64) (time.Time, error) {
	if math.IsNaN(ms) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, fmt.Errorf("%w: %v out of range", ErrInvalidTime, ms)
	}
	return time.UnixMilli(int64(math.Trunc(ms))).UTC(), nil
}
