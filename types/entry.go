package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecode the raw entry is not a JSON object
var ErrDecode = errors.New("invalid log entry")

// re-expressed fields, never copied into Extra
const (
	FieldTime    = "time"
	FieldMsg     = "msg"
	FieldLevel   = "level"
	FieldVersion = "v"
)

// maxCopyDepth nested maps deeper than this are shared with the caller
const maxCopyDepth = 2

// LogEntry a structured log record as produced by the logging facility
type LogEntry struct {
	Time  interface{}            // epoch milliseconds, or a RFC 3339 string
	Msg   *string                // the message, nil if absent
	Level interface{}            // severity code, number or string
	Extra map[string]interface{} // every other field
}

// DecodeLogEntry decodes the serialized form of a log entry, numbers are kept as json.Number
func DecodeLogEntry(buf []byte) (e LogEntry, err error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var m map[string]interface{}
	if err = dec.Decode(&m); err != nil {
		err = fmt.Errorf("%w: %s", ErrDecode, err.Error())
		return
	}
	if m == nil {
		err = fmt.Errorf("%w: not an object", ErrDecode)
		return
	}
	if _, err = dec.Token(); err != io.EOF {
		err = fmt.Errorf("%w: trailing data", ErrDecode)
		return
	}
	err = nil
	// decoded values are owned by us, no copy needed
	e = entryFromMap(m, false)
	return
}

// NewLogEntry builds a LogEntry from a caller owned map.
//
// The map is copied up to a bounded depth before anything is removed from it,
// so the caller's map is never mutated. Slices and byte slices are copied by
// value at every copied level, maps nested deeper than the bound and any other
// reference values (functions, pointers, channels) are shared with the caller.
func NewLogEntry(m map[string]interface{}) LogEntry {
	return entryFromMap(m, true)
}

func entryFromMap(m map[string]interface{}, copied bool) (e LogEntry) {
	e.Time = m[FieldTime]
	e.Level = m[FieldLevel]
	switch msg := m[FieldMsg].(type) {
	case nil:
	case string:
		e.Msg = &msg
	default:
		s := fmt.Sprint(msg)
		e.Msg = &s
	}
	if copied {
		e.Extra = copyMap(m, 0)
	} else {
		e.Extra = m
	}
	delete(e.Extra, FieldTime)
	delete(e.Extra, FieldMsg)
	delete(e.Extra, FieldLevel)
	delete(e.Extra, FieldVersion)
	return
}

func copyMap(m map[string]interface{}, depth int) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v, depth+1)
	}
	return out
}

func copyValue(v interface{}, depth int) interface{} {
	if depth > maxCopyDepth {
		return v
	}
	switch x := v.(type) {
	case map[string]interface{}:
		if x == nil {
			return x
		}
		return copyMap(x, depth)
	case []interface{}:
		if x == nil {
			return x
		}
		out := make([]interface{}, len(x))
		copy(out, x)
		return out
	case []byte:
		if x == nil {
			return x
		}
		out := make([]byte, len(x))
		copy(out, x)
		return out
	}
	return v
}
