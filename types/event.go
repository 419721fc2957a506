package types

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// TimestampLayout ISO 8601 in UTC with millisecond precision
const TimestampLayout = "2006-01-02T15:04:05.000Z"

const circularValue = "[Circular]"

// canonical keys, copied fields never override them
const (
	KeyTimestamp = "@timestamp"
	KeyMessage   = "message"
	KeyLevel     = "level"
	KeySource    = "source"
	KeyStand     = "stand"
	KeyProject   = "project"
	KeyPID       = "pid"
	KeyType      = "type"
)

// CanonicalEvent a log entry in the normalized schema shipped to the broker
type CanonicalEvent struct {
	Timestamp time.Time              `json:"@timestamp"`
	Message   *string                `json:"message"`
	Level     interface{}            `json:"level"`
	Source    string                 `json:"source"`
	Stand     string                 `json:"stand"`
	Project   string                 `json:"project"`
	PID       string                 `json:"pid"`
	Type      string                 `json:"type,omitempty"` // only set when a type label is configured
	Extra     map[string]interface{} `json:"-"`              // remaining fields of the original entry
}

// ToMap convert event into the final wire format
func (c CanonicalEvent) ToMap() (out map[string]interface{}) {
	out = make(map[string]interface{}, len(c.Extra)+8)
	// copied fields first
	for k, v := range c.Extra {
		if e, ok := encodable(v, map[uintptr]bool{}); ok {
			out[k] = e
		}
	}
	// canonical fields win
	out[KeyTimestamp] = FormatTimestamp(c.Timestamp)
	if c.Message != nil {
		out[KeyMessage] = *c.Message
	} else {
		out[KeyMessage] = nil
	}
	out[KeyLevel], _ = encodable(c.Level, map[uintptr]bool{})
	out[KeySource] = c.Source
	out[KeyStand] = c.Stand
	out[KeyProject] = c.Project
	out[KeyPID] = c.PID
	if len(c.Type) > 0 {
		out[KeyType] = c.Type
	}
	return
}

// MarshalJSON implements json.Marshaler
func (c CanonicalEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToMap())
}

// FormatTimestamp formats t in UTC with millisecond precision, years outside
// 0000-9999 use the expanded six digit form with a sign, "+275760-09-13T00:00:00.000Z"
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	y := t.Year()
	if y >= 0 && y <= 9999 {
		return t.Format(TimestampLayout)
	}
	sign := "+"
	if y < 0 {
		sign = "-"
		y = -y
	}
	return sign + fmt.Sprintf("%06d", y) + t.Format(TimestampLayout[4:])
}

// encodable prepares v for encoding/json. Values referring back to one of their
// ancestors become "[Circular]", NaN and infinite floats become nil. Functions,
// channels, complex numbers and unsafe pointers are not encodable, ok is false
// for them; inside a list they become nil.
func encodable(v interface{}, ancestors map[uintptr]bool) (out interface{}, ok bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case string, bool, json.Number:
		return v, true
	case map[string]interface{}:
		p := reflect.ValueOf(x).Pointer()
		if p == 0 {
			return x, true
		}
		if ancestors[p] {
			return circularValue, true
		}
		ancestors[p] = true
		m := make(map[string]interface{}, len(x))
		for k, c := range x {
			if e, ok := encodable(c, ancestors); ok {
				m[k] = e
			}
		}
		delete(ancestors, p)
		return m, true
	case []interface{}:
		if len(x) == 0 {
			return x, true
		}
		p := reflect.ValueOf(x).Pointer()
		if ancestors[p] {
			return circularValue, true
		}
		ancestors[p] = true
		l := make([]interface{}, len(x))
		for i, c := range x {
			l[i], _ = encodable(c, ancestors)
		}
		delete(ancestors, p)
		return l, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, false
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
	}
	return v, true
}
