package types

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

var levelNames = map[int64]string{
	10: "trace",
	20: "debug",
	30: "info",
	40: "warn",
	50: "error",
	60: "fatal",
}

// ResolveLevel maps a numeric severity code to its name, unknown codes are returned unchanged
func ResolveLevel(code interface{}) interface{} {
	var n float64
	switch c := code.(type) {
	case json.Number:
		f, err := c.Float64()
		if err != nil {
			return code
		}
		n = f
	case string:
		i, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return code
		}
		n = float64(i)
	default:
		var ok bool
		if n, ok = numberValue(code); !ok {
			return code
		}
	}
	if n != math.Trunc(n) {
		return code
	}
	if name, ok := levelNames[int64(n)]; ok {
		return name
	}
	return code
}

// numberValue converts any Go integer or float kind to float64
func numberValue(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
