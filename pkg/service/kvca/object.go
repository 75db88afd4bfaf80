package kvca

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Object is a loosely typed source API record. The upstream system returns
// mixed string/number fields with no stable schema, so accessors normalize
// instead of failing.
type Object map[string]any

// Has reports whether the key is present, even with a null value.
func (x Object) Has(key string) bool {
	_, ok := x[key]
	return ok
}

// String returns the value as a string. Numbers are formatted without
// exponent notation, null and missing keys become the empty string.
func (x Object) String(key string) string {
	switch v := x[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns the value as an int, tolerating string and float encodings.
func (x Object) Int(key string) (int, bool) {
	switch v := x[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Payload returns the object as a plain map for persistence.
func (x Object) Payload() map[string]any {
	return map[string]any(x)
}
