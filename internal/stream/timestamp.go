package stream

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeTimestampMs converts a timestamp hint of unknown unit into unix ms.
// Integers are classified by digit count: 16+ nanoseconds, 14-15
// microseconds, 12-13 milliseconds, anything shorter seconds. Non-numeric
// strings are parsed as RFC 3339. Missing or malformed hints yield now.
func NormalizeTimestampMs(raw interface{}, now time.Time) int64 {
	fallback := now.UnixMilli()

	var n int64
	switch v := raw.(type) {
	case nil:
		return fallback
	case int64:
		n = v
	case int:
		n = int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fallback
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return fallback
			}
			i = int64(f)
		}
		n = i
	case string:
		s := strings.TrimSpace(v)
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			t, terr := time.Parse(time.RFC3339, s)
			if terr != nil {
				return fallback
			}
			return t.UnixMilli()
		}
		n = i
	default:
		return fallback
	}

	if n <= 0 {
		return fallback
	}

	switch digits := len(strconv.FormatInt(n, 10)); {
	case digits >= 16:
		return n / 1_000_000
	case digits >= 14:
		return n / 1_000
	case digits >= 12:
		return n
	default:
		return n * 1000
	}
}
