package metric

import (
	"strconv"
	"strings"
)

// Number coerces a raw store value into a float64. Daily metric rows arrive
// loosely typed: ingestion writers store numbers, but upstream exports also
// produce strings like "1,200" or "45%". Every numeric read in this package
// goes through Number so all five sources treat malformed input identically.
// Unparseable values coerce to 0.
func Number(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSuffix(s, "%")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
