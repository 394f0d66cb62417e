package diff

import (
	"strconv"
	"strings"
)

// Normalize canonicalizes a value for comparison: strings are trimmed (empty
// collapses to nil), digit-only strings become int64, other numeric-looking
// strings become float64, and native numbers are widened to int64/float64.
// Booleans and everything else pass through unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if isDigits(s) {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			// Overflows int64: fall through to float.
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case bool:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return float64(t)
	case float64:
		return t
	default:
		return v
	}
}

// Equal compares two normalized values. Numbers compare across int64/float64
// so a CSV "5" matches a JSON 5.0. Nil equals only nil.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
