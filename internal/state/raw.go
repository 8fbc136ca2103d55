package state

import (
	"fmt"
	"math"
	"time"
)

// Helpers for pulling typed values out of untrusted maps. Each helper records
// a Diagnostic and returns the documented default when the value is missing or
// malformed. The optional fieldPath overrides the key as the diagnostic path.

func field(prefix string, i int) string {
	return fmt.Sprintf("%s[%d]", prefix, i)
}

func diagPath(key string, fieldPath []string) string {
	if len(fieldPath) > 0 {
		return fieldPath[0]
	}
	return key
}

func rawBool(v any) (value, valid bool) {
	b, ok := v.(bool)
	return b, ok
}

func rawMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case RawPayload:
		return m, true
	default:
		return nil, false
	}
}

func rawString(m map[string]any, key, def string, diags *[]Diagnostic, fieldPath ...string) string {
	s, ok := m[key].(string)
	if !ok {
		*diags = append(*diags, Diagnostic{Field: diagPath(key, fieldPath), Reason: "missing or not a string", Original: m[key]})
		return def
	}
	return s
}

// rawFloat accepts the numeric representations JSON decoding and test
// fixtures produce. NaN and infinities are rejected.
func rawFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// rawClampedFloat returns the value clamped to [minVal, maxVal]. A missing or
// non-numeric value substitutes zero (clamped into range) with a diagnostic;
// an out-of-range value is clamped with a diagnostic carrying the original.
func rawClampedFloat(m map[string]any, key, fieldPath string, minVal, maxVal float64, diags *[]Diagnostic) float64 {
	f, ok := rawFloat(m[key])
	if !ok {
		*diags = append(*diags, Diagnostic{Field: fieldPath, Reason: "missing or not a number", Original: m[key]})
		f = 0
	}
	clamped := math.Min(math.Max(f, minVal), maxVal)
	if ok && clamped != f {
		*diags = append(*diags, Diagnostic{Field: fieldPath, Reason: "out of range, clamped", Original: f})
	}
	return clamped
}

// rawTime parses an RFC3339 string or a numeric unix-seconds value. Anything
// else substitutes the zero time. Deterministic: no wall clock involved.
func rawTime(m map[string]any, key string, diags *[]Diagnostic, fieldPath ...string) time.Time {
	switch v := m[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			*diags = append(*diags, Diagnostic{Field: diagPath(key, fieldPath), Reason: "not an RFC3339 timestamp", Original: v})
			return time.Time{}
		}
		return t
	default:
		if f, ok := rawFloat(v); ok && f >= 0 {
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
		}
		*diags = append(*diags, Diagnostic{Field: diagPath(key, fieldPath), Reason: "missing or not a timestamp", Original: v})
		return time.Time{}
	}
}

func rawSlice(m map[string]any, key, fieldPath string, diags *[]Diagnostic) ([]any, bool) {
	items, ok := m[key].([]any)
	if !ok {
		*diags = append(*diags, Diagnostic{Field: fieldPath, Reason: "missing or not a list", Original: m[key]})
		return nil, false
	}
	return items, true
}
