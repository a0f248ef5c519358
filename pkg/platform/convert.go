package platform

import "encoding/json"

// fields is a map decoded by the codec. Missing or mistyped entries read as
// zero values; callers check the ok result only for required entries.
type fields map[string]any

// asFields returns v as fields, or nil when v is not a map.
func asFields(v any) fields {
	switch m := v.(type) {
	case fields:
		return m
	case map[string]any:
		return m
	case map[any]any:
		out := make(fields, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	default:
		return nil
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// flag accepts JSON booleans and the strings some plugins send instead.
func (f fields) flag(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func (f fields) num(key string) (float64, bool) {
	switch n := f[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		v, err := n.Float64()
		return v, err == nil
	default:
		return 0, false
	}
}

// integer keeps int64 and json.Number values exact; floats are truncated.
func (f fields) integer(key string) (int64, bool) {
	switch n := f[key].(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		v, err := n.Int64()
		return v, err == nil
	default:
		v, ok := f.num(key)
		return int64(v), ok
	}
}

func (f fields) int(key string) int {
	n, _ := f.integer(key)
	return int(n)
}

func (f fields) list(key string) []any {
	l, _ := f[key].([]any)
	return l
}
