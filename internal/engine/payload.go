package engine

import (
	"encoding/json"
	"math"
)

// Payload values arrive as float64 after a JSON round trip but as int when
// built locally. These helpers accept both.

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadBool(p map[string]any, key string) bool {
	b, _ := p[key].(bool)
	return b
}

func payloadMap(p map[string]any, key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

func payloadFloat(p map[string]any, key string) (float64, bool) {
	return toFloat(p[key])
}

func payloadInt(p map[string]any, key string) (int, bool) {
	f, ok := toFloat(p[key])
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
