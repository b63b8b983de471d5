package automation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Step and trigger configs are decoded JSON, so numbers arrive as float64
// and ids may arrive as strings.

func configString(cfg map[string]interface{}, key string) (string, bool) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func configInt(cfg map[string]interface{}, key string) (int, bool) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return saturatingInt(n), true
	case float32:
		if math.IsNaN(float64(n)) {
			return 0, false
		}
		return saturatingInt(float64(n)), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint:
		if n > math.MaxInt {
			return math.MaxInt, true
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return saturatingInt(f), true
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// saturatingInt truncates f toward zero, pinning values outside int's range
// to its bounds.
func saturatingInt(f float64) int {
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

// configID reads a positive id; zero, negative and malformed values are absent
func configID(cfg map[string]interface{}, key string) (uint, bool) {
	n, ok := configInt(cfg, key)
	if !ok || n <= 0 {
		return 0, false
	}
	return uint(n), true
}

func configStrings(cfg map[string]interface{}, key string) []string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(list, ",")
	}
	return nil
}
