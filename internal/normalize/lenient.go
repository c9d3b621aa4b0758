package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"instalytics/internal/core/domain"
)

// fieldPath addresses a value inside a raw item. Numeric segments index into lists.
type fieldPath []string

func path(segments ...string) fieldPath {
	return fieldPath(segments)
}

// get walks p through nested maps and lists.
func (p fieldPath) get(item domain.RawItem) (any, bool) {
	var current any = map[string]any(item)
	for _, seg := range p {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case domain.RawItem:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// first returns the value of the first path that is present and non-null.
func first(item domain.RawItem, paths []fieldPath) (any, bool) {
	for _, p := range paths {
		if v, ok := p.get(item); ok {
			return v, true
		}
	}
	return nil, false
}

func has(item domain.RawItem, paths []fieldPath) bool {
	_, ok := first(item, paths)
	return ok
}

// firstString returns the first non-empty string among paths.
func firstString(item domain.RawItem, paths []fieldPath) string {
	for _, p := range paths {
		if v, ok := p.get(item); ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstCount(item domain.RawItem, paths []fieldPath) int64 {
	v, _ := first(item, paths)
	return toCount(v)
}

func firstBool(item domain.RawItem, paths []fieldPath) bool {
	for _, p := range paths {
		if v, ok := p.get(item); ok && toBool(v) {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

// toCount parses numbers and numeric strings into a non-negative integer, 0 on failure.
func toCount(v any) int64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		cleaned := strings.NewReplacer(",", "", "_", "", " ", "").Replace(strings.TrimSpace(val))
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

// Unix timestamps above this are treated as milliseconds.
const millisThreshold = 1e12

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// toTime accepts RFC 3339-ish strings and unix seconds or milliseconds.
func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return unixTime(n)
		}
		return time.Time{}, false
	case float64:
		return unixTime(val)
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return unixTime(n)
	case int64:
		return unixTime(float64(val))
	case int:
		return unixTime(float64(val))
	default:
		return time.Time{}, false
	}
}

func unixTime(n float64) (time.Time, bool) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return time.Time{}, false
	}
	if n >= millisThreshold {
		return time.UnixMilli(int64(n)).UTC(), true
	}
	return time.Unix(int64(n), 0).UTC(), true
}
