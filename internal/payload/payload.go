// Package payload coerces loosely typed, JSON-decoded configuration values
// (post-meta shaped arrays and maps) into Go scalars. Every helper reports
// whether the value was usable so callers can drop malformed entries instead
// of failing.
package payload

import (
	"strings"

	"github.com/spf13/cast"
)

// Int converts numbers and numeric strings. Fractions are truncated.
func Int(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return int(f), true
		}
		return 0, false
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// OptionalInt returns a pointer to the converted value when it is present,
// numeric and not negative.
func OptionalInt(v any) *int {
	n, ok := Int(v)
	if !ok || n < 0 {
		return nil
	}
	return &n
}

// Float converts numbers and numeric strings.
func Float(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String returns the trimmed string form of scalars; composite values yield "".
func String(v any) string {
	switch v.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Bool accepts booleans, numbers and the usual truthy strings.
func Bool(v any) bool {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "on", "y":
			return true
		}
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

// Strings flattens a list of scalars or a comma separated string.
func Strings(v any) []string {
	if s, ok := v.(string); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	items, ok := v.([]any)
	if !ok {
		values, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil
		}
		return values
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := String(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Maps returns the entries of a list that are objects. Non-object entries are skipped.
func Maps(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		// Post-meta arrays sometimes arrive keyed by index.
		out := make([]map[string]any, 0, len(list))
		for _, key := range sortedKeys(list) {
			if m, ok := list[key].(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// Has reports whether the key is present, even with a null value.
func Has(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}
