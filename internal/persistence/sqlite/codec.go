package sqlite

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored instants sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		// Rows written by hand or by older builds may use plain RFC 3339.
		parsed, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", value, err)
		}
	}
	return parsed.UTC(), nil
}

func encodeCounts(counts map[string]int) (string, error) {
	if len(counts) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode counts: %w", err)
	}
	return string(data), nil
}

func decodeCounts(value string) (map[string]int, error) {
	if value == "" || value == "{}" || value == "null" {
		return nil, nil
	}
	var counts map[string]int
	if err := json.Unmarshal([]byte(value), &counts); err != nil {
		return nil, fmt.Errorf("sqlite: decode counts: %w", err)
	}
	if len(counts) == 0 {
		return nil, nil
	}
	return counts, nil
}

func rawOrDefault(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
