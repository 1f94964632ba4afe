package syncer

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Допуск сравнения процентов прогресса
const progressTolerance = 5.0

// stringField достает строковое поле, приводя числа и булевы значения
func stringField(fields map[string]any, key string) string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// boolField приводит значение к bool: принимает bool, числа и строки
// вида "true"/"1"/"yes"
func boolField(fields map[string]any, key string) (bool, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return false, false
	}
	switch v := raw.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// numberField приводит значение к float64
func numberField(fields map[string]any, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func stringsEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func floatsWithinTolerance(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// Форматы времени, встречающиеся в полях списков SharePoint
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp разбирает метку времени; nil - метка непригодна
func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}
