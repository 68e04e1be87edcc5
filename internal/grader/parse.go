package grader

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const redacted = "[redacted]"

// extractJSON accepts a bare JSON object or the outermost object embedded in text.
func extractJSON(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	if obj, ok := decodeObject(text); ok {
		return obj, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	return decodeObject(text[start : end+1])
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// intField reads numbers and numeric strings; fractions are truncated.
func intField(obj map[string]any, key string) (int, bool) {
	switch v := obj[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return saturate(float64(i)), true
		}
		if f, err := v.Float64(); err == nil && !math.IsNaN(f) {
			return saturate(f), true
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
			return saturate(f), true
		}
	}
	return 0, false
}

func saturate(f float64) int {
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// redact removes every case-insensitive occurrence of secret from text.
func redact(text, secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" || text == "" {
		return text
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(secret))
	if err != nil {
		return strings.ReplaceAll(text, secret, redacted)
	}
	return re.ReplaceAllLiteralString(text, redacted)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func utf8Len(s string) int { return utf8.RuneCountInString(s) }
