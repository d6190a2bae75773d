// Package jsonutil pulls JSON documents out of model replies that may wrap
// them in markdown fences or surround them with prose.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a reply contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON content found")

// Unfence removes a leading ```lang line and the matching closing fence.
// Text without a leading fence is returned trimmed but otherwise unchanged.
func Unfence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	nl := strings.IndexByte(text, '\n')
	if nl == -1 {
		return text
	}
	body := text[nl+1:]
	if end := strings.LastIndex(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// Extract returns the first balanced JSON object or array in text.
// Braces inside string literals are ignored.
func Extract(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON starting at offset %d", start)
}

// Decode unfences raw, extracts the JSON document and unmarshals it into T.
func Decode[T any](raw string) (T, error) {
	var zero T
	doc, err := Extract(Unfence(raw))
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var out T
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		preview := doc
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return out, nil
}
