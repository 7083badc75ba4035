package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when model output does not contain a JSON
// object matching the requested shape.
var ErrMalformedResponse = errors.New("malformed model response")

// DecodeJSON locates the first balanced JSON object in raw model output,
// tolerating markdown fences and surrounding prose, and unmarshals it into v.
func DecodeJSON(raw string, v any) error {
	obj := ExtractObject(raw)
	if obj == "" {
		return fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// ExtractObject returns the first balanced {...} in s, or "" if there is none.
// Braces inside JSON strings are ignored.
func ExtractObject(s string) string {
	s = stripFence(strings.ReplaceAll(s, "\r\n", "\n"))

	for from := 0; from < len(s); {
		rel := strings.IndexByte(s[from:], '{')
		if rel < 0 {
			return ""
		}
		start := from + rel
		if end := matchBrace(s, start); end > 0 {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
		from = start + 1
	}
	return ""
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (```json, ```, ...).
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
