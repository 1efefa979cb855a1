// Package jsonutil decodes JSON from chatty model output with best
// effort: direct unmarshal first, then extraction of the first
// balanced object span when the payload is wrapped in prose or
// markdown fences.
package jsonutil

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoObject = errors.New("jsonutil: no JSON object found")

// Unmarshal tries a direct decode of raw into v, then falls back to
// decoding the first balanced {...} span inside raw.
func Unmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	obj, err := ExtractObject(string(raw))
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(obj), v)
}

// ExtractObject returns the first balanced top-level JSON object in s.
// Markdown code fences are stripped first; brace matching is
// string-aware so braces inside string values do not unbalance the scan.
func ExtractObject(s string) (string, error) {
	s = stripFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoObject
	}
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
				candidate := s[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return "", ErrNoObject
				}
				return candidate, nil
			}
		}
	}
	return "", ErrNoObject
}

// stripFences removes a surrounding ```json ... ``` (or plain ```)
// block if one is present.
func stripFences(s string) string {
	if idx := strings.Index(s, "```json"); idx >= 0 {
		rest := s[idx+len("```json"):]
		if end := strings.LastIndex(rest, "```"); end > 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if end := strings.LastIndex(rest, "```"); end > 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return s
}
