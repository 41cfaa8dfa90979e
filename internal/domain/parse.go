package domain

import (
	"encoding/json"
	"strings"
)

// ParseLocation extracts the "location" field from the first {...} block in
// provider output. Any parse failure yields "".
func ParseLocation(text string) string {
	block, ok := firstBlock(text, '{', '}')
	if !ok {
		return ""
	}
	var payload struct {
		Location *string `json:"location"`
	}
	if err := json.Unmarshal([]byte(block), &payload); err != nil || payload.Location == nil {
		return ""
	}
	return strings.TrimSpace(*payload.Location)
}

// ParseSelection extracts the first [...] block of 1-based indices from
// provider output and converts it to distinct 0-based indices below n, in
// the order given. ok is false when no array could be parsed.
func ParseSelection(text string, n int) (indices []int, ok bool) {
	block, found := firstBlock(text, '[', ']')
	if !found {
		return nil, false
	}
	var raw []json.Number
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, false
	}

	seen := make(map[int]bool, len(raw))
	for _, num := range raw {
		v, err := num.Int64()
		if err != nil {
			continue
		}
		idx := int(v) - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices, true
}

// firstBlock returns the shortest balanced open...close span starting at the
// first open rune. Brackets inside JSON strings are skipped.
func firstBlock(text string, open, closing byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
