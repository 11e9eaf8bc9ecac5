package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencedBlockRE matches a markdown code fence with an optional language tag,
// capturing the tag and the body.
var fencedBlockRE = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// ExtractJSON pulls the JSON payload out of a model response. Evaluator and
// comparator prompts ask for bare JSON, but models routinely wrap it in prose
// or a markdown fence anyway. Fenced blocks win over bare text; the first
// candidate that parses is returned.
func ExtractJSON(response string) (string, error) {
	if payload, ok := fencedJSON(response); ok {
		return payload, nil
	}
	if payload, ok := bareJSON(response); ok {
		return payload, nil
	}
	return "", fmt.Errorf("no valid JSON object found in response")
}

// fencedJSON scans markdown fences for a parseable JSON body. Fences tagged
// with a language other than json are skipped.
func fencedJSON(response string) (string, bool) {
	for _, match := range fencedBlockRE.FindAllStringSubmatch(response, -1) {
		if len(match) < 3 {
			continue
		}
		if lang := strings.ToLower(match[1]); lang != "" && lang != "json" {
			continue
		}
		body := strings.TrimSpace(match[2])
		if !strings.HasPrefix(body, "{") && !strings.HasPrefix(body, "[") {
			continue
		}
		if json.Valid([]byte(body)) {
			return body, true
		}
	}
	return "", false
}

// bareJSON finds the first balanced JSON object or array in unfenced text.
func bareJSON(response string) (string, bool) {
	objAt := strings.Index(response, "{")
	arrAt := strings.Index(response, "[")

	start := -1
	closer := byte('}')
	if objAt >= 0 && (arrAt < 0 || objAt < arrAt) {
		start = objAt
	} else if arrAt >= 0 {
		start = arrAt
		closer = ']'
	}
	if start < 0 {
		return "", false
	}

	candidate := balancedPrefix(response[start:], closer)
	if candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, true
	}
	return "", false
}

// balancedPrefix returns the prefix of s up to the closer that balances the
// opening bracket at s[0]. Brackets inside string literals don't count, and
// escape sequences are honored.
func balancedPrefix(s string, closer byte) string {
	if len(s) == 0 {
		return ""
	}
	opener := s[0]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
