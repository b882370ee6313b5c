package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```([a-zA-Z]*)[ \t]*\n(.*?)```")

// IsNone reports whether the reply is the model's "nothing to do" answer.
func IsNone(reply string) bool {
	s := strings.Trim(strings.TrimSpace(reply), "\"'`.")
	return strings.EqualFold(s, "NONE")
}

// ExtractJSON returns the first JSON object or array in reply, looking
// inside a code fence when there is one.
func ExtractJSON(reply string) (string, error) {
	text := reply
	for _, m := range fenceRe.FindAllStringSubmatch(reply, -1) {
		if lang := strings.ToLower(m[1]); lang == "json" || lang == "" {
			text = m[2]
			break
		}
	}

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return "", fmt.Errorf("no JSON in reply")
	}
	open := text[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON in reply")
}

// ParseStringList decodes a JSON array of strings from reply. NONE, an
// empty reply, or an empty array all yield an empty list.
func ParseStringList(reply string) ([]string, error) {
	if strings.TrimSpace(reply) == "" || IsNone(reply) {
		return []string{}, nil
	}
	raw, err := ExtractJSON(reply)
	if err != nil {
		return nil, err
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// ExtractSQL returns the SQL in reply: the contents of ```sql fences when
// present, otherwise the whole reply. NONE yields nothing.
func ExtractSQL(reply string) []string {
	if IsNone(reply) {
		return nil
	}
	var out []string
	for _, m := range fenceRe.FindAllStringSubmatch(reply, -1) {
		if strings.EqualFold(m[1], "sql") {
			if s := strings.TrimSpace(m[2]); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	if s := strings.TrimSpace(reply); s != "" {
		return []string{s}
	}
	return nil
}
