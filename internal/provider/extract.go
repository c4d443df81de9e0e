package provider

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls a JSON object or array out of a (possibly chatty) LLM
// text response the way the original _parse_json did: whichever of '{' or
// '[' occurs first in the text is scanned as a balanced span, tracking
// string-escape state so braces inside string literals don't throw off the
// depth count, falling back to a fenced ```json ... ``` code block, then
// giving up. Scanning the first-occurring delimiter matters because a
// top-level array's first element itself starts with '{' — always trying
// object-then-array would match just that one element and drop the rest.
func ExtractJSON(text string) (map[string]interface{}, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &Error{Kind: ErrKindEmpty, Message: "empty response"}
	}

	objIdx := strings.IndexByte(text, '{')
	arrIdx := strings.IndexByte(text, '[')
	tryObject := objIdx != -1 && (arrIdx == -1 || objIdx < arrIdx)

	if tryObject {
		if span := balancedSpan(text, '{', '}'); span != "" {
			var out map[string]interface{}
			if err := json.Unmarshal([]byte(span), &out); err == nil {
				return out, nil
			}
		}
		if span := balancedSpan(text, '[', ']'); span != "" {
			var arr []interface{}
			if err := json.Unmarshal([]byte(span), &arr); err == nil {
				return map[string]interface{}{"items": arr}, nil
			}
		}
	} else {
		if span := balancedSpan(text, '[', ']'); span != "" {
			var arr []interface{}
			if err := json.Unmarshal([]byte(span), &arr); err == nil {
				return map[string]interface{}{"items": arr}, nil
			}
		}
		if span := balancedSpan(text, '{', '}'); span != "" {
			var out map[string]interface{}
			if err := json.Unmarshal([]byte(span), &out); err == nil {
				return out, nil
			}
		}
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, nil
		}
		var arr []interface{}
		if err := json.Unmarshal([]byte(candidate), &arr); err == nil {
			return map[string]interface{}{"items": arr}, nil
		}
	}

	return nil, &Error{Kind: ErrKindInvalidJSON, Message: "invalid JSON response"}
}

// balancedSpan returns the first substring starting at open and ending at
// the matching close, respecting JSON string escaping so that braces or
// brackets written inside a quoted string never affect the depth count.
func balancedSpan(text string, open, close byte) string {
	idx := strings.IndexByte(text, open)
	if idx == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := idx; i < len(text); i++ {
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[idx : i+1]
			}
		}
	}
	return ""
}
