package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSON = errors.New("no JSON value found in content")

// DecodeJSON decodes model output into v, tolerating markdown fences and
// chatter around the JSON value. Failures are *ParseError.
func DecodeJSON(content string, v interface{}) error {
	cleaned := CleanJSON(content)
	if cleaned == "" {
		return &ParseError{Content: content, Err: errNoJSON}
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Content: content, Err: err}
	}
	return nil
}

// CleanJSON returns the outermost JSON object or array in content, or "" if
// there is none.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if content[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(content, closer)
	if end < start {
		return ""
	}
	return content[start : end+1]
}

// DecodeList accepts either a bare JSON array or an object holding the array
// under key. JSON mode only allows objects, so prompts ask for the wrapper.
func DecodeList(content, key string, out interface{}) error {
	cleaned := CleanJSON(content)
	if strings.HasPrefix(cleaned, "[") {
		return DecodeJSON(cleaned, out)
	}

	var wrapper map[string]json.RawMessage
	if err := DecodeJSON(content, &wrapper); err != nil {
		return err
	}
	inner, ok := wrapper[key]
	if !ok {
		return &ParseError{Content: content, Err: fmt.Errorf("missing %q field", key)}
	}
	return DecodeJSON(string(inner), out)
}
