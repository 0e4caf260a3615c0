package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorText renders an Ironic API error response as "Error <code>: <text>".
// The text comes from error_message (which older controllers send as a
// JSON-encoded string), then faultstring, then title, then the raw body.
func ErrorText(status int, body []byte) string {
	raw := string(body)

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Sprintf("Error %d: %s", status, raw)
	}

	fields := doc
	if msg, ok := doc["error_message"]; ok {
		switch m := msg.(type) {
		case map[string]any:
			fields = m
		case string:
			fields = map[string]any{}
			_ = json.Unmarshal([]byte(m), &fields)
		default:
			fields = map[string]any{}
		}
	}

	for _, key := range []string{"faultstring", "title"} {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			return fmt.Sprintf("Error %d: %s", status, s)
		}
	}
	return fmt.Sprintf("Error %d: %s", status, raw)
}
