// Package contract decodes the JSON objects that model calls must return.
package contract

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mikey/llm-reply-drafter/internal/core"
)

// Extract returns the outermost {...} block of a model response
func Extract(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// Decode parses a model response into v, failing when any required field is absent or null
func Decode(name, raw string, v any, required ...string) error {
	body, ok := Extract(raw)
	if !ok {
		return &core.JSONContractError{Contract: name, Reason: "no JSON object in response", Raw: raw}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return &core.JSONContractError{Contract: name, Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}
	for _, key := range required {
		value, ok := fields[key]
		if !ok || string(value) == "null" {
			return &core.JSONContractError{Contract: name, Reason: "missing required field " + key, Raw: raw}
		}
	}

	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &core.JSONContractError{Contract: name, Reason: fmt.Sprintf("field type mismatch: %v", err), Raw: raw}
	}
	return nil
}
