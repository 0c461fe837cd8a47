package model

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/nablmesh/core"
)

// EncodeResult renders a tool result payload as the text body providers expect.
// Strings pass through unchanged; anything else is JSON encoded.
func EncodeResult(r core.ToolResult) string {
	switch p := r.Payload.(type) {
	case string:
		return p
	case nil:
		return "null"
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprintf("%v", p)
		}
		return string(b)
	}
}

// DecodeArguments parses raw JSON tool arguments. Empty or malformed input
// yields an empty mapping so the tool's own validation reports the problem.
func DecodeArguments(raw []byte) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// EncodeArguments renders tool arguments as a JSON object string.
func EncodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
