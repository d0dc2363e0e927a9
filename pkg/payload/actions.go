package payload

import (
	"encoding/json"
	"strings"
)

// Actions holds side-effect triggers found inside a tool-execution result.
// They are surfaced as confirmation affordances, never executed directly.
type Actions struct {
	RestartService string
	Shutdown       bool
}

// Empty reports whether no trigger was found
func (a Actions) Empty() bool {
	return a.RestartService == "" && !a.Shutdown
}

const maxScanDepth = 16

// ScanActions walks an arbitrarily nested JSON document (objects, arrays
// and string-encoded nested JSON, including tool_outputs/tools sub-arrays)
// looking for a restart_service target and a shutdown flag. Parse failures
// are absorbed; the zero Actions value means nothing was found.
func ScanActions(raw json.RawMessage) Actions {
	var acts Actions
	if len(raw) == 0 {
		return acts
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return acts
	}
	scanValue(root, &acts, 0)
	return acts
}

// ScanActionsInText is ScanActions over a raw string, used for results the
// device returns as plain text that may contain JSON
func ScanActionsInText(text string) Actions {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return Actions{}
	}
	return ScanActions(json.RawMessage(text))
}

func scanValue(v any, acts *Actions, depth int) {
	if depth > maxScanDepth {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		if target, ok := t["restart_service"].(string); ok && target != "" && acts.RestartService == "" {
			acts.RestartService = target
		}
		if flag, ok := t["shutdown"].(bool); ok && flag {
			acts.Shutdown = true
		}
		for _, child := range t {
			scanValue(child, acts, depth+1)
		}
	case []any:
		for _, child := range t {
			scanValue(child, acts, depth+1)
		}
	case string:
		// Strings sometimes carry another JSON document
		trimmed := strings.TrimLeft(t, " \t\r\n")
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return
		}
		var nested any
		if err := json.Unmarshal([]byte(t), &nested); err != nil {
			return
		}
		scanValue(nested, acts, depth+1)
	}
}
