// Package payload extracts human-meaningful structures from the loosely
// typed JSON blobs the device embeds in RPC results. Every function here is
// best-effort: a structural mismatch degrades to a nil result, never an
// error.
package payload

import (
	"encoding/json"
	"strings"
)

const (
	uciProposalHeader  = "UCI提案:\n"
	uciProposalGeneric = "UCI提案があります。"
)

// uciSections is the fixed enumeration order of UCI change-list sections
var uciSections = []string{"set", "add", "delete", "add_list", "del_list", "reorder"}

// FormatUCIProposal renders a pending configuration-change proposal as a
// display string. Returns nil unless the payload carries uci_notify=true;
// returns a generic notice when no structured change list is present.
func FormatUCIProposal(raw json.RawMessage) *string {
	obj, ok := asObject(raw)
	if !ok {
		return nil
	}
	notify, _ := obj["uci_notify"].(bool)
	if !notify {
		return nil
	}

	list, ok := obj["uci_list"].(map[string]any)
	if !ok {
		s := uciProposalGeneric
		return &s
	}

	var parts []string
	for _, section := range uciSections {
		arr, ok := list[section].([]any)
		if !ok {
			continue
		}
		var lines []string
		for _, item := range arr {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			param, ok := entry["param"].(string)
			if !ok {
				continue
			}
			lines = append(lines, "  "+param)
		}
		if len(lines) > 0 {
			parts = append(parts, section+":\n"+strings.Join(lines, "\n"))
		}
	}

	if len(parts) == 0 {
		s := uciProposalGeneric
		return &s
	}
	s := uciProposalHeader + strings.Join(parts, "\n")
	return &s
}

// ParseToolLabel extracts a display label for tool usage from the tool_info
// payload. Precedence: name > tool > tools > tool_outputs; a blank result
// is reported as nil, never as an empty string.
func ParseToolLabel(raw json.RawMessage) *string {
	obj, ok := asObject(raw)
	if !ok || len(obj) == 0 {
		return nil
	}

	if name, ok := obj["name"].(string); ok && strings.TrimSpace(name) != "" {
		return &name
	}
	if tool, ok := obj["tool"].(string); ok && strings.TrimSpace(tool) != "" {
		return &tool
	}
	if label := joinToolNames(obj["tools"], true); label != nil {
		return label
	}
	return joinToolNames(obj["tool_outputs"], false)
}

// ExtractToolNamesFromContent applies the tools/tool_outputs extraction
// directly to chat content that looks like embedded JSON. A non-nil result
// means the content was a tool-call echo and should be suppressed from
// display.
func ExtractToolNamesFromContent(text string) *string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	if label := joinToolNames(obj["tool_outputs"], false); label != nil {
		return label
	}
	return joinToolNames(obj["tools"], true)
}

// joinToolNames collects non-blank names from an array of objects-with-name
// (and, when allowScalars is set, raw string entries), joined with ", "
func joinToolNames(v any, allowScalars bool) *string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range arr {
		var name string
		switch t := item.(type) {
		case map[string]any:
			name, _ = t["name"].(string)
		case string:
			if allowScalars {
				name = t
			}
		}
		if strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	joined := strings.Join(names, ", ")
	return &joined
}

// asObject decodes raw into a generic object, unwrapping one level of
// JSON-string encoding when the payload arrives double-encoded
func asObject(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, true
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(inner), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
