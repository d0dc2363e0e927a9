package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolLabel_ExtractsNameFromSimpleObject(t *testing.T) {
	result := ParseToolLabel(json.RawMessage(`{"name": "wifi_scan", "arguments": {}}`))

	require.NotNil(t, result)
	assert.Equal(t, "wifi_scan", *result)
}

func TestParseToolLabel_ExtractsToolField(t *testing.T) {
	result := ParseToolLabel(json.RawMessage(`{"tool": "reboot_system"}`))

	require.NotNil(t, result)
	assert.Equal(t, "reboot_system", *result)
}

func TestParseToolLabel_ExtractsFromToolsArray(t *testing.T) {
	result := ParseToolLabel(json.RawMessage(`{"tools": [{"name": "tool1"}, {"name": "tool2"}]}`))

	require.NotNil(t, result)
	assert.Equal(t, "tool1, tool2", *result)
}

func TestParseToolLabel_ExtractsScalarToolEntries(t *testing.T) {
	result := ParseToolLabel(json.RawMessage(`{"tools": ["tool1", "", "tool2"]}`))

	require.NotNil(t, result)
	assert.Equal(t, "tool1, tool2", *result)
}

func TestParseToolLabel_ExtractsFromToolOutputs(t *testing.T) {
	result := ParseToolLabel(json.RawMessage(`{"tool_outputs": [{"name": "output1"}, {"name": "output2"}]}`))

	require.NotNil(t, result)
	assert.Equal(t, "output1, output2", *result)
}

func TestParseToolLabel_PrecedenceOrder(t *testing.T) {
	// All candidate fields present at once: name wins
	result := ParseToolLabel(json.RawMessage(`{"name": "n", "tool": "t", "tools": [{"name": "x"}], "tool_outputs": [{"name": "y"}]}`))
	require.NotNil(t, result)
	assert.Equal(t, "n", *result)

	// Without name: tool wins over the arrays
	result = ParseToolLabel(json.RawMessage(`{"tool": "t", "tools": [{"name": "x"}]}`))
	require.NotNil(t, result)
	assert.Equal(t, "t", *result)
}

func TestParseToolLabel_ReturnsNilForInvalidInput(t *testing.T) {
	assert.Nil(t, ParseToolLabel(json.RawMessage(`{"other": "value"}`)))
	assert.Nil(t, ParseToolLabel(json.RawMessage(`{}`)))
	assert.Nil(t, ParseToolLabel(nil))
	assert.Nil(t, ParseToolLabel(json.RawMessage(`"not json at all`)))
}

func TestParseToolLabel_NeverReturnsBlank(t *testing.T) {
	assert.Nil(t, ParseToolLabel(json.RawMessage(`{"name": "  "}`)))
	assert.Nil(t, ParseToolLabel(json.RawMessage(`{"tools": ["", "  "]}`)))
	assert.Nil(t, ParseToolLabel(json.RawMessage(`{"tool_outputs": [{"name": ""}]}`)))
}

func TestParseToolLabel_HandlesStringInput(t *testing.T) {
	// Tool info sometimes arrives as a JSON string holding JSON
	raw, err := json.Marshal(`{"name": "string_tool"}`)
	require.NoError(t, err)

	result := ParseToolLabel(raw)

	require.NotNil(t, result)
	assert.Equal(t, "string_tool", *result)
}

func TestFormatUCIProposal_ReturnsNilIfNotifyFalse(t *testing.T) {
	assert.Nil(t, FormatUCIProposal(json.RawMessage(`{"uci_notify": false, "uci_list": {"set": [{"param": "a=b"}]}}`)))
	assert.Nil(t, FormatUCIProposal(nil))
}

func TestFormatUCIProposal_GenericMessageWithoutList(t *testing.T) {
	result := FormatUCIProposal(json.RawMessage(`{"uci_notify": true}`))
	require.NotNil(t, result)
	assert.Equal(t, "UCI提案があります。", *result)

	result = FormatUCIProposal(json.RawMessage(`{"uci_notify": true, "uci_list": {}}`))
	require.NotNil(t, result)
	assert.Equal(t, "UCI提案があります。", *result)
}

func TestFormatUCIProposal_FormatsCorrectly(t *testing.T) {
	input := `{"uci_notify": true, "uci_list": {"set": [{"param": "wireless.radio0.disabled=0"}, {"param": "network.lan.ipaddr=192.168.1.1"}], "delete": [{"param": "firewall.@rule[0]"}]}}`

	result := FormatUCIProposal(json.RawMessage(input))

	expected := "UCI提案:\n" +
		"set:\n" +
		"  wireless.radio0.disabled=0\n" +
		"  network.lan.ipaddr=192.168.1.1\n" +
		"delete:\n" +
		"  firewall.@rule[0]"
	require.NotNil(t, result)
	assert.Equal(t, expected, *result)
}

func TestFormatUCIProposal_SectionOrderIsFixed(t *testing.T) {
	// delete listed before set in the input; output order must not follow it
	input := `{"uci_notify": true, "uci_list": {"delete": [{"param": "d"}], "set": [{"param": "s"}]}}`

	result := FormatUCIProposal(json.RawMessage(input))

	require.NotNil(t, result)
	assert.Equal(t, "UCI提案:\nset:\n  s\ndelete:\n  d", *result)
}

func TestFormatUCIProposal_SkipsEntriesWithoutParam(t *testing.T) {
	input := `{"uci_notify": true, "uci_list": {"set": [{"other": "x"}, {"param": "kept"}]}}`

	result := FormatUCIProposal(json.RawMessage(input))

	require.NotNil(t, result)
	assert.Equal(t, "UCI提案:\nset:\n  kept", *result)
}

func TestExtractToolNamesFromContent(t *testing.T) {
	t.Run("tool outputs echo", func(t *testing.T) {
		result := ExtractToolNamesFromContent(`{"tool_outputs": [{"name": "a"}, {"name": "b"}]}`)
		require.NotNil(t, result)
		assert.Equal(t, "a, b", *result)
	})

	t.Run("tools fallback", func(t *testing.T) {
		result := ExtractToolNamesFromContent(`  {"tools": ["x"]}`)
		require.NotNil(t, result)
		assert.Equal(t, "x", *result)
	})

	t.Run("plain text is ignored", func(t *testing.T) {
		assert.Nil(t, ExtractToolNamesFromContent("hello there"))
	})

	t.Run("broken json is ignored", func(t *testing.T) {
		assert.Nil(t, ExtractToolNamesFromContent(`{"tools": [`))
	})

	t.Run("empty result is nil", func(t *testing.T) {
		assert.Nil(t, ExtractToolNamesFromContent(`{"tool_outputs": []}`))
	})
}

func TestScanActions(t *testing.T) {
	t.Run("restart target at top level", func(t *testing.T) {
		acts := ScanActions(json.RawMessage(`{"restart_service": "network"}`))
		assert.Equal(t, "network", acts.RestartService)
		assert.False(t, acts.Shutdown)
	})

	t.Run("shutdown nested in tool outputs", func(t *testing.T) {
		acts := ScanActions(json.RawMessage(`{"tool_outputs": [{"name": "power", "result": {"shutdown": true}}]}`))
		assert.True(t, acts.Shutdown)
	})

	t.Run("string-encoded nested json", func(t *testing.T) {
		acts := ScanActions(json.RawMessage(`{"tools": ["{\"restart_service\": \"dnsmasq\"}"]}`))
		assert.Equal(t, "dnsmasq", acts.RestartService)
	})

	t.Run("nothing found", func(t *testing.T) {
		acts := ScanActions(json.RawMessage(`{"content": "hi", "shutdown": false}`))
		assert.True(t, acts.Empty())
	})

	t.Run("garbage absorbed", func(t *testing.T) {
		assert.True(t, ScanActions(json.RawMessage(`{{{`)).Empty())
		assert.True(t, ScanActionsInText("plain words").Empty())
	})
}
