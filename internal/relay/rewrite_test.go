package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/voicerag/internal/protocol"
)

func testSession(defs []protocol.ToolDefinition) *Session {
	return &Session{
		opts:     Options{Instructions: "server prompt", Voice: "alloy"},
		toolDefs: defs,
	}
}

func TestRewriteSessionUpdateWithoutSession(t *testing.T) {
	s := testSession(nil)
	out, err := s.rewriteClientEvent(protocol.TypeSessionUpdate, []byte(`{"type":"session.update","event_id":"e1"}`))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "e1", got["event_id"])
	sess := got["session"].(map[string]any)
	assert.Equal(t, "server prompt", sess["instructions"])
	assert.Equal(t, "none", sess["tool_choice"])
	assert.Empty(t, sess["tools"])
}

func TestRewriteUnsupportedType(t *testing.T) {
	s := testSession(nil)
	_, err := s.rewriteClientEvent(protocol.TypeConversationItemCreate, []byte(`{"type":"conversation.item.create"}`))
	assert.Error(t, err)
}

func TestConfigMessage(t *testing.T) {
	s := testSession([]protocol.ToolDefinition{{Type: "function", Name: "search", Parameters: json.RawMessage(`{}`)}})
	data, err := json.Marshal(s.configMessage())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "session.update",
		"session": {
			"instructions": "server prompt",
			"voice": "alloy",
			"tools": [{"type": "function", "name": "search", "parameters": {}}],
			"tool_choice": "auto",
			"input_audio_transcription": {"model": "whisper-1"}
		}
	}`, string(data))
}
