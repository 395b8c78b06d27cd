package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerBuffersDeltasAndDispatchesOnce(t *testing.T) {
	a := newAssembler()
	a.begin("call_1", "item_1", "search", "resp_1")
	a.link("call_1", "item_1", "item_0")
	a.appendDelta("call_1", "resp_1", `{"query":`)
	a.appendDelta("call_1", "resp_1", `"cnh"}`)

	call, ok := a.complete("call_1", "resp_1", "", "")
	require.True(t, ok)
	assert.Equal(t, "search", call.Name)
	assert.Equal(t, "item_1", call.ItemID)
	assert.Equal(t, "item_0", call.PreviousItemID)
	assert.JSONEq(t, `{"query":"cnh"}`, string(call.Arguments))

	_, ok = a.complete("call_1", "resp_1", "search", `{"query":"cnh"}`)
	assert.False(t, ok)

	_, cont := a.finish("call_1")
	assert.False(t, cont)

	// Late completion events for a finished call are ignored.
	_, ok = a.complete("call_1", "resp_1", "search", `{"query":"cnh"}`)
	assert.False(t, ok)
	assert.Equal(t, 0, a.pending())

	late, cont := a.responseDone("resp_1")
	assert.Empty(t, late)
	assert.True(t, cont)
}

func TestAssemblerWaitsForEveryCallOfResponse(t *testing.T) {
	a := newAssembler()
	a.begin("call_1", "item_1", "search", "resp_1")
	a.begin("call_2", "item_2", "report_grounding", "resp_1")
	_, ok := a.complete("call_1", "resp_1", "", `{}`)
	require.True(t, ok)
	_, ok = a.complete("call_2", "resp_1", "", `{}`)
	require.True(t, ok)

	late, cont := a.responseDone("resp_1")
	assert.Empty(t, late)
	assert.False(t, cont)

	_, cont = a.finish("call_1")
	assert.False(t, cont)
	id, cont := a.finish("call_2")
	assert.True(t, cont)
	assert.Equal(t, "resp_1", id)
}

func TestAssemblerDispatchesIncompleteCallsOnResponseDone(t *testing.T) {
	a := newAssembler()
	a.begin("call_1", "item_1", "search", "resp_1")
	a.appendDelta("call_1", "resp_1", `{"query":"multas"}`)

	late, cont := a.responseDone("resp_1")
	require.Len(t, late, 1)
	assert.False(t, cont)
	assert.JSONEq(t, `{"query":"multas"}`, string(late[0].Arguments))

	_, cont = a.finish("call_1")
	assert.True(t, cont)
}

func TestAssemblerResponseWithoutCalls(t *testing.T) {
	a := newAssembler()
	late, cont := a.responseDone("resp_9")
	assert.Nil(t, late)
	assert.False(t, cont)
}
