package relay

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/voicerag/internal/domain"
)

type pendingCall struct {
	call       domain.ToolCall
	args       strings.Builder
	dispatched bool
}

type responseCalls struct {
	calls       []string
	outstanding int
	done        bool
}

// assembler collects function-call fragments by call id and tracks which
// responses still wait for tool outputs before the model may continue.
type assembler struct {
	mu        sync.Mutex
	calls     map[string]*pendingCall
	finished  map[string]struct{}
	responses map[string]*responseCalls
}

func newAssembler() *assembler {
	return &assembler{
		calls:     make(map[string]*pendingCall),
		finished:  make(map[string]struct{}),
		responses: make(map[string]*responseCalls),
	}
}

// getOrCreate returns nil for calls that already finished.
func (a *assembler) getOrCreate(callID, responseID string) *pendingCall {
	if _, done := a.finished[callID]; done {
		return nil
	}
	pc, ok := a.calls[callID]
	if !ok {
		pc = &pendingCall{call: domain.ToolCall{
			CallID:    callID,
			Status:    domain.ToolCallStatusPending,
			CreatedAt: time.Now(),
		}}
		a.calls[callID] = pc
	}
	if responseID != "" && pc.call.ResponseID == "" {
		pc.call.ResponseID = responseID
		rc := a.responses[responseID]
		if rc == nil {
			rc = &responseCalls{}
			a.responses[responseID] = rc
		}
		rc.calls = append(rc.calls, callID)
		rc.outstanding++
	}
	return pc
}

// begin registers a function_call output item.
func (a *assembler) begin(callID, itemID, name, responseID string) {
	if callID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pc := a.getOrCreate(callID, responseID)
	if pc == nil {
		return
	}
	if itemID != "" {
		pc.call.ItemID = itemID
	}
	if name != "" {
		pc.call.Name = name
	}
}

// link records the conversation item preceding the call.
func (a *assembler) link(callID, itemID, previousItemID string) {
	if callID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pc := a.getOrCreate(callID, "")
	if pc == nil {
		return
	}
	if itemID != "" {
		pc.call.ItemID = itemID
	}
	pc.call.PreviousItemID = previousItemID
}

func (a *assembler) appendDelta(callID, responseID, delta string) {
	if callID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pc := a.getOrCreate(callID, responseID)
	if pc != nil && !pc.dispatched {
		pc.args.WriteString(delta)
	}
}

// complete marks the call ready. It returns the call only the first time, so each
// call is dispatched exactly once whichever completion event arrives first.
func (a *assembler) complete(callID, responseID, name, arguments string) (domain.ToolCall, bool) {
	if callID == "" {
		return domain.ToolCall{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pc := a.getOrCreate(callID, responseID)
	if pc == nil || pc.dispatched {
		return domain.ToolCall{}, false
	}
	return a.markDispatched(pc, name, arguments), true
}

func (a *assembler) markDispatched(pc *pendingCall, name, arguments string) domain.ToolCall {
	if name != "" {
		pc.call.Name = name
	}
	if arguments == "" {
		arguments = pc.args.String()
	}
	if arguments == "" {
		arguments = "{}"
	}
	pc.call.Arguments = json.RawMessage(arguments)
	pc.call.Status = domain.ToolCallStatusRunning
	pc.dispatched = true
	return pc.call
}

// finish records a finished call. It reports the response id when that response
// is done and none of its calls is outstanding anymore.
func (a *assembler) finish(callID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pc, ok := a.calls[callID]
	if !ok {
		return "", false
	}
	delete(a.calls, callID)
	a.finished[callID] = struct{}{}
	rc := a.responses[pc.call.ResponseID]
	if rc == nil {
		return "", false
	}
	rc.outstanding--
	if rc.outstanding <= 0 && rc.done {
		delete(a.responses, pc.call.ResponseID)
		return pc.call.ResponseID, true
	}
	return "", false
}

// responseDone marks the response finished. It returns calls that never saw a
// completion event (to be dispatched now) and whether the model can continue
// immediately.
func (a *assembler) responseDone(responseID string) ([]domain.ToolCall, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rc := a.responses[responseID]
	if rc == nil {
		return nil, false
	}
	rc.done = true
	var late []domain.ToolCall
	for _, callID := range rc.calls {
		if pc, ok := a.calls[callID]; ok && !pc.dispatched {
			late = append(late, a.markDispatched(pc, "", ""))
		}
	}
	if rc.outstanding <= 0 {
		delete(a.responses, responseID)
		return late, true
	}
	return late, false
}

// pending returns the number of calls not finished yet.
func (a *assembler) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}
