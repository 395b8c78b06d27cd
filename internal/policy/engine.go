package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/voicerag/internal/domain"
)

// Decision is the outcome of evaluating one client event.
type Decision struct {
	Action domain.PolicyAction
	Reason string
}

// Engine is the OPA policy engine for client events.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.relay.client_events.decision"),
		rego.Module("client_events.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or the default policy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks a decoded client event.
// The policy must yield an object {action: allow|rewrite|block, reason: string}.
func (e *Engine) Evaluate(ctx context.Context, event map[string]any) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(event))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy produced no decision")
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected decision type %T", results[0].Expressions[0].Value)
	}
	action, _ := obj["action"].(string)
	reason, _ := obj["reason"].(string)

	switch domain.PolicyAction(action) {
	case domain.PolicyActionAllow, domain.PolicyActionRewrite, domain.PolicyActionBlock:
		return Decision{Action: domain.PolicyAction(action), Reason: reason}, nil
	default:
		return Decision{}, fmt.Errorf("unknown policy action %q", action)
	}
}

// DefaultPolicy keeps the server-side prompt, tools and deployment out of the client's reach.
const DefaultPolicy = `
package relay.client_events

default decision = {"action": "allow", "reason": ""}

decision = {"action": "block", "reason": "tool calls and outputs are produced by the server"} {
	input.type == "conversation.item.create"
	tool_item_types[input.item.type]
} else = {"action": "block", "reason": "system messages are managed by the server"} {
	input.type == "conversation.item.create"
	input.item.role == "system"
} else = {"action": "block", "reason": "response input may not carry system messages or tool items"} {
	input.type == "response.create"
	some i
	server_only_item(input.response.input[i])
} else = {"action": "rewrite", "reason": "session configuration is managed by the server"} {
	input.type == "session.update"
} else = {"action": "rewrite", "reason": "response overrides are managed by the server"} {
	input.type == "response.create"
	response_override
}

tool_item_types = {"function_call", "function_call_output"}

server_only_item(item) {
	tool_item_types[item.type]
}

server_only_item(item) {
	item.role == "system"
}

response_override {
	server_owned[field]
	_ = input.response[field]
}

server_owned = {"instructions", "tools", "tool_choice", "voice", "model"}
`
