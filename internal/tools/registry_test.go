package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/voicerag/internal/domain"
)

var querySchema = Schema{Fields: []Field{
	{Name: "query", Type: TypeString, Description: "Search query", Required: true},
}}

func echoExecutor(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	return domain.TextResult(args["query"].(string)), nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(0)
	require.NoError(t, reg.Register("search", "", querySchema, echoExecutor))

	err := reg.Register("search", "", querySchema, echoExecutor)
	assert.ErrorIs(t, err, domain.ErrDuplicateTool)
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	reg := NewRegistry(0)
	reg.Freeze()

	err := reg.Register("search", "", querySchema, echoExecutor)
	assert.ErrorIs(t, err, domain.ErrRegistryFrozen)
}

func TestDispatchRunsHandler(t *testing.T) {
	reg := NewRegistry(time.Second)
	reg.MustRegister("search", "", querySchema, echoExecutor)

	res, err := reg.Dispatch(context.Background(), "search", json.RawMessage(`{"query":"renovação CNH"}`))
	require.NoError(t, err)
	assert.Equal(t, "renovação CNH", res.Text)
	assert.Equal(t, domain.ToolResultToServer, res.Direction)
}

func TestDispatchValidatesArguments(t *testing.T) {
	reg := NewRegistry(0)
	called := false
	reg.MustRegister("search", "", querySchema, func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		called = true
		return domain.ToolResult{}, nil
	})

	cases := map[string]string{
		"missing":    `{}`,
		"mistyped":   `{"query": 42}`,
		"not object": `["query"]`,
		"null":       `null`,
		"malformed":  `{"query":`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Dispatch(context.Background(), "search", json.RawMessage(args))
			var argErr *domain.ArgumentError
			assert.True(t, errors.As(err, &argErr), "expected ArgumentError, got %v", err)
		})
	}
	assert.False(t, called)
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := NewRegistry(0)
	_, err := reg.Dispatch(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestDispatchWrapsExecutionError(t *testing.T) {
	reg := NewRegistry(0)
	backendDown := errors.New("backend down")
	reg.MustRegister("search", "", querySchema, func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		return domain.ToolResult{}, backendDown
	})

	_, err := reg.Dispatch(context.Background(), "search", json.RawMessage(`{"query":"x"}`))
	var execErr *domain.ToolExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "search", execErr.Tool)
	assert.ErrorIs(t, err, backendDown)

	out := ErrorOutput(err)
	assert.JSONEq(t, `{"error":"tool execution failed"}`, out)
	assert.NotContains(t, out, "backend down")
}

func TestDispatchTimeout(t *testing.T) {
	reg := NewRegistry(20 * time.Millisecond)
	reg.MustRegister("slow", "", Schema{}, func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
		<-ctx.Done()
		return domain.ToolResult{}, ctx.Err()
	})

	start := time.Now()
	_, err := reg.Dispatch(context.Background(), "slow", nil)
	assert.ErrorIs(t, err, domain.ErrToolTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.JSONEq(t, `{"error":"tool timed out"}`, ErrorOutput(err))
}

func TestDefinitionsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry(0)
	reg.MustRegister("search", "Search the knowledge base", querySchema, echoExecutor)
	reg.MustRegister("report_grounding", "Report sources", Schema{Fields: []Field{
		{Name: "sources", Type: TypeArray, Items: TypeString, Required: true},
	}}, echoExecutor)

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "search", defs[0].Name)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "report_grounding", defs[1].Name)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {"sources": {"type": "array", "items": {"type": "string"}}},
		"required": ["sources"],
		"additionalProperties": false
	}`, string(defs[1].Parameters))
}
