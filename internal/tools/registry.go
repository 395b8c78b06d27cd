// Package tools maps tool names advertised to the model onto their handlers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/voicerag/internal/domain"
	"github.com/xiaot623/voicerag/internal/protocol"
)

// ExecutorFunc runs a tool with arguments already checked against its schema.
type ExecutorFunc func(ctx context.Context, args map[string]any) (domain.ToolResult, error)

// Descriptor is a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      Schema
	Executor    ExecutorFunc
}

// Registry stores tool descriptors keyed by tool name.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Descriptor
	order   []string
	frozen  bool
	timeout time.Duration
}

// NewRegistry creates an empty registry. A zero timeout disables the per-call deadline.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		tools:   make(map[string]*Descriptor),
		timeout: timeout,
	}
}

// Register adds a tool. Names are unique per registry.
func (r *Registry) Register(name, description string, schema Schema, exec ExecutorFunc) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if exec == nil {
		return fmt.Errorf("executor is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", domain.ErrRegistryFrozen, name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTool, name)
	}
	r.tools[name] = &Descriptor{
		Name:        name,
		Description: description,
		Schema:      schema,
		Executor:    exec,
	}
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a tool or panics.
func (r *Registry) MustRegister(name, description string, schema Schema, exec ExecutorFunc) {
	if err := r.Register(name, description, schema, exec); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions returns the tool list advertised to the model, in registration order.
func (r *Registry) Definitions() []protocol.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]protocol.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name]
		defs = append(defs, protocol.ToolDefinition{
			Type:        "function",
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema.JSON(),
		})
	}
	return defs
}

// Dispatch validates the arguments and runs the tool.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (domain.ToolResult, error) {
	r.mu.RLock()
	d := r.tools[name]
	r.mu.RUnlock()
	if d == nil {
		return domain.ToolResult{}, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}

	decoded, err := d.Schema.Validate(name, args)
	if err != nil {
		return domain.ToolResult{}, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := d.Executor(ctx, decoded)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ToolResult{}, fmt.Errorf("%w: %s", domain.ErrToolTimeout, name)
		}
		var argErr *domain.ArgumentError
		if errors.As(err, &argErr) {
			return domain.ToolResult{}, err
		}
		return domain.ToolResult{}, &domain.ToolExecutionError{Tool: name, Err: err}
	}
	return res, nil
}

// ErrorOutput renders a dispatch failure as the function call output sent to the model.
// Execution errors carry a generic reason; the underlying error is only logged.
func ErrorOutput(err error) string {
	var msg string
	var argErr *domain.ArgumentError
	switch {
	case errors.As(err, &argErr):
		msg = argErr.Error()
	case errors.Is(err, domain.ErrToolNotFound):
		msg = "unknown tool"
	case errors.Is(err, domain.ErrToolTimeout):
		msg = "tool timed out"
	default:
		msg = "tool execution failed"
	}
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
