package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/praxis-sh/praxis/api/schemas"
)

// ActionHandler executes one in-process action. Implementations must return
// recoverable failures as error values, not panics; the dispatcher treats a
// panic as last-resort containment, never as the primary error channel.
type ActionHandler interface {
	Execute(ctx context.Context, topic string, params map[string]any) (string, error)
}

// HandlerFunc adapts a plain function to the ActionHandler interface.
type HandlerFunc func(ctx context.Context, topic string, params map[string]any) (string, error)

func (f HandlerFunc) Execute(ctx context.Context, topic string, params map[string]any) (string, error) {
	return f(ctx, topic, params)
}

// Registry maps action types to their handlers: in-process implementations,
// dynamic tool manifests routed to the sandbox, and backward-compatibility
// aliases for legacy type names. It is populated once at startup and never
// mutated afterwards, so lookups need no locking.
type Registry struct {
	handlers  map[string]ActionHandler
	aliases   map[string]string
	manifests map[string]*schemas.ToolManifest
}

// NewRegistry returns an empty registry ready for startup registration.
func NewRegistry() *Registry {
	return &Registry{
		handlers:  make(map[string]ActionHandler),
		aliases:   make(map[string]string),
		manifests: make(map[string]*schemas.ToolManifest),
	}
}

// RegisterHandler binds an in-process handler to an action type.
func (r *Registry) RegisterHandler(actionType string, h ActionHandler) error {
	if actionType == "" {
		return fmt.Errorf("registry: action type cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("registry: handler for %q cannot be nil", actionType)
	}
	if _, exists := r.handlers[actionType]; exists {
		return fmt.Errorf("registry: handler for %q already registered", actionType)
	}
	r.handlers[actionType] = h
	return nil
}

// RegisterAlias maps a legacy action type name to a current one.
func (r *Registry) RegisterAlias(legacy, current string) error {
	if legacy == "" || current == "" {
		return fmt.Errorf("registry: alias names cannot be empty")
	}
	if _, exists := r.aliases[legacy]; exists {
		return fmt.Errorf("registry: alias %q already registered", legacy)
	}
	r.aliases[legacy] = current
	return nil
}

// RegisterTool binds a dynamic, sandboxed tool manifest to its action type.
func (r *Registry) RegisterTool(m *schemas.ToolManifest) error {
	if m == nil {
		return fmt.Errorf("registry: tool manifest cannot be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if _, exists := r.manifests[m.Name]; exists {
		return fmt.Errorf("registry: tool %q already registered", m.Name)
	}
	r.manifests[m.Name] = m
	return nil
}

// Resolve applies the alias table, returning the current name for a possibly
// legacy action type.
func (r *Registry) Resolve(actionType string) string {
	if current, ok := r.aliases[actionType]; ok {
		return current
	}
	return actionType
}

// Handler looks up the in-process handler for a resolved action type.
func (r *Registry) Handler(actionType string) (ActionHandler, bool) {
	h, ok := r.handlers[actionType]
	return h, ok
}

// Manifest looks up the dynamic tool manifest for a resolved action type.
func (r *Registry) Manifest(actionType string) (*schemas.ToolManifest, bool) {
	m, ok := r.manifests[actionType]
	return m, ok
}

// Types enumerates every registered action type, handlers and dynamic tools
// alike, sorted for deterministic output.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers)+len(r.manifests))
	for t := range r.handlers {
		types = append(types, t)
	}
	for t := range r.manifests {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
