// Package tools implements the Tool Registry & Gate (spec.md §4.4): a
// named-tool registry plus the safety gate sitting between the kernel and
// each tool's invoker. Grounded on internal/plugins/{manifest,sandbox,
// sandbox_patterns,dangerous,permissions}.go and original_source/src/
// safety/yolo.rs.
package tools

import (
	"fmt"
	"sync"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
)

// Invoker executes one tool call and returns its JSON-shaped result.
type Invoker func(args map[string]any) (map[string]any, error)

type entry struct {
	descriptor kernel.ToolDescriptor
	invoke     Invoker
}

// Registry maps tool names to descriptors and invokers. Names are
// process-wide unique; registering a duplicate name is refused.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds desc/invoke under desc.Name, refusing a duplicate name.
func (r *Registry) Register(desc kernel.ToolDescriptor, invoke Invoker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("tool registry: tool %q already registered", desc.Name)
	}
	r.entries[desc.Name] = entry{descriptor: desc, invoke: invoke}
	return nil
}

// Descriptor returns the descriptor for name, or false if unknown.
func (r *Registry) Descriptor(name string) (kernel.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.descriptor, ok
}

// Invoke runs the registered tool named name with args. Returns an error
// if name is unknown.
func (r *Registry) Invoke(name string, args map[string]any) (map[string]any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool registry: unknown tool %q", name)
	}
	return e.invoke(args)
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
