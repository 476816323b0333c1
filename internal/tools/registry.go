package tools

import (
	"fmt"
	"sort"
	"sync"

	"toolgate/internal/logging"
)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	// byPrefix provides the exact-match fast path for command prefixes.
	byPrefix map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*Tool),
		byPrefix: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.CommandPrefix != "" {
		if other, exists := r.byPrefix[tool.CommandPrefix]; exists {
			return fmt.Errorf("%w: prefix %q already claimed by %s",
				ErrToolAlreadyRegistered, tool.CommandPrefix, other.Name)
		}
	}

	// Set default priority if not specified
	if tool.Priority == 0 {
		tool.Priority = 50
	}

	r.tools[tool.Name] = tool
	if tool.CommandPrefix != "" {
		r.byPrefix[tool.CommandPrefix] = tool
	}

	logging.ToolsDebug("Registered tool: %s (prefix=%q, priority=%d)", tool.Name, tool.CommandPrefix, tool.Priority)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at init time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// ByPrefix returns the tool claiming an exact command prefix, or nil.
func (r *Registry) ByPrefix(prefix string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPrefix[prefix]
}

// All returns all registered tools sorted by priority (highest first),
// name as tiebreaker so iteration order is deterministic.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
