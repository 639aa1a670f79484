// Package registry maintains the ordered tool catalog and dispatches
// invocations to tool handlers by name.
//
// The catalog is built once at startup, module by module, and is read-only
// afterwards; there is no runtime tool registration. Registration order is
// preserved into every export so regenerated schemas diff cleanly.
package registry

import (
	"github.com/watsonhub/ibmcloudkit/tool"
)

// Registry is the ordered catalog of tool definitions. Register is called
// during startup wiring only; after that the registry is read-only and safe
// for concurrent readers without locking.
type Registry struct {
	defs     map[string]tool.Definition
	order    []string
	moduleOf map[string]string
	modules  []tool.Module
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		defs:     make(map[string]tool.Definition),
		moduleOf: make(map[string]string),
	}
}

// Register appends a module's tools to the catalog. Tool names must be
// globally unique: the orchestration platform keys skills by operation name,
// so a collision is a startup-time configuration error naming the tool.
func (r *Registry) Register(m tool.Module) error {
	seen := make(map[string]struct{}, len(m.Tools))
	for _, def := range m.Tools {
		if err := tool.ValidateDefinition(def); err != nil {
			return err
		}
		if owner, exists := r.moduleOf[def.Name]; exists {
			return tool.Errorf(tool.KindConfig,
				"duplicate tool name %q: registered by both %q and %q", def.Name, owner, m.Name)
		}
		if _, dup := seen[def.Name]; dup {
			return tool.Errorf(tool.KindConfig,
				"duplicate tool name %q within module %q", def.Name, m.Name)
		}
		seen[def.Name] = struct{}{}
	}
	for _, def := range m.Tools {
		r.defs[def.Name] = def
		r.order = append(r.order, def.Name)
		r.moduleOf[def.Name] = m.Name
	}
	r.modules = append(r.modules, m)
	return nil
}

// All returns the catalog in registration order.
func (r *Registry) All() []tool.Definition {
	out := make([]tool.Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []tool.Module {
	out := make([]tool.Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Resolve returns the definition registered under name.
func (r *Registry) Resolve(name string) (tool.Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return tool.Definition{}, &tool.Error{
			Kind:    tool.KindNotFound,
			Tool:    name,
			Message: "no tool registered under this name",
		}
	}
	return def, nil
}

// ModuleOf returns the name of the module that contributed the tool.
func (r *Registry) ModuleOf(name string) string {
	return r.moduleOf[name]
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}
