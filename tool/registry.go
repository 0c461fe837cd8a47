package tool

import (
	"errors"
	"fmt"
)

// Registry maps tool names to implementations. It is populated once at
// process start and only read afterwards, so it carries no lock; do not call
// Register once requests are being served.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t under its name. It fails with *DuplicateToolError if the
// name is already taken.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("tool is nil")
	}

	name := t.Name()
	if name == "" {
		return errors.New("tool name is empty")
	}

	if _, exists := r.tools[name]; exists {
		return &DuplicateToolError{Name: name}
	}

	r.tools[name] = t
	r.order = append(r.order, name)

	return nil
}

// RegisterFunc registers a plain function under spec.
func (r *Registry) RegisterFunc(spec Spec, fn HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("tool %q: handler is nil", spec.Name)
	}
	return r.Register(NewFunctionTool(spec.Name, spec.Description, spec.Parameters, fn))
}

// MustRegister is like Register but panics on error. Intended for static setup.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the tool registered under name or *UnknownToolError.
func (r *Registry) Resolve(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

// Specs returns the specs of all tools in registration order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, SpecOf(r.tools[name]))
	}
	return specs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }
