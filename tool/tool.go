package tool

import "context"

// Parameter type literals used by tool declarations. They mirror the JSON
// types a watsonx Orchestrate skill invocation can carry.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

var validTypes = map[string]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeFloat:   {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
}

// ValidType reports whether t is a declarable parameter type.
func ValidType(t string) bool {
	_, ok := validTypes[t]
	return ok
}

// Handler executes one tool invocation. Args have already been validated
// against the declared parameters. The returned map is the structured result
// handed back to the orchestration platform; its shape is stable across
// calls to the same tool.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ParamSpec declares one named parameter of a tool.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Definition is one named, independently invocable operation exposed to the
// orchestration platform. Params is an ordered slice so that exports are
// deterministic and follow declaration order.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params,omitempty"`
	Handler     Handler     `json:"-"`
}

// Param returns the declared parameter with the given name.
func (d Definition) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Module is a named group of tool definitions contributed by one service
// integration (Code Engine, Cloud Logs, Cloud Monitoring, Databases).
type Module struct {
	Name  string       `json:"name"`
	Tools []Definition `json:"tools"`
}
