package tool

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidateArgs checks args against the tool's declared parameters and returns
// a normalized copy: defaults applied, JSON numbers coerced to the declared
// type. It never touches the network; a failure here is always a validation
// error raised before any remote call.
func ValidateArgs(def Definition, args map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(def.Params))

	for name := range args {
		if _, ok := def.Param(name); !ok {
			return nil, &Error{
				Kind:    KindValidation,
				Tool:    def.Name,
				Message: fmt.Sprintf("unknown parameter %q", name),
			}
		}
	}

	for _, p := range def.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, &Error{
					Kind:    KindValidation,
					Tool:    def.Name,
					Message: fmt.Sprintf("missing required parameter %q", p.Name),
				}
			}
			if p.Default != nil {
				normalized[p.Name] = p.Default
			}
			continue
		}

		value, err := coerce(p, raw)
		if err != nil {
			return nil, &Error{
				Kind:    KindValidation,
				Tool:    def.Name,
				Message: err.Error(),
			}
		}
		normalized[p.Name] = value
	}

	return normalized, nil
}

// coerce converts a decoded JSON value to the declared parameter type.
// JSON decoding yields float64 for every number, so integer parameters
// accept integral floats.
func coerce(p ParamSpec, raw any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(p, raw)
		}
		return s, nil

	case TypeInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, typeMismatch(p, raw)
			}
			return int(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, typeMismatch(p, raw)
			}
			return int(n), nil
		default:
			return nil, typeMismatch(p, raw)
		}

	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, typeMismatch(p, raw)
			}
			return f, nil
		default:
			return nil, typeMismatch(p, raw)
		}

	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeMismatch(p, raw)
		}
		return b, nil

	case TypeArray:
		a, ok := raw.([]any)
		if !ok {
			return nil, typeMismatch(p, raw)
		}
		return a, nil

	case TypeObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, typeMismatch(p, raw)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("parameter %q declares unsupported type %q", p.Name, p.Type)
	}
}

func typeMismatch(p ParamSpec, raw any) error {
	return fmt.Errorf("parameter %q must be %s, got %T", p.Name, p.Type, raw)
}

// ValidateDefinition checks that a definition is well formed: non-empty name
// and description, and every parameter declares a known type. Registration
// calls this once at startup.
func ValidateDefinition(def Definition) error {
	if def.Name == "" {
		return Errorf(KindConfig, "tool with empty name")
	}
	if def.Handler == nil {
		return Errorf(KindConfig, "tool %q has no handler", def.Name)
	}
	seen := make(map[string]struct{}, len(def.Params))
	for _, p := range def.Params {
		if p.Name == "" {
			return Errorf(KindConfig, "tool %q declares a parameter with empty name", def.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return Errorf(KindConfig, "tool %q declares parameter %q twice", def.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if !ValidType(p.Type) {
			return Errorf(KindConfig, "tool %q parameter %q has unsupported type %q", def.Name, p.Name, p.Type)
		}
	}
	return nil
}
