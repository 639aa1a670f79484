// Package export renders the tool catalog into the artifacts watsonx
// Orchestrate imports: an OpenAPI 3.0 document, a toolkit manifest, and a
// human-readable summary. Rendering is deterministic: the same catalog
// always produces byte-identical output, so regenerated files diff cleanly.
package export

import (
	"bytes"
	"encoding/json"

	"github.com/watsonhub/ibmcloudkit/registry"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// ToolkitVersion is stamped into the exported info blocks.
const ToolkitVersion = "1.0.0"

// DefaultServerURL is the placeholder Orchestrate endpoint used when no
// instance URL is configured.
const DefaultServerURL = "https://your-instance.orchestrate.cloud.ibm.com"

// Config carries export-time settings.
type Config struct {
	// ServerURL is the watsonx Orchestrate instance the document points at.
	ServerURL string
}

func (c Config) serverURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return DefaultServerURL
}

// obj is a JSON object that marshals its keys in insertion order. Plain maps
// would marshal sorted, which breaks the path ordering contract.
type obj struct {
	keys   []string
	values map[string]any
}

func newObj() *obj {
	return &obj{values: make(map[string]any)}
}

func (o *obj) set(key string, value any) *obj {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
	return o
}

func (o *obj) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// schemaType maps declared parameter types onto JSON schema types.
func schemaType(paramType string) (string, error) {
	switch paramType {
	case tool.TypeString, tool.TypeInteger, tool.TypeBoolean, tool.TypeArray, tool.TypeObject:
		return paramType, nil
	case tool.TypeFloat:
		return "number", nil
	default:
		return "", tool.Errorf(tool.KindExport, "parameter type %q has no schema representation", paramType)
	}
}

func paramSchema(p tool.ParamSpec) (*obj, error) {
	st, err := schemaType(p.Type)
	if err != nil {
		return nil, err
	}
	s := newObj().
		set("type", st).
		set("description", p.Description)
	if p.Default != nil {
		s.set("default", p.Default)
	}
	return s, nil
}

func requestBody(def tool.Definition) (*obj, error) {
	if len(def.Params) == 0 {
		return nil, nil
	}
	properties := newObj()
	required := []string{}
	for _, p := range def.Params {
		s, err := paramSchema(p)
		if err != nil {
			return nil, tool.WrapErr(tool.KindExport, err, "tool %q, parameter %q", def.Name, p.Name)
		}
		properties.set(p.Name, s)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := newObj().
		set("type", "object").
		set("properties", properties).
		set("required", required)
	return newObj().
		set("required", len(required) > 0).
		set("content", newObj().set("application/json", newObj().set("schema", schema))), nil
}

func operation(def tool.Definition) (*obj, error) {
	body, err := requestBody(def)
	if err != nil {
		return nil, err
	}
	op := newObj().
		set("operationId", def.Name).
		set("summary", def.Description).
		set("description", def.Description)
	if body != nil {
		op.set("requestBody", body)
	}
	op.set("responses", newObj().
		set("200", newObj().
			set("description", "Successful response").
			set("content", newObj().set("application/json", newObj().set("schema", newObj().set("type", "object"))))).
		set("400", newObj().set("description", "Bad request, check parameters")).
		set("401", newObj().set("description", "Authentication failed, check IBM Cloud API key")).
		set("500", newObj().set("description", "Internal error")))
	return op, nil
}

// OpenAPI renders the catalog as an indented OpenAPI 3.0 document. Paths
// appear in registration order, one POST operation per tool, with the
// operationId equal to the tool name.
func OpenAPI(reg *registry.Registry, cfg Config) ([]byte, error) {
	paths := newObj()
	for _, def := range reg.All() {
		op, err := operation(def)
		if err != nil {
			return nil, err
		}
		paths.set("/"+def.Name, newObj().set("post", op))
	}

	doc := newObj().
		set("openapi", "3.0.0").
		set("info", newObj().
			set("title", "IBM Cloud Toolkit for watsonx Orchestrate").
			set("version", ToolkitVersion).
			set("description", "Tools for managing IBM Cloud services including Code Engine, Cloud Logs, Cloud Monitoring, and IBM Cloud Databases. Import this spec into watsonx Orchestrate to create AI agents that can operate IBM Cloud infrastructure.").
			set("contact", newObj().
				set("name", "IBM Cloud Toolkit").
				set("url", "https://cloud.ibm.com"))).
		set("servers", []any{newObj().
			set("url", cfg.serverURL()).
			set("description", "watsonx Orchestrate on IBM Cloud")}).
		set("paths", paths).
		set("components", newObj().
			set("securitySchemes", newObj().
				set("IBMCloudApiKey", newObj().
					set("type", "apiKey").
					set("in", "header").
					set("name", "Authorization").
					set("description", "IBM Cloud IAM bearer token.")))).
		set("security", []any{newObj().set("IBMCloudApiKey", []string{})})

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, tool.WrapErr(tool.KindExport, err, "marshal openapi document")
	}
	return append(out, '\n'), nil
}
