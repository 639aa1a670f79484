package export

import (
	"encoding/json"

	"github.com/watsonhub/ibmcloudkit/registry"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// Manifest renders the watsonx Orchestrate toolkit manifest: one entry per
// tool with its input schema and the module it belongs to as category.
func Manifest(reg *registry.Registry) ([]byte, error) {
	entries := make([]any, 0, reg.Len())
	for _, def := range reg.All() {
		properties := newObj()
		for _, p := range def.Params {
			s, err := paramSchema(p)
			if err != nil {
				return nil, tool.WrapErr(tool.KindExport, err, "tool %q, parameter %q", def.Name, p.Name)
			}
			properties.set(p.Name, s)
		}
		entries = append(entries, newObj().
			set("name", def.Name).
			set("description", def.Description).
			set("input_schema", newObj().
				set("type", "object").
				set("properties", properties)).
			set("category", reg.ModuleOf(def.Name)))
	}

	doc := newObj().
		set("toolkit_name", "ibm-cloud-toolkit").
		set("toolkit_version", ToolkitVersion).
		set("toolkit_description", "IBM Cloud management tools for watsonx Orchestrate").
		set("tools", entries).
		set("tool_count", reg.Len())

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, tool.WrapErr(tool.KindExport, err, "marshal tool manifest")
	}
	return append(out, '\n'), nil
}
