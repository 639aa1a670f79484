package export

import (
	"fmt"
	"strings"

	"github.com/watsonhub/ibmcloudkit/registry"
)

// Summary renders a human-readable tool listing grouped by module, in
// registration order.
func Summary(reg *registry.Registry) []byte {
	var b strings.Builder
	b.WriteString("IBM Cloud Toolkit - Available Tools\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, m := range reg.Modules() {
		fmt.Fprintf(&b, "%s (%d tools)\n", m.Name, len(m.Tools))
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, def := range m.Tools {
			fmt.Fprintf(&b, "  * %s\n", def.Name)
			fmt.Fprintf(&b, "    %s\n", def.Description)
			if len(def.Params) > 0 {
				names := make([]string, len(def.Params))
				for i, p := range def.Params {
					names[i] = p.Name
				}
				fmt.Fprintf(&b, "    params: %s\n", strings.Join(names, ", "))
			}
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}
