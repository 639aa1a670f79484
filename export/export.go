package export

import (
	"os"
	"path/filepath"

	"github.com/watsonhub/ibmcloudkit/registry"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// File names written by WriteAll.
const (
	OpenAPIFile  = "ibm_cloud_toolkit_openapi.json"
	ManifestFile = "tool_manifest.json"
	SummaryFile  = "tools_summary.txt"
)

// WriteAll renders all three export artifacts into dir, creating it if
// needed. Returns the paths written.
func WriteAll(reg *registry.Registry, cfg Config, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tool.WrapErr(tool.KindExport, err, "create export directory %s", dir)
	}

	openapi, err := OpenAPI(reg, cfg)
	if err != nil {
		return nil, err
	}
	manifest, err := Manifest(reg)
	if err != nil {
		return nil, err
	}

	files := []struct {
		name string
		data []byte
	}{
		{OpenAPIFile, openapi},
		{ManifestFile, manifest},
		{SummaryFile, Summary(reg)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return nil, tool.WrapErr(tool.KindExport, err, "write %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
