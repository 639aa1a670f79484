package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watsonhub/ibmcloudkit/export"
)

// NewExportCmd creates the "export" subcommand.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the OpenAPI document, tool manifest, and tool summary",
		Long: "Regenerates the importable skill artifacts from the tool catalog: an " +
			"OpenAPI 3.0 document for watsonx Orchestrate, a JSON tool manifest, and a " +
			"human-readable summary. Output is deterministic for an unchanged catalog.",
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().StringP("output", "o", ".", "Directory for the exported artifacts")
	cmd.Flags().String("server-url", "", "Server URL embedded in the OpenAPI document (default: configured Orchestrate instance URL)")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	reg, err := newCatalog(nil, s)
	if err != nil {
		return exitError(exitFailure, "building tool catalog: %v", err)
	}

	serverURL, _ := cmd.Flags().GetString("server-url")
	if serverURL == "" {
		serverURL = s.OrchestrateURL
	}
	dir, _ := cmd.Flags().GetString("output")

	paths, err := export.WriteAll(reg, export.Config{ServerURL: serverURL}, dir)
	if err != nil {
		return exitError(exitCodeFor(err), "export failed: %v", err)
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", p)
	}
	return nil
}
