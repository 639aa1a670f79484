package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/watsonhub/ibmcloudkit/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ibmcloudkit",
	Short: "IBM Cloud management toolkit for watsonx Orchestrate",
	Long: "ibmcloudkit exposes IBM Cloud service operations (Code Engine, Cloud Logs, " +
		"Cloud Monitoring, Cloud Databases) as tools an AI agent can invoke, and " +
		"exports the schemas watsonx Orchestrate needs to import them as skills.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			level = slog.LevelError
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a settings file (default: ./ibmcloudkit.yaml, ~/.ibmcloudkit/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress all output except errors")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("ibmcloudkit version %s\n", version))

	rootCmd.AddCommand(cli.NewExportCmd())
	rootCmd.AddCommand(cli.NewCheckCmd())
	rootCmd.AddCommand(cli.NewToolsCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
}
