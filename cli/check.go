package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewCheckCmd creates the "check" subcommand.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the credential by performing one IAM token exchange",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}

	cmd.Flags().Duration("timeout", 30*time.Second, "Time budget for the token exchange")

	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	kit, err := newToolkit(cmd, nil)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	token, err := kit.manager.Token(ctx)
	if err != nil {
		return exitError(exitCodeFor(err), "token exchange failed: %v", err)
	}

	// Report the expiry only. The token value stays out of all output.
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "region:         %s\n", kit.settings.Region)
	fmt.Fprintf(out, "resource group: %s\n", kit.settings.ResourceGroup)
	fmt.Fprintf(out, "tools:          %d\n", kit.registry.Len())
	fmt.Fprintf(out, "token expires:  %s\n", token.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}
