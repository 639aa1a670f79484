package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watsonhub/ibmcloudkit/export"
	"github.com/watsonhub/ibmcloudkit/history"
	"github.com/watsonhub/ibmcloudkit/registry"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke the tool catalog",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())
	cmd.AddCommand(newToolsHistoryCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools grouped by service module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			reg, err := newCatalog(nil, s)
			if err != nil {
				return exitError(exitFailure, "building tool catalog: %v", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(export.Summary(reg)))
			return nil
		},
	}
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke one tool and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}

	cmd.Flags().StringArrayP("arg", "a", nil, "Tool argument as key=value (repeatable; value parsed as JSON when possible)")
	cmd.Flags().String("args-json", "", "Tool arguments as one inline JSON object")
	cmd.Flags().Duration("timeout", time.Minute, "Invocation time budget")
	cmd.Flags().String("store-path", "", "SQLite invocation history path (default: ~/.ibmcloudkit/history.db)")
	cmd.Flags().Bool("no-history", false, "Do not record this invocation")

	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	kit, err := newToolkit(cmd, nil)
	if err != nil {
		return err
	}

	toolArgs, err := parseCallArgs(cmd)
	if err != nil {
		return err
	}

	observers, closeStore, err := callObservers(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	disp := registry.NewDispatcher(registry.DispatcherConfig{
		Registry:  kit.registry,
		Observers: observers,
		Logger:    slog.Default(),
	})

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := disp.Call(ctx, args[0], toolArgs)
	if err != nil {
		return exitError(exitCodeFor(err), "%v", err)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return exitError(exitFailure, "encoding result: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

// parseCallArgs merges --args-json with repeated --arg key=value flags,
// the latter winning. Flag values are decoded as JSON scalars where they
// parse, so --arg limit=50 arrives as a number and --arg query=foo as a
// string.
func parseCallArgs(cmd *cobra.Command) (map[string]any, error) {
	toolArgs := map[string]any{}

	if inline, _ := cmd.Flags().GetString("args-json"); inline != "" {
		if err := json.Unmarshal([]byte(inline), &toolArgs); err != nil {
			return nil, exitError(exitFailure, "parsing --args-json: %v", err)
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("arg")
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, exitError(exitFailure, "invalid --arg %q: expected key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		toolArgs[key] = value
	}
	return toolArgs, nil
}

// callObservers wires the invocation history recorder, unless disabled.
// The returned close function is always safe to call.
func callObservers(cmd *cobra.Command) ([]registry.Observer, func(), error) {
	if disabled, _ := cmd.Flags().GetBool("no-history"); disabled {
		return nil, func() {}, nil
	}

	store, err := openHistoryStore(cmd)
	if err != nil {
		return nil, func() {}, err
	}
	recorder := history.NewRecorder(store, func(err error) {
		slog.Default().Warn("recording invocation failed", "error", err)
	})
	return []registry.Observer{recorder}, func() { _ = store.Close() }, nil
}

func openHistoryStore(cmd *cobra.Command) (*history.SQLiteStore, error) {
	path, _ := cmd.Flags().GetString("store-path")
	if path == "" {
		var err error
		path, err = history.DefaultSQLitePath()
		if err != nil {
			return nil, exitError(exitConfig, "resolving history store path: %v", err)
		}
	}
	store, err := history.NewSQLiteStore(path)
	if err != nil {
		return nil, exitError(exitConfig, "opening history store: %v", err)
	}
	return store, nil
}

func newToolsHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool invocations, newest first",
		Args:  cobra.NoArgs,
		RunE:  runToolsHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of invocations to show")
	cmd.Flags().String("store-path", "", "SQLite invocation history path (default: ~/.ibmcloudkit/history.db)")

	return cmd
}

func runToolsHistory(cmd *cobra.Command, _ []string) error {
	store, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	recs, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return exitError(exitFailure, "reading history: %v", err)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no recorded invocations")
		return nil
	}
	for _, rec := range recs {
		status := "ok"
		if !rec.Success {
			status = "fail"
			if rec.ErrorKind != "" {
				status = "fail(" + rec.ErrorKind + ")"
			}
		}
		fmt.Fprintf(out, "%s  %-32s %-18s %6dms  %s\n",
			rec.StartedAt.UTC().Format(time.RFC3339), rec.Tool, rec.Module, rec.DurationMS, status)
	}
	return nil
}
