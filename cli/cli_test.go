package cli

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/watsonhub/ibmcloudkit/config"
	"github.com/watsonhub/ibmcloudkit/history"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// newTestRoot mirrors the main command wiring: persistent flags plus the
// subcommands under test.
func newTestRoot(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:           "ibmcloudkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "")
	for _, c := range cmds {
		root.AddCommand(c)
	}
	return root
}

func execute(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// isolateEnv keeps the real home config and ambient credentials out of
// config discovery.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvAPIKey, "test-api-key")
	t.Setenv(config.EnvRegion, "")
	t.Setenv(config.EnvIAMTokenURL, "")
}

func newIAMServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "secret-bearer-value", "expires_in": 3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExportCmd_WritesArtifacts(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	out, err := execute(t, newTestRoot(NewExportCmd()), "export", "-o", dir)
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}

	for _, name := range []string{
		"ibm_cloud_toolkit_openapi.json",
		"tool_manifest.json",
		"tools_summary.txt",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
		if !strings.Contains(out, name) {
			t.Errorf("output does not mention %s:\n%s", name, out)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "ibm_cloud_toolkit_openapi.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"list_code_engine_projects"`) {
		t.Error("OpenAPI document is missing the Code Engine tools")
	}
}

func TestExportCmd_ServerURLOverride(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	_, err := execute(t, newTestRoot(NewExportCmd()),
		"export", "-o", dir, "--server-url", "https://skills.example.com")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "ibm_cloud_toolkit_openapi.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "https://skills.example.com") {
		t.Error("OpenAPI document does not carry the overridden server URL")
	}
}

func TestExportCmd_MissingAPIKeyIsConfigError(t *testing.T) {
	isolateEnv(t)
	t.Setenv(config.EnvAPIKey, "")

	_, err := execute(t, newTestRoot(NewExportCmd()), "export", "-o", t.TempDir())
	if err == nil {
		t.Fatal("expected a config error without an API key")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitConfig {
		t.Errorf("err = %v, want ExitError with code %d", err, exitConfig)
	}
}

func TestCheckCmd_ReportsExpiryNotToken(t *testing.T) {
	isolateEnv(t)
	iam := newIAMServer(t)
	t.Setenv(config.EnvIAMTokenURL, iam.URL)

	out, err := execute(t, newTestRoot(NewCheckCmd()), "check")
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "token expires:") {
		t.Errorf("output missing expiry line:\n%s", out)
	}
	if !strings.Contains(out, "tools:          28") {
		t.Errorf("output missing tool count:\n%s", out)
	}
	if strings.Contains(out, "secret-bearer-value") {
		t.Error("token value leaked into command output")
	}
}

func TestCheckCmd_RejectedCredential(t *testing.T) {
	isolateEnv(t)
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorCode": "BXNIM0415E"}`, http.StatusBadRequest)
	}))
	t.Cleanup(iam.Close)
	t.Setenv(config.EnvIAMTokenURL, iam.URL)

	_, err := execute(t, newTestRoot(NewCheckCmd()), "check")
	if err == nil {
		t.Fatal("expected failure for rejected credential")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitAuth {
		t.Errorf("err = %v, want ExitError with code %d", err, exitAuth)
	}
}

func TestToolsListCmd(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, newTestRoot(NewToolsCmd()), "tools", "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"IBM Cloud Toolkit - Available Tools",
		"Code Engine",
		"Cloud Databases",
		"list_database_instances",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("tools list output missing %q:\n%s", want, out)
		}
	}
}

func TestToolsCallCmd_EndToEnd(t *testing.T) {
	isolateEnv(t)
	iam := newIAMServer(t)
	t.Setenv(config.EnvIAMTokenURL, iam.URL)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"projects": [{"id": "p-1", "name": "edge", "region": "us-south"}]}`))
	}))
	t.Cleanup(api.Close)
	t.Setenv(config.EnvCodeEngineAPI, api.URL)

	out, err := execute(t, newTestRoot(NewToolsCmd()),
		"tools", "call", "list_code_engine_projects", "--no-history")
	if err != nil {
		t.Fatalf("call failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"count": 1`) || !strings.Contains(out, `"name": "edge"`) {
		t.Errorf("result output = %s", out)
	}
}

func TestToolsCallCmd_UnknownTool(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, newTestRoot(NewToolsCmd()),
		"tools", "call", "no_such_tool", "--no-history")
	if err == nil {
		t.Fatal("expected failure for unknown tool")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFailure {
		t.Errorf("err = %v, want ExitError with code %d", err, exitFailure)
	}
}

func TestToolsHistoryCmd(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := history.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	err = store.Append(t.Context(), history.Record{
		ID:         "req-1",
		Tool:       "search_logs",
		Module:     "Cloud Logs",
		Success:    false,
		ErrorKind:  "transient",
		DurationMS: 42,
		StartedAt:  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, newTestRoot(NewToolsCmd()),
		"tools", "history", "--store-path", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "search_logs") || !strings.Contains(out, "fail(transient)") {
		t.Errorf("history output = %s", out)
	}
}

func TestToolsHistoryCmd_Empty(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, newTestRoot(NewToolsCmd()),
		"tools", "history", "--store-path", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no recorded invocations") {
		t.Errorf("output = %s", out)
	}
}

func TestParseCallArgs(t *testing.T) {
	cmd := newToolsCallCmd()
	if err := cmd.Flags().Set("args-json", `{"limit": 5, "query": "old"}`); err != nil {
		t.Fatal(err)
	}
	for _, pair := range []string{"query=status:500", "active=true"} {
		if err := cmd.Flags().Set("arg", pair); err != nil {
			t.Fatal(err)
		}
	}

	args, err := parseCallArgs(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if args["limit"] != float64(5) {
		t.Errorf("limit = %v (%T), want 5", args["limit"], args["limit"])
	}
	if args["query"] != "status:500" {
		t.Errorf("query = %v, want --arg to win over --args-json", args["query"])
	}
	if args["active"] != true {
		t.Errorf("active = %v, want JSON-decoded true", args["active"])
	}
}

func TestParseCallArgs_RejectsBarePair(t *testing.T) {
	cmd := newToolsCallCmd()
	if err := cmd.Flags().Set("arg", "no-equals-sign"); err != nil {
		t.Fatal(err)
	}
	if _, err := parseCallArgs(cmd); err == nil {
		t.Fatal("expected error for a pair without key=value shape")
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{tool.Errorf(tool.KindConfig, "bad settings"), exitConfig},
		{tool.Errorf(tool.KindAuth, "rejected"), exitAuth},
		{tool.Errorf(tool.KindTransient, "flaky"), exitFailure},
		{errors.New("plain"), exitFailure},
	}
	for _, tt := range tests {
		if got := exitCodeFor(tt.err); got != tt.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
