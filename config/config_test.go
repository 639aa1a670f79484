package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/watsonhub/ibmcloudkit/tool"
)

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvRegion, "eu-de")

	dir := t.TempDir()
	chdir(t, dir)

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want test-key", s.APIKey)
	}
	if s.Region != "eu-de" {
		t.Errorf("Region = %q, want eu-de", s.Region)
	}
	if s.ResourceGroup != DefaultResourceGroup {
		t.Errorf("ResourceGroup = %q, want %q", s.ResourceGroup, DefaultResourceGroup)
	}
	if s.IAMTokenURL != DefaultIAMTokenURL {
		t.Errorf("IAMTokenURL = %q, want default", s.IAMTokenURL)
	}
}

func TestLoad_MissingAPIKeyIsConfigError(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	chdir(t, t.TempDir())

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when API key is unset")
	}
	if tool.KindOf(err) != tool.KindConfig {
		t.Errorf("KindOf = %q, want %q", tool.KindOf(err), tool.KindConfig)
	}
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	body := "api_key: file-key\nregion: au-syd\nresource_group: team-rg\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvRegion, "us-east")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file-key", s.APIKey)
	}
	if s.Region != "us-east" {
		t.Errorf("Region = %q, want env override us-east", s.Region)
	}
	if s.ResourceGroup != "team-rg" {
		t.Errorf("ResourceGroup = %q, want team-rg", s.ResourceGroup)
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if tool.KindOf(err) != tool.KindConfig {
		t.Fatalf("KindOf = %q, want %q", tool.KindOf(err), tool.KindConfig)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
