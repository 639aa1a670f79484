// Package config is the configuration collaborator for the toolkit. It
// resolves the IBM Cloud credential and endpoint settings from an optional
// YAML settings file overlaid by environment variables, and hands the core
// exactly what it asks for: a credential and a region.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/watsonhub/ibmcloudkit/tool"
)

const (
	projectConfigName = "ibmcloudkit.yaml"
	homeConfigDir     = ".ibmcloudkit"
	homeConfigName    = "config.yaml"

	// DefaultRegion matches the toolkit's historical default.
	DefaultRegion = "us-south"
	// DefaultResourceGroup is IBM Cloud's default resource group name.
	DefaultResourceGroup = "Default"
	// DefaultIAMTokenURL is the IBM Cloud IAM token exchange endpoint.
	DefaultIAMTokenURL = "https://iam.cloud.ibm.com/identity/token"
)

// Environment variable names recognized by Load. Environment always wins
// over the settings file.
const (
	EnvAPIKey           = "IBM_CLOUD_API_KEY"
	EnvRegion           = "IBM_CLOUD_REGION"
	EnvResourceGroup    = "IBM_CLOUD_RESOURCE_GROUP"
	EnvIAMTokenURL      = "IBM_IAM_TOKEN_URL"
	EnvOrchestrateURL   = "WATSONX_ORCHESTRATE_INSTANCE_URL"
	EnvCodeEngineAPI    = "IBM_CODE_ENGINE_API"
	EnvDatabasesAPI     = "IBM_DATABASES_API"
	EnvResourceCtrlAPI  = "IBM_RESOURCE_CONTROLLER_API"
	EnvLogsAPITemplate  = "IBM_CLOUD_LOGS_API"
	EnvMonitoringAPIURL = "IBM_CLOUD_MONITORING_API"
)

// Credential is the long-lived input exchanged for short-lived bearer
// tokens. The API key is a secret and must never appear in logs, results,
// or exported artifacts.
type Credential struct {
	APIKey string
	Region string
}

// Settings is the full resolved toolkit configuration.
type Settings struct {
	APIKey         string `yaml:"api_key"`
	Region         string `yaml:"region"`
	ResourceGroup  string `yaml:"resource_group"`
	IAMTokenURL    string `yaml:"iam_token_url"`
	OrchestrateURL string `yaml:"orchestrate_instance_url"`

	// Optional per-service endpoint overrides. When empty, services derive
	// their regional endpoint from Region.
	CodeEngineAPI         string `yaml:"code_engine_api"`
	DatabasesAPI          string `yaml:"databases_api"`
	ResourceControllerAPI string `yaml:"resource_controller_api"`
	LogsAPITemplate       string `yaml:"logs_api"`
	MonitoringAPI         string `yaml:"monitoring_api"`
}

// Credential returns the immutable credential pair the token manager needs.
func (s Settings) Credential() Credential {
	return Credential{APIKey: s.APIKey, Region: s.Region}
}

// GetRegion returns the configured region.
func (s Settings) GetRegion() string {
	return s.Region
}

// Load resolves settings from the given file path (optional; discovered when
// empty) overlaid by environment variables, then validates them. A missing
// API key is a config error: the toolkit cannot authenticate without it.
func Load(explicitPath string) (Settings, error) {
	var s Settings

	path, found, err := discoverPath(explicitPath)
	if err != nil {
		return Settings{}, tool.WrapErr(tool.KindConfig, err, "resolve settings file")
	}
	if found {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, tool.WrapErr(tool.KindConfig, err, "read settings file %q", path)
		}
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return Settings{}, tool.WrapErr(tool.KindConfig, err, "parse settings file %q", path)
		}
	}

	applyEnv(&s)
	applyDefaults(&s)

	if strings.TrimSpace(s.APIKey) == "" {
		return Settings{}, tool.Errorf(tool.KindConfig,
			"%s is not set; export it or add api_key to %s", EnvAPIKey, projectConfigName)
	}

	return s, nil
}

func applyEnv(s *Settings) {
	overlay := func(dst *string, env string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	overlay(&s.APIKey, EnvAPIKey)
	overlay(&s.Region, EnvRegion)
	overlay(&s.ResourceGroup, EnvResourceGroup)
	overlay(&s.IAMTokenURL, EnvIAMTokenURL)
	overlay(&s.OrchestrateURL, EnvOrchestrateURL)
	overlay(&s.CodeEngineAPI, EnvCodeEngineAPI)
	overlay(&s.DatabasesAPI, EnvDatabasesAPI)
	overlay(&s.ResourceControllerAPI, EnvResourceCtrlAPI)
	overlay(&s.LogsAPITemplate, EnvLogsAPITemplate)
	overlay(&s.MonitoringAPI, EnvMonitoringAPIURL)
}

func applyDefaults(s *Settings) {
	if s.Region == "" {
		s.Region = DefaultRegion
	}
	if s.ResourceGroup == "" {
		s.ResourceGroup = DefaultResourceGroup
	}
	if s.IAMTokenURL == "" {
		s.IAMTokenURL = DefaultIAMTokenURL
	}
}

// discoverPath resolves the settings file location with first-match
// semantics: explicit path, ./ibmcloudkit.yaml, ~/.ibmcloudkit/config.yaml.
// An explicit path that does not exist is an error; fallback candidates that
// do not exist are skipped silently.
func discoverPath(explicitPath string) (string, bool, error) {
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidate := filepath.Clean(clean)
		info, err := os.Stat(candidate)
		if err != nil {
			return "", false, fmt.Errorf("settings file %q: %w", candidate, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("settings file %q is a directory", candidate)
		}
		return candidate, true, nil
	}

	candidates := []string{projectConfigName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, homeConfigDir, homeConfigName))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("checking settings path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}
