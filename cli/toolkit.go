// Package cli implements the ibmcloudkit command surface: exporting the
// tool schemas, checking connectivity, invoking tools from the terminal,
// and serving the catalog over HTTP.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/watsonhub/ibmcloudkit/auth"
	"github.com/watsonhub/ibmcloudkit/config"
	"github.com/watsonhub/ibmcloudkit/ibmcloud"
	"github.com/watsonhub/ibmcloudkit/registry"
	"github.com/watsonhub/ibmcloudkit/services/codeengine"
	"github.com/watsonhub/ibmcloudkit/services/databases"
	"github.com/watsonhub/ibmcloudkit/services/logs"
	"github.com/watsonhub/ibmcloudkit/services/monitoring"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// loadSettings resolves toolkit configuration using the persistent
// --config flag.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	s, err := config.Load(path)
	if err != nil {
		return config.Settings{}, exitError(exitConfig, "%v", err)
	}
	return s, nil
}

// newCatalog registers the four service modules against the shared client.
// client may be nil for commands that never invoke a handler, such as
// export and tools list.
func newCatalog(client *ibmcloud.Client, s config.Settings) (*registry.Registry, error) {
	reg := registry.New()
	modules := []tool.Module{
		codeengine.Module(client, codeengine.Config{
			Region:  s.Region,
			BaseURL: s.CodeEngineAPI,
		}),
		logs.Module(client, logs.Config{
			Region:                s.Region,
			ResourceControllerURL: s.ResourceControllerAPI,
			InstanceURLTemplate:   s.LogsAPITemplate,
		}),
		monitoring.Module(client, monitoring.Config{
			Region:                s.Region,
			BaseURL:               s.MonitoringAPI,
			ResourceControllerURL: s.ResourceControllerAPI,
		}),
		databases.Module(client, databases.Config{
			Region:                s.Region,
			BaseURL:               s.DatabasesAPI,
			ResourceControllerURL: s.ResourceControllerAPI,
		}),
	}
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// toolkit is the wired invocation stack shared by the commands that make
// real service calls.
type toolkit struct {
	settings config.Settings
	manager  *auth.Manager
	client   *ibmcloud.Client
	registry *registry.Registry
}

// newToolkit builds the full stack: settings, token manager, service
// client, and catalog. onRefresh may be nil; serve mode uses it to feed
// token-exchange metrics.
func newToolkit(cmd *cobra.Command, onRefresh func(auth.RefreshObservation)) (*toolkit, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	manager := auth.NewManager(auth.ManagerConfig{
		Credential: s.Credential(),
		TokenURL:   s.IAMTokenURL,
		OnRefresh:  onRefresh,
	})
	client := ibmcloud.NewClient(ibmcloud.ClientConfig{Tokens: manager})
	reg, err := newCatalog(client, s)
	if err != nil {
		return nil, exitError(exitFailure, "%v", err)
	}
	return &toolkit{settings: s, manager: manager, client: client, registry: reg}, nil
}
