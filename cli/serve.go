package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/watsonhub/ibmcloudkit/auth"
	"github.com/watsonhub/ibmcloudkit/history"
	kitotel "github.com/watsonhub/ibmcloudkit/otel"
	"github.com/watsonhub/ibmcloudkit/registry"
	"github.com/watsonhub/ibmcloudkit/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog over HTTP",
		Long: "Runs the HTTP dispatch surface: one POST route per tool matching the " +
			"exported OpenAPI paths, plus health, catalog, and invocation history " +
			"endpoints. Shuts down gracefully on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("store-path", "", "SQLite invocation history path (default: ~/.ibmcloudkit/history.db)")
	cmd.Flags().Bool("no-history", false, "Disable the invocation history store")
	cmd.Flags().String("otlp-endpoint", "", "OTLP collector host:port for trace export")
	cmd.Flags().Bool("otlp-insecure", false, "Use plain HTTP to the OTLP collector")
	cmd.Flags().String("keepalive", server.DefaultKeepaliveSchedule, "Cron schedule (UTC) for the token keepalive; empty disables it")
	cmd.Flags().Int64("max-body", 0, "Request body size limit in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	meter := otel.Meter("ibmcloudkit")
	refreshObs, err := kitotel.NewRefreshObserver(meter)
	if err != nil {
		return exitError(exitFailure, "creating refresh metrics: %v", err)
	}

	kit, err := newToolkit(cmd, func(obs auth.RefreshObservation) {
		refreshObs.ObserveRefresh(obs)
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	otlpInsecure, _ := cmd.Flags().GetBool("otlp-insecure")
	shutdownTracing, err := kitotel.SetupTracing(ctx, kitotel.TracingConfig{
		Endpoint: otlpEndpoint,
		Insecure: otlpInsecure,
	})
	if err != nil {
		return exitError(exitFailure, "setting up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	invokeObs, err := kitotel.NewInvokeObserver(meter)
	if err != nil {
		return exitError(exitFailure, "creating invocation metrics: %v", err)
	}
	observers := []registry.Observer{invokeObs}

	var store *history.SQLiteStore
	if disabled, _ := cmd.Flags().GetBool("no-history"); !disabled {
		store, err = openHistoryStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()
		observers = append(observers, history.NewRecorder(store, func(err error) {
			logger.Warn("recording invocation failed", "error", err)
		}))
	}

	disp := registry.NewDispatcher(registry.DispatcherConfig{
		Registry:  kit.registry,
		Observers: observers,
		Tracer:    otel.Tracer("ibmcloudkit"),
		Logger:    logger,
	})

	srvCfg := server.ServerConfig{
		Registry:   kit.registry,
		Dispatcher: disp,
		Logger:     logger,
	}
	if store != nil {
		srvCfg.History = store
	}
	if maxBody, _ := cmd.Flags().GetInt64("max-body"); maxBody > 0 {
		srvCfg.MaxBody = maxBody
	}

	if expr, _ := cmd.Flags().GetString("keepalive"); expr != "" {
		keepalive, err := server.NewKeepalive(expr, kit.manager, logger)
		if err != nil {
			return exitError(exitConfig, "%v", err)
		}
		go keepalive.Run(ctx)
	}

	addr, _ := cmd.Flags().GetString("addr")
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: server.NewServer(srvCfg).Handler(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("serving tool catalog", "addr", addr, "tools", kit.registry.Len())

	select {
	case err := <-errCh:
		return exitError(exitFailure, "server failed: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return exitError(exitFailure, "shutdown: %v", err)
	}
	logger.Info("server stopped")
	return nil
}
