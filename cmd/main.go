package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/config"
	"github.com/ebogdum/fsbridge/internal/app"
	"github.com/ebogdum/fsbridge/server"
)

var rootCmd = &cobra.Command{
	Use:   "fsbridge",
	Short: "fsbridge - logging file system adapter",
	Long: `fsbridge exposes a local directory or an S3 bucket through one
hierarchical file system interface. Every operation is logged with the
invocation id of the request that caused it.`,
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the fsbridge server",
	Long:  "Start the fsbridge HTTP API and metrics endpoint with the configured backend",
	RunE:  runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the fsbridge configuration and display the loaded settings",
	RunE:  validateConfig,
}

var configFilePath string

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd, newFsCmd())

	// If no command specified, default to server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "server")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServer starts the fsbridge server
func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		// Syncing stderr fails on some platforms; nothing useful can be done about it
		_ = logger.Sync()
	}()

	logger.Info("Starting fsbridge server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("backend", cfg.Backend.BackendType()))

	a, err := app.New(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer closeCancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("Failed to close components", zap.Error(err))
		}
	}()

	authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys)
	authorizer := auth.NewUnixAuthorizer(a.Adapter.GetFileStatus)
	router := server.NewRouter(a.Adapter, authenticator, authorizer, &cfg.Server, a.Redaction, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		var err error
		if cfg.Server.CertFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case runErr = <-errCh:
		logger.Error("Server failed", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return runErr
}

// validateConfig validates the fsbridge configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "Backend: %s (%s)\n", cfg.Backend.BackendType(), cfg.Backend.URI)
	fmt.Fprintf(out, "Lenient Parent Creation: %t\n", cfg.Adapter.LenientParentCreation)
	fmt.Fprintf(out, "Remote Log Sink: %s\n", cfg.Logging.Remote.Type)
	if cfg.Backend.BackendType() == "s3" {
		fmt.Fprintf(out, "S3 Region: %s\n", cfg.Backend.S3.Region)
		fmt.Fprintf(out, "Attribute Store: %s\n", cfg.AttributeStore.Type)
		if cfg.AttributeStore.Type == "postgres" {
			fmt.Fprintf(out, "Attribute Store DSN: %s\n", maskDSN(cfg.AttributeStore.DSN))
		}
		if cfg.AttributeStore.Type == "raft" {
			raft := cfg.AttributeStore.Raft
			fmt.Fprintf(out, "Raft Node: %s (%s, %d peers)\n", raft.NodeID, raft.BindAddr, len(raft.Peers))
		}
		fmt.Fprintf(out, "Lock Manager: %s\n", cfg.DLM.Type)
	}

	return nil
}

// maskDSN masks sensitive parts of the database DSN for display
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-7:]
	}
	return "***"
}
