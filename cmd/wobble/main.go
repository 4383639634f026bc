// Package main is the CLI entry point for the wobble agent backend.
//
// wobble connects messaging channels (Telegram, WhatsApp, Instagram, Email,
// YouTube) and a web chat frontend to LLM providers, with a tool-running
// orchestration loop per turn.
//
// Start the server:
//
//	wobble serve --config wobble.yaml
//
// Secrets can be provided via environment variables expanded inside the
// config file, or with no config file at all:
//
//   - WOBBLE_GATEWAY_API_KEY: hosted model gateway key
//   - WOBBLE_EMBEDDING_API_KEY: embeddings key for long-term memory
//   - WOBBLE_META_VERIFY_TOKEN / WOBBLE_META_APP_SECRET: Meta webhooks
//   - WOBBLE_TELEGRAM_SECRET_TOKEN: Telegram webhook secret
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhinav155942/wobble/internal/agent"
	"github.com/abhinav155942/wobble/internal/agent/providers"
	"github.com/abhinav155942/wobble/internal/channels"
	"github.com/abhinav155942/wobble/internal/config"
	"github.com/abhinav155942/wobble/internal/gateway"
	"github.com/abhinav155942/wobble/internal/memory"
	"github.com/abhinav155942/wobble/internal/observability"
	"github.com/abhinav155942/wobble/internal/storage"
	"github.com/abhinav155942/wobble/internal/tools"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wobble",
		Short:        "wobble - AI support agents across messaging channels",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wobble %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: environment only)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("WOBBLE_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()

	stores, err := storage.NewSQLiteStoreSet(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer stores.Close()

	hosted := providers.NewGateway(providers.GatewayConfig{
		BaseURL:      cfg.Gateway.BaseURL,
		APIKey:       cfg.Gateway.APIKey,
		DefaultModel: cfg.Gateway.Model,
	}, logger)
	selector := providers.NewSelector(hosted)

	var mem agent.Memory
	embeddingKey := cfg.Memory.EmbeddingAPIKey
	if embeddingKey == "" {
		embeddingKey = cfg.Gateway.APIKey
	}
	if cfg.Memory.Enabled && embeddingKey != "" {
		embedder, err := providers.NewOpenAI(embeddingKey)
		if err != nil {
			return fmt.Errorf("embedding client: %w", err)
		}
		mem = memory.NewManager(stores.Memories, embedder, hosted, cfg.Memory.EmbeddingModel, logger)
	} else {
		logger.Warn(ctx, "long-term memory disabled", "enabled", cfg.Memory.Enabled)
	}

	toolDeps := tools.Deps{Logger: logger}
	orch := agent.NewOrchestrator(stores, selector, mem, toolDeps, logger, metrics)

	hub := channels.NewHub(stores, orch, channels.Deps{
		Logger: logger,
		Secrets: channels.Secrets{
			TelegramSecretToken: cfg.Webhooks.TelegramSecretToken,
			MetaAppSecret:       cfg.Webhooks.MetaAppSecret,
			MetaVerifyToken:     cfg.Webhooks.MetaVerifyToken,
		},
	}, logger, metrics)

	enhancer := gateway.NewPromptEnhancer(hosted, logger)
	srv := gateway.NewServer(gateway.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, orch, enhancer, hub, stores, logger, metrics)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info(ctx, "shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
