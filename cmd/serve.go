package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatrelay/chatrelay/db"
	"github.com/chatrelay/chatrelay/internal/api"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/database"
	"github.com/chatrelay/chatrelay/internal/llm"
	"github.com/chatrelay/chatrelay/internal/log"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides CHATRELAY_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the full service and blocks until SIGINT/SIGTERM.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting chatrelay", "version", AppVersion, "model", cfg.Model)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := transcript.NewStore(pool, logger.With("component", "transcript"))
	provider := llm.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)

	manager, err := conversation.NewManager(conversation.Config{
		Store:         store,
		Provider:      provider,
		Logger:        logger.With("component", "conversation"),
		SystemPrompt:  cfg.SystemPrompt,
		FallbackReply: cfg.FallbackReply,
		MaxHistory:    cfg.MaxHistory,
	})
	if err != nil {
		return fmt.Errorf("creating conversation manager: %w", err)
	}

	server := api.NewServer(api.ServerConfig{
		Logger:     logger.With("component", "api"),
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
	}, manager, store, pool)

	return server.Run(ctx, addr)
}
