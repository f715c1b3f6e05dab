package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	api "advisor-backend/cmd/api"
	chatdomain "advisor-backend/internal/chat/domain"
	conndomain "advisor-backend/internal/connection/domain"
	ingestdomain "advisor-backend/internal/ingest/domain"
	instructiondomain "advisor-backend/internal/instruction/domain"
	taskdomain "advisor-backend/internal/task/domain"
	"advisor-backend/pkg/config"
	"advisor-backend/pkg/database"
	"advisor-backend/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "advisor",
		Short:         "AI financial advisor backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd(), checkCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the instruction scheduler and the Gmail push listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler, cfg, log, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			handler.StartBackground(ctx)
			defer handler.Shutdown()

			if err := handler.Start(ctx, ":"+cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server stopped", zap.Error(err))
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one instruction pass and print its log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler, _, log, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			for _, line := range handler.Checker().RunPass(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

// bootstrap loads configuration, opens and migrates the database and wires
// every component.
func bootstrap(ctx context.Context) (*api.Handler, *config.Config, *zap.Logger, error) {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return nil, nil, nil, err
	}

	if err := migrate(db); err != nil {
		log.Error("failed to migrate database", zap.Error(err))
		return nil, nil, nil, err
	}

	handler, err := api.NewHandler(ctx, cfg, db, log)
	if err != nil {
		log.Error("failed to initialize handlers", zap.Error(err))
		return nil, nil, nil, err
	}
	return handler, cfg, log, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&conndomain.Credential{},
		&conndomain.FCMToken{},
		&ingestdomain.GmailThread{},
		&ingestdomain.HubSpotContact{},
		&ingestdomain.CalendarEvent{},
		&instructiondomain.Instruction{},
		&instructiondomain.Dispatch{},
		&taskdomain.Task{},
		&chatdomain.ChatHistory{},
	)
}
