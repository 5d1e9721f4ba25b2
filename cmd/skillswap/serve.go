package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/preetsinghmakkar/SkillSwap/internal/app"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and signaling coordinator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- application.Run() }()
			log.Info().Str("port", cfg.Port).Str("database", cfg.DatabaseDriver).Msg("skillswap started")

			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					log.Error().Err(err).Msg("http server failed")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					application.Shutdown(shutdownCtx)
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := application.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info().Msg("skillswap stopped cleanly")
			return nil
		},
	}

	cmd.Flags().String("port", "8080", "HTTP listen port")
	cmd.Flags().String("jwt-secret", "", "HMAC secret used to verify access tokens")
	cmd.Flags().String("redis-addr", "", "redis address for notifications; empty logs them instead")
	cmd.Flags().Int("room-max-members", 2, "channels allowed per call room")
	bindFlags(v, cmd, map[string]string{
		"PORT":             "port",
		"JWT_SECRET":       "jwt-secret",
		"REDIS_ADDR":       "redis-addr",
		"ROOM_MAX_MEMBERS": "room-max-members",
	})
	return cmd
}
