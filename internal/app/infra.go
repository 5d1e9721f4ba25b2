package app

import (
	"context"
	"fmt"
	"time"

	"github.com/preetsinghmakkar/SkillSwap/internal/config"
	"github.com/preetsinghmakkar/SkillSwap/internal/database"
	"github.com/preetsinghmakkar/SkillSwap/internal/notifications"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Infra struct {
	DB       *database.DB
	Redis    *redis.Client
	Notifier notifications.Notifier
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database ready")

	infra := &Infra{DB: db}
	if cfg.RedisAddr == "" {
		infra.Notifier = notifications.NewLogNotifier()
		log.Info().Msg("REDIS_ADDR not set, notifications are logged only")
		return infra, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		db.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.RedisAddr).Msg("redis ready")

	infra.Redis = client
	infra.Notifier = notifications.NewRedisNotifier(client)
	return infra, nil
}

func (i *Infra) Close() error {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	return i.DB.Close()
}
