// Package config loads service settings from the environment, an optional
// .env file and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret string

	RedisAddr     string
	RedisPassword string

	CORSAllowedOrigins []string

	LogLevel  string
	LogPretty bool

	RoomMaxMembers int

	SignalingURL         string
	NegotiationTimeout   time.Duration
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	STUNURLs             []string
}

// New returns a viper instance with defaults set and the environment bound.
// A .env file in the working directory is loaded first when present.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("ROOM_MAX_MEMBERS", 2)
	v.SetDefault("SIGNALING_URL", "ws://localhost:8080/api/ws/signaling")
	v.SetDefault("NEGOTIATION_TIMEOUT", "30s")
	v.SetDefault("RECONNECT_MAX_ATTEMPTS", 5)
	v.SetDefault("RECONNECT_BASE_DELAY", "500ms")
	v.SetDefault("STUN_URLS", "stun:stun.l.google.com:19302")
	v.AutomaticEnv()
	return v
}

// Load reads v into a Config and checks the values every command needs.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:                 v.GetString("PORT"),
		DatabaseDriver:       strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:          v.GetString("DATABASE_DSN"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		CORSAllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogPretty:            v.GetBool("LOG_PRETTY"),
		RoomMaxMembers:       v.GetInt("ROOM_MAX_MEMBERS"),
		SignalingURL:         v.GetString("SIGNALING_URL"),
		NegotiationTimeout:   v.GetDuration("NEGOTIATION_TIMEOUT"),
		ReconnectMaxAttempts: v.GetInt("RECONNECT_MAX_ATTEMPTS"),
		ReconnectBaseDelay:   v.GetDuration("RECONNECT_BASE_DELAY"),
		STUNURLs:             splitList(v.GetString("STUN_URLS")),
	}

	var errs []error
	switch cfg.DatabaseDriver {
	case "postgres":
		if cfg.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for postgres"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", cfg.DatabaseDriver))
	}
	if cfg.RoomMaxMembers < 2 {
		errs = append(errs, fmt.Errorf("ROOM_MAX_MEMBERS must be at least 2, got %d", cfg.RoomMaxMembers))
	}
	if cfg.NegotiationTimeout <= 0 {
		errs = append(errs, errors.New("NEGOTIATION_TIMEOUT must be positive"))
	}
	if cfg.ReconnectMaxAttempts < 0 {
		errs = append(errs, errors.New("RECONNECT_MAX_ATTEMPTS must not be negative"))
	}
	if cfg.ReconnectBaseDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_BASE_DELAY must be positive"))
	}
	return cfg, errors.Join(errs...)
}

// ValidateServer checks the settings only the HTTP server needs.
func (c Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
