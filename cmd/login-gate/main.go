// Package main runs the login gateway: a JSON front for the login flow that
// keeps one view state machine per browser session.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/gateway"
)

type ServerConfig struct {
	Host string `env:"GATE_HOST" env-default:"localhost"`
	Port string `env:"GATE_PORT" env-default:"4000"`
}

type FlowConfig struct {
	IDPBaseURL       string `env:"IDP_BASE_URL" env-default:"http://localhost:4001"`
	PublicURL        string `env:"PUBLIC_URL" env-default:"http://localhost:4000/apps/devicemanagement/"`
	SkipSSORedirect  bool   `env:"SKIP_SSO_REDIRECT" env-default:"false"`
	HideBrandLogo    bool   `env:"HIDE_BRAND_LOGO" env-default:"false"`
	DisableAnimation bool   `env:"DISABLE_ANIMATION" env-default:"false"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" env-default:""`
	Password string        `env:"REDIS_PASSWORD" env-default:""`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	TokenTTL time.Duration `env:"REDIS_TOKEN_TTL" env-default:"720h"`
}

type Config struct {
	Server ServerConfig
	Flow   FlowConfig
	Redis  RedisConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	config := Config{}
	cleanenv.ReadEnv(&config)

	// Remember-me tokens go to Redis when configured; a process-local map
	// otherwise.
	var durable credstore.Storage = credstore.NewMemoryStorage()
	if config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		durable = credstore.NewRedisStorage(client, "logingate", config.Redis.TokenTTL)
		slog.Info("using redis for durable token storage", "addr", config.Redis.Addr)
	}

	handler := gateway.NewHandler(gateway.Config{
		IDPBaseURL:         config.Flow.IDPBaseURL,
		PublicURL:          config.Flow.PublicURL,
		SkipSSORedirect:    config.Flow.SkipSSORedirect,
		HideBrandLogo:      config.Flow.HideBrandLogo,
		DisableAnimation:   config.Flow.DisableAnimation,
		SessionIdleTimeout: config.Flow.SessionIdleTimeout,
	}, durable)

	addr := config.Server.Host + ":" + config.Server.Port
	slog.Info("login gateway listening", "addr", addr, "idp", config.Flow.IDPBaseURL)
	if err := http.ListenAndServe(addr, handler.Routes()); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
