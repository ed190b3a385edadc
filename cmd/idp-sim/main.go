// Package main runs the in-memory identity provider. It exists so the login
// gateway can be exercised end to end without a real platform backend: the
// seeded accounts cover plain basic auth, SMS and TOTP challenges, forced
// password resets and a missing phone number.
//
// All data is lost when the process stops.
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/idp"
	"github.com/tenantgate/login-flow/pkg/notification"
)

type ServerConfig struct {
	Host string `env:"IDP_HOST" env-default:"localhost"`
	Port string `env:"IDP_PORT" env-default:"4001"`
}

type TenantConfig struct {
	Name      string `env:"IDP_TENANT" env-default:"t100"`
	Domain    string `env:"IDP_TENANT_DOMAIN" env-default:"t100.example.com"`
	JWTSecret string `env:"IDP_JWT_SECRET" env-default:"idp-dev-secret-change-in-production"`
	LoginMode string `env:"IDP_LOGIN_MODE" env-default:"BASIC"`
}

type SMTPEnvConfig struct {
	Host     string `env:"SMTP_HOST" env-default:""`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	TLS      bool   `env:"SMTP_TLS" env-default:"false"`
	Username string `env:"SMTP_USERNAME" env-default:""`
	Password string `env:"SMTP_PASSWORD" env-default:""`
	From     string `env:"SMTP_FROM" env-default:"noreply@example.com"`
}

type Config struct {
	Server ServerConfig
	Tenant TenantConfig
	SMTP   SMTPEnvConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	config := Config{}
	cleanenv.ReadEnv(&config)

	store := idp.NewStore("cockpit", "devicemanagement", "administration")
	seedAccounts(store, config.Tenant.Name)

	// Reset mails go over SMTP when a host is configured, otherwise the
	// token is only logged.
	var notifier notification.Notifier
	if config.SMTP.Host != "" {
		mailer, err := notification.NewEmailNotifier(notification.SMTPConfig{
			Host:     config.SMTP.Host,
			Port:     config.SMTP.Port,
			TLS:      config.SMTP.TLS,
			Username: config.SMTP.Username,
			Password: config.SMTP.Password,
			From:     config.SMTP.From,
		})
		if err != nil {
			slog.Error("could not build mail client", "err", err)
			os.Exit(1)
		}
		notifier = mailer
	}

	server := idp.NewServer(idp.Config{
		TenantName:   config.Tenant.Name,
		TenantDomain: config.Tenant.Domain,
		JWTSecret:    config.Tenant.JWTSecret,
		LoginOptions: []identity.LoginMode{
			{Type: identity.LoginModeType(config.Tenant.LoginMode)},
		},
	}, store, notifier)

	addr := config.Server.Host + ":" + config.Server.Port
	slog.Info("identity provider listening", "addr", addr, "tenant", config.Tenant.Name)
	if err := http.ListenAndServe(addr, server.Routes()); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func seedAccounts(store *idp.Store, tenant string) {
	seeds := []idp.AccountParams{
		{Tenant: tenant, Username: "alice", Email: "alice@example.com", Password: "alice-pwd", Roles: []string{"ROLE_USER"}},
		{Tenant: tenant, Username: "bob", Email: "bob@example.com", Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS},
		{Tenant: tenant, Username: "carol", Email: "carol@example.com", Password: "carol-pwd", TFAMode: idp.TFATOTP},
		{Tenant: tenant, Username: "dave", Email: "dave@example.com", Password: "dave-pwd", TFAMode: idp.TFASMS},
		{Tenant: tenant, Username: "erin", Email: "erin@example.com", Password: "erin-pwd", ResetRequired: true},
	}
	for _, seed := range seeds {
		if _, err := store.CreateAccount(seed); err != nil {
			slog.Error("could not seed account", "user", seed.Username, "err", err)
			os.Exit(1)
		}
	}
	slog.Info("seeded demo accounts",
		"basic", "alice/alice-pwd",
		"sms", "bob/bob-pwd",
		"totp", "carol/carol-pwd",
		"no-phone-sms", "dave/dave-pwd",
		"reset-required", "erin/erin-pwd")
}
