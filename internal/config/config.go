// Package config содержит логику чтения конфигурации сервиса гросермарт.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса гросермарт.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	PushGatewayAddress    string `env:"PUSH_GATEWAY_ADDRESS"`
	PaymentGatewayAddress string `env:"PAYMENT_GATEWAY_ADDRESS"`
	PaymentSecret         string `env:"PAYMENT_SECRET"`
	AuthSecret            string `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PushGatewayAddress, "p", "", "push notification gateway address")
	flag.StringVar(&cfg.PaymentGatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&cfg.PaymentSecret, "k", "", "payment gateway signing secret")
	flag.StringVar(&cfg.AuthSecret, "s", "grocermart-secret", "auth cookie signing secret")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.PushGatewayAddress != "" {
		cfg.PushGatewayAddress = fromEnv.PushGatewayAddress
	}
	if fromEnv.PaymentGatewayAddress != "" {
		cfg.PaymentGatewayAddress = fromEnv.PaymentGatewayAddress
	}
	if fromEnv.PaymentSecret != "" {
		cfg.PaymentSecret = fromEnv.PaymentSecret
	}
	if fromEnv.AuthSecret != "" {
		cfg.AuthSecret = fromEnv.AuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
