// Package config loads application configuration from the process
// environment into tagged structs.
//
// It combines github.com/joho/godotenv (optional .env files, never overriding
// variables already set) with github.com/caarlos0/env/v11 (struct tag
// parsing).
//
//	type AppConfig struct {
//		Env      string        `env:"APP_ENV" envDefault:"development"`
//		Timeout  time.Duration `env:"STRIPE_TIMEOUT" envDefault:"30s"`
//		Secret   string        `env:"STRIPE_SECRET_KEY,required"`
//	}
//
//	var cfg AppConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Tests can bypass the process environment entirely:
//
//	err := config.Load(&cfg, config.WithEnvironment(map[string]string{
//		"STRIPE_SECRET_KEY": "sk_test_123",
//	}))
package config
