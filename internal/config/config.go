package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort            string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL"`
	DBMaxConns          int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	JWTSecret           string `env:"JWT_SECRET" envDefault:"turbotalk-dev-secret"`
	JWTTTLMinutes       int    `env:"JWT_TTL_MINUTES" envDefault:"1440"`
	ResponseDelayMs     int    `env:"RESPONSE_DELAY_MS" envDefault:"1500"`
	IntentRulesFile     string `env:"INTENT_RULES_FILE"`
	SeedDemoAccounts    bool   `env:"SEED_DEMO_ACCOUNTS" envDefault:"true"`
	SignInMaxAttempts   int    `env:"SIGNIN_MAX_ATTEMPTS" envDefault:"5"`
	SignInWindowMinutes int    `env:"SIGNIN_WINDOW_MINUTES" envDefault:"10"`
	ClientCookieName    string `env:"CLIENT_COOKIE_NAME" envDefault:"tt_client"`
	IdleTimeoutMinutes  int    `env:"IDLE_TIMEOUT_MINUTES" envDefault:"30"`
	SweepIntervalSecs   int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResponseDelay devuelve la latencia simulada del asistente.
func (c *Config) ResponseDelay() time.Duration {
	if c.ResponseDelayMs < 0 {
		return 0
	}
	return time.Duration(c.ResponseDelayMs) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func (c *Config) SignInWindow() time.Duration {
	return time.Duration(c.SignInWindowMinutes) * time.Minute
}

// IdleTimeout es el tiempo sin accesos tras el cual se descartan conversaciones y sesiones.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}
