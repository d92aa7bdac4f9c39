package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	AppEnv            string        `env:"APP_ENV" envDefault:"development"`
	APIAddr           string        `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN       string        `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	ProcessorURL      string        `env:"PROCESSOR_URL"`
	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"15s"`
	ProcessorTimeout  time.Duration `env:"PROCESSOR_TIMEOUT" envDefault:"10m"`
	CaptureMaxRetries int           `env:"CAPTURE_MAX_RETRIES" envDefault:"3"`
	MigrationsDir     string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	return c, nil
}

// Production reports whether we should log for machines rather than humans.
func (c Config) Production() bool { return c.AppEnv == "production" }
