package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config/local.yaml"

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	Log      Log      `yaml:"log"`
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Store    Store    `yaml:"store"`
	MySQL    MySQL    `yaml:"mysql"`
	Postgres PG       `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Retry    Retry    `yaml:"retry"`
	Tracing  Tracing  `yaml:"tracing"`
	Catalog  []Seeded `yaml:"catalog"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":8080"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
}

type GRPC struct {
	Port string `yaml:"port" env:"GRPC_PORT" env-default:":50051"`
}

// Store selects the transactional store: memory, mysql or postgres.
type Store struct {
	Driver  string `yaml:"driver" env:"STORE_DRIVER" env-default:"memory"`
	Migrate bool   `yaml:"migrate" env:"STORE_MIGRATE" env-default:"true"`
}

type MySQL struct {
	DSN             string        `yaml:"dsn" env:"MYSQL_DSN" env-default:"root:root@tcp(localhost:3306)/shop?parseTime=true"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"50"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"5m"`
}

type PG struct {
	URL      string `yaml:"url" env:"DB_URL"`
	MaxConns int32  `yaml:"max_conns" env-default:"10"`
}

// Redis backs carts and idempotency keys. An empty address keeps carts in memory.
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	PoolSize int           `yaml:"pool_size" env-default:"100"`
	CartTTL  time.Duration `yaml:"cart_ttl" env:"CART_TTL" env-default:"168h"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	Delay       time.Duration `yaml:"delay" env:"RETRY_DELAY" env-default:"100ms"`
	Jitter      time.Duration `yaml:"jitter" env:"RETRY_JITTER" env-default:"0s"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Endpoint    string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	ServiceName string `yaml:"service_name" env-default:"order-fulfillment"`
}

// Seeded is a catalog entry inserted at startup.
type Seeded struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Price    string `yaml:"price"`
	Stock    int    `yaml:"stock"`
}

// Load reads the YAML file at path and applies environment overrides. A
// missing file falls back to environment variables and defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}
