package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name            string        `yaml:"name" envconfig:"APP_NAME"`
	Port            string        `yaml:"port" envconfig:"APP_PORT"`
	Env             string        `yaml:"env" envconfig:"APP_ENV"`
	LogLevel        string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"APP_SHUTDOWN_TIMEOUT"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host" envconfig:"DB_HOST"`
	Port            string        `yaml:"port" envconfig:"DB_PORT"`
	User            string        `yaml:"user" envconfig:"DB_USER"`
	Password        string        `yaml:"password" envconfig:"DB_PASSWORD"`
	DBName          string        `yaml:"dbname" envconfig:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Schema          string        `yaml:"schema" envconfig:"DB_SCHEMA"`
	MaxConns        int32         `yaml:"max_conns" envconfig:"DB_MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" envconfig:"DB_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" envconfig:"DB_MAX_CONN_LIFETIME"`
	MigrationsPath  string        `yaml:"migrations_path" envconfig:"DB_MIGRATIONS_PATH"`
}

// ConnString returns a keyword/value DSN understood by pgx.
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.Schema)
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password    string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" envconfig:"REDIS_DB"`
	LocationTTL time.Duration `yaml:"location_ttl" envconfig:"REDIS_LOCATION_TTL"`
}

// RabbitMQConfig is optional: an empty URL disables the AMQP relay.
type RabbitMQConfig struct {
	URL        string `yaml:"url" envconfig:"RABBITMQ_URL"`
	Exchange   string `yaml:"exchange" envconfig:"RABBITMQ_EXCHANGE"`
	MaxRetries uint64 `yaml:"max_retries" envconfig:"RABBITMQ_MAX_RETRIES"`
}

// KafkaConfig is optional: no brokers disables the event log.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"KAFKA_TOPIC"`
}

type JWTConfig struct {
	Secret   string        `yaml:"secret" envconfig:"JWT_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" envconfig:"JWT_TOKEN_TTL"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	JWT      JWTConfig      `yaml:"jwt"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "fuel-service"
	cfg.App.Port = "8080"
	cfg.App.Env = "development"
	cfg.App.LogLevel = "debug"
	cfg.App.ShutdownTimeout = 5 * time.Second

	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.Schema = "fuel_service"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.MigrationsPath = "migrations"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LocationTTL = 10 * time.Minute

	cfg.RabbitMQ.Exchange = "notifications_fanout"
	cfg.RabbitMQ.MaxRetries = 5

	cfg.Kafka.Topic = "order_events"

	cfg.JWT.TokenTTL = 24 * time.Hour
	return cfg
}

// NewConfig loads configuration from .env, CONFIG_PATH and the environment.
func NewConfig() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

// Load layers defaults, the optional YAML file at path, a .env file and the
// process environment, in that order.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Postgres.Host == "":
		return errors.New("config: DB_HOST is required")
	case c.Postgres.User == "":
		return errors.New("config: DB_USER is required")
	case c.Postgres.DBName == "":
		return errors.New("config: DB_NAME is required")
	case c.JWT.Secret == "":
		return errors.New("config: JWT_SECRET is required")
	case c.Postgres.MinConns > c.Postgres.MaxConns:
		return fmt.Errorf("config: DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	return nil
}
