package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `yaml:"kafka" envPrefix:"KAFKA_"`
	Booking  BookingConfig  `yaml:"booking" envPrefix:"BOOKING_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Seed     SeedConfig     `yaml:"seed" envPrefix:"SEED_"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver" env:"DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig with an empty Addr disables room locks and the listing cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	BookingEventsTopic string   `yaml:"booking_events_topic" env:"BOOKING_EVENTS_TOPIC"`
	NotificationsTopic string   `yaml:"notifications_topic" env:"NOTIFICATIONS_TOPIC"`
	GroupID            string   `yaml:"group_id" env:"GROUP_ID"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type BookingConfig struct {
	KeyBytes            int `yaml:"key_bytes" env:"KEY_BYTES"`
	RoomLockTTLSeconds  int `yaml:"room_lock_ttl_seconds" env:"ROOM_LOCK_TTL_SECONDS"`
	ListCacheTTLSeconds int `yaml:"list_cache_ttl_seconds" env:"LIST_CACHE_TTL_SECONDS"`
}

func (b BookingConfig) RoomLockTTL() time.Duration {
	return time.Duration(b.RoomLockTTLSeconds) * time.Second
}

func (b BookingConfig) ListCacheTTL() time.Duration {
	return time.Duration(b.ListCacheTTLSeconds) * time.Second
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type SeedConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

func defaults() Config {
	return Config{
		HTTP:    HTTPConfig{Address: ":8080"},
		Storage: StorageConfig{Driver: DriverPostgres, SQLitePath: "roombooking.db"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Kafka: KafkaConfig{
			BookingEventsTopic: "booking-events",
			NotificationsTopic: "booking-notifications",
			GroupID:            "roombooking-worker",
		},
		Booking: BookingConfig{
			KeyBytes:            24,
			RoomLockTTLSeconds:  10,
			ListCacheTTLSeconds: 30,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig reads the YAML file at path on top of defaults, then applies environment overrides.
// A missing file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Booking.KeyBytes != 0 && c.Booking.KeyBytes < 12 {
		return fmt.Errorf("booking.key_bytes must be at least 12, got %d", c.Booking.KeyBytes)
	}
	if c.Booking.RoomLockTTLSeconds < 0 || c.Booking.ListCacheTTLSeconds < 0 {
		return fmt.Errorf("booking ttl values must not be negative")
	}
	return nil
}

// PathFromArgs resolves the config file from --config, falling back to CONFIG_PATH.
func PathFromArgs(name string, args []string) (string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	path := fs.StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}
