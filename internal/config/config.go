// Package config provides Viper-based configuration loading for the battleship game server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the gRPC listener settings.
type ServerConfig struct {
	// GRPCHost is the bind address for the Battleships gRPC service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the Battleships gRPC service.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.GRPCHost, s.GRPCPort)
}

// RedisConfig holds the broker connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// PingMaxElapsed bounds the total time spent retrying the startup PING.
	PingMaxElapsed time.Duration `mapstructure:"ping_max_elapsed"`
	// PingMaxInterval caps the delay between two PING attempts.
	PingMaxInterval time.Duration `mapstructure:"ping_max_interval"`
}

// Addr returns the "host:port" broker address.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MatchmakingConfig holds open-game queue and rendezvous settings.
type MatchmakingConfig struct {
	// QueueKey is the Redis list holding advertised game IDs.
	QueueKey string `mapstructure:"queue_key"`
	// RendezvousAttempts is the number of subscriber count polls before giving up.
	RendezvousAttempts int `mapstructure:"rendezvous_attempts"`
	// RendezvousDelay is the fixed pause between two subscriber count polls.
	RendezvousDelay time.Duration `mapstructure:"rendezvous_delay"`
}

// SessionConfig holds per-connection settings.
type SessionConfig struct {
	// OutboxSize is the capacity of the outbound event queue of one session.
	OutboxSize int `mapstructure:"outbox_size"`
	// PollInterval bounds how long the drain loop waits before rechecking the stop signal.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// IdleTimeout ends a started game when the opponent stays silent this long. Zero disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings for the results store.
type DatabaseConfig struct {
	// Enabled turns on recording of finished games.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Session     SessionConfig     `mapstructure:"session"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		func() error { return validateServer(c.Server) },
		func() error { return validateRedis(c.Redis) },
		func() error { return validateMatchmaking(c.Matchmaking) },
		func() error { return validateSession(c.Session) },
		func() error { return validateDatabase(c.Database) },
		func() error { return validateLogging(c.Logging) },
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.GRPCHost == "" {
		errs = append(errs, "server.grpc_host must not be empty")
	}
	if !validPort(s.GRPCPort) {
		errs = append(errs, fmt.Sprintf("server.grpc_port must be 1-65535, got %d", s.GRPCPort))
	}
	return joinErrs(errs)
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Host == "" {
		errs = append(errs, "redis.host must not be empty")
	}
	if !validPort(r.Port) {
		errs = append(errs, fmt.Sprintf("redis.port must be 1-65535, got %d", r.Port))
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.PingMaxElapsed <= 0 {
		errs = append(errs, "redis.ping_max_elapsed must be positive")
	}
	if r.PingMaxInterval <= 0 {
		errs = append(errs, "redis.ping_max_interval must be positive")
	}
	return joinErrs(errs)
}

func validateMatchmaking(m MatchmakingConfig) error {
	var errs []string
	if m.QueueKey == "" {
		errs = append(errs, "matchmaking.queue_key must not be empty")
	}
	if m.RendezvousAttempts < 1 {
		errs = append(errs, fmt.Sprintf("matchmaking.rendezvous_attempts must be >= 1, got %d", m.RendezvousAttempts))
	}
	if m.RendezvousDelay < 0 {
		errs = append(errs, "matchmaking.rendezvous_delay must not be negative")
	}
	return joinErrs(errs)
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("session.outbox_size must be >= 1, got %d", s.OutboxSize))
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "session.poll_interval must be positive")
	}
	if s.IdleTimeout < 0 {
		errs = append(errs, "session.idle_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joinErrs(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromEnv builds a Config from defaults and environment variables only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromEnv() (Config, error) {
	return LoadFromViper(newViper())
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with BATTLESHIP_ prefix
	v.SetEnvPrefix("BATTLESHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names understood by existing deployments.
	_ = v.BindEnv("server.grpc_port", "BATTLESHIP_SERVER_GRPC_PORT", "PORT")
	_ = v.BindEnv("redis.host", "BATTLESHIP_REDIS_HOST", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "BATTLESHIP_REDIS_PORT", "REDIS_PORT")

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_host", "0.0.0.0")
	v.SetDefault("server.grpc_port", 50051)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ping_max_elapsed", "60s")
	v.SetDefault("redis.ping_max_interval", "5s")

	v.SetDefault("matchmaking.queue_key", "openGames")
	v.SetDefault("matchmaking.rendezvous_attempts", 5)
	v.SetDefault("matchmaking.rendezvous_delay", "100ms")

	v.SetDefault("session.outbox_size", 64)
	v.SetDefault("session.poll_interval", "1s")
	v.SetDefault("session.idle_timeout", "0s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "battleship")
	v.SetDefault("database.password", "battleship")
	v.SetDefault("database.name", "battleship")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
