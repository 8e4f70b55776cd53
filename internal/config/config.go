package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	HTTPPort     int    `mapstructure:"http_port"`
	GRPCPort     int    `mapstructure:"grpc_port"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

type PostgresConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	AutoSchema bool   `mapstructure:"auto_schema"`
}

// DSN returns the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type JWTConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type AuthConfig struct {
	CodeTTL     time.Duration `mapstructure:"code_ttl"`
	AdminPhones []string      `mapstructure:"admin_phones"`
	LoginLimit  int           `mapstructure:"login_limit"`
	VerifyLimit int           `mapstructure:"verify_limit"`
	LimitWindow time.Duration `mapstructure:"limit_window"`
}

type SchedulerConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8000)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.allow_origins", "*")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "referrals")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.auto_schema", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.signing_key", "")
	v.SetDefault("jwt.token_ttl", "24h")

	v.SetDefault("auth.code_ttl", "5m")
	v.SetDefault("auth.admin_phones", []string{})
	v.SetDefault("auth.login_limit", 5)
	v.SetDefault("auth.verify_limit", 5)
	v.SetDefault("auth.limit_window", "10m")

	v.SetDefault("scheduler.cleanup_interval", "1m")
	v.SetDefault("scheduler.health_interval", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadConfig reads config.yaml from path (if present) and environment variables into Config.
// Environment keys use underscores for nesting, e.g. POSTGRES_HOST overrides postgres.host.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.JWT.SigningKey == "" {
		return errors.New("jwt.signing_key must be set")
	}
	if c.JWT.TokenTTL <= 0 {
		return errors.New("jwt.token_ttl must be positive")
	}
	if c.Auth.CodeTTL < 0 {
		return errors.New("auth.code_ttl must not be negative")
	}
	return nil
}
