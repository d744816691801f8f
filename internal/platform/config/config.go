package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Env      string
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ordering Ordering
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	AdminToken      string
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the Postgres connection pool. An empty URL selects
// the in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig configures the insurance lookup cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures the outbox relay. No brokers disables publishing.
type KafkaConfig struct {
	Brokers       []string
	TopicPrefix   string
	Partitions    int32
	Replication   int16
	RelayInterval time.Duration
	RelayBatch    int
}

// Ordering holds business settings for queue numbers and eligibility.
type Ordering struct {
	// TimeZone decides which calendar day an order's queue number belongs to.
	TimeZone string
	// TxTimeout bounds each order transaction.
	TxTimeout time.Duration
	// EligibilityPolicy is "existence" or "validity".
	EligibilityPolicy string
	// ExpiringSoonDays is the default window for the expiring-soon insurance list.
	ExpiringSoonDays int
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string
	Format string
}

// Location resolves the configured ordering time zone.
func (o Ordering) Location() (*time.Location, error) {
	return time.LoadLocation(o.TimeZone)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Load reads configuration from KIOSK_* environment variables and an optional
// config file (path in KIOSK_CONFIG). Nested keys use underscores, e.g.
// KIOSK_DATABASE_URL or KIOSK_ORDERING_TIMEZONE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Env: v.GetString("env"),
		Server: Server{
			Addr:            v.GetString("server.addr"),
			JWTSigningKey:   v.GetString("server.jwt_signing_key"),
			JWTIssuer:       v.GetString("server.jwt_issuer"),
			JWTAudience:     v.GetString("server.jwt_audience"),
			AdminToken:      v.GetString("server.admin_token"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
			CacheTTL:     v.GetDuration("redis.cache_ttl"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetString("kafka.brokers")),
			TopicPrefix:   v.GetString("kafka.topic_prefix"),
			Partitions:    v.GetInt32("kafka.partitions"),
			Replication:   int16(v.GetInt("kafka.replication")),
			RelayInterval: v.GetDuration("kafka.relay_interval"),
			RelayBatch:    v.GetInt("kafka.relay_batch"),
		},
		Ordering: Ordering{
			TimeZone:          v.GetString("ordering.timezone"),
			TxTimeout:         v.GetDuration("ordering.tx_timeout"),
			EligibilityPolicy: v.GetString("ordering.eligibility_policy"),
			ExpiringSoonDays:  v.GetInt("ordering.expiring_soon_days"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("server.jwt_issuer", "kiosk-auth")
	v.SetDefault("server.jwt_audience", "kiosk")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", time.Second)
	v.SetDefault("redis.write_timeout", time.Second)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)
	v.SetDefault("kafka.topic_prefix", "kiosk")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.relay_interval", time.Second)
	v.SetDefault("kafka.relay_batch", 100)
	v.SetDefault("ordering.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("ordering.tx_timeout", 5*time.Second)
	v.SetDefault("ordering.eligibility_policy", "existence")
	v.SetDefault("ordering.expiring_soon_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if _, err := c.Ordering.Location(); err != nil {
		return fmt.Errorf("ordering.timezone %q: %w", c.Ordering.TimeZone, err)
	}
	switch c.Ordering.EligibilityPolicy {
	case "existence", "validity":
	default:
		return fmt.Errorf("ordering.eligibility_policy must be \"existence\" or \"validity\", got %q", c.Ordering.EligibilityPolicy)
	}
	if c.Ordering.TxTimeout <= 0 {
		return fmt.Errorf("ordering.tx_timeout must be positive")
	}
	if c.Ordering.ExpiringSoonDays <= 0 {
		return fmt.Errorf("ordering.expiring_soon_days must be positive")
	}
	if !c.IsDev() && c.Server.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("server.jwt_signing_key must be set outside development")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
