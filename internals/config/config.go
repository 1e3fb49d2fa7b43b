package config

import (
	"os"
	"strconv"
	"time"

	"github.com/loopline/realtime/internals/store"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
	Coordination CoordinationConfig `yaml:"coordination"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	MaxIDLength     int     `yaml:"max_id_length"`

	WSReadLimit    int64         `yaml:"ws_read_limit"`
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`
	WSPongTimeout  time.Duration `yaml:"ws_pong_timeout"`
	WSPingInterval time.Duration `yaml:"ws_ping_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CoordinationConfig carries the session lifetimes and timer delays. The
// advisory timers must fire before the store's own TTL so a terminal event
// is still published while the key exists.
type CoordinationConfig struct {
	CallTTL          time.Duration `yaml:"call_ttl"`
	CallTimeoutAfter time.Duration `yaml:"call_timeout_after"`
	GraceTTL         time.Duration `yaml:"grace_ttl"`
	PresenceTTL      time.Duration `yaml:"presence_ttl"`
	ReportWindow     time.Duration `yaml:"report_window"`
	ReportThreshold  int64         `yaml:"report_threshold"`
}

func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnv("COORD_HOST", "0.0.0.0"),
			Port:            getEnvInt("COORD_PORT", 8080),
			ReadTimeout:     time.Duration(getEnvInt("COORD_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("COORD_WRITE_TIMEOUT", 30)) * time.Second,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: time.Duration(getEnvInt("COORD_SHUTDOWN_TIMEOUT", 10)) * time.Second,
			RateLimitPerSec: float64(getEnvInt("COORD_RATE_LIMIT_PER_SEC", 20)),
			RateLimitBurst:  getEnvInt("COORD_RATE_LIMIT_BURST", 40),
			MaxIDLength:     getEnvInt("COORD_MAX_ID_LENGTH", 128),
			WSReadLimit:     int64(getEnvInt("COORD_WS_READ_LIMIT", 65536)),
			WSWriteTimeout:  time.Duration(getEnvInt("COORD_WS_WRITE_TIMEOUT", 10)) * time.Second,
			WSPongTimeout:   time.Duration(getEnvInt("COORD_WS_PONG_TIMEOUT", 60)) * time.Second,
			WSPingInterval:  time.Duration(getEnvInt("COORD_WS_PING_INTERVAL", 54)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			URL: getEnv("POSTGRES_URL", "postgres://localhost:5432/loopline?sslmode=disable"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Coordination: CoordinationConfig{
			CallTTL:          time.Duration(getEnvInt("COORD_CALL_TTL_SEC", store.CallTTL)) * time.Second,
			CallTimeoutAfter: time.Duration(getEnvInt("COORD_CALL_TIMEOUT_SEC", 50)) * time.Second,
			GraceTTL:         time.Duration(getEnvInt("COORD_GRACE_TTL_SEC", store.GraceTTL)) * time.Second,
			PresenceTTL:      time.Duration(getEnvInt("COORD_PRESENCE_TTL_SEC", store.PresenceTTL)) * time.Second,
			ReportWindow:     time.Duration(getEnvInt("COORD_REPORT_WINDOW_SEC", store.ReportTTL)) * time.Second,
			ReportThreshold:  int64(getEnvInt("COORD_REPORT_THRESHOLD", 3)),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
