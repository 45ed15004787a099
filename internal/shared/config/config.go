package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config — полная конфигурация сервиса
type Config struct {
	Database  DBConfig
	RabbitMQ  MQConfig
	WebSocket WSConfig
	Services  ServicesConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

type MQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Enabled  bool   `yaml:"enabled"`
}

type WSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ServicesConfig struct {
	DispatchServicePort int `yaml:"dispatch_service"`
}

type JWTConfig struct {
	Secret        string `yaml:"secret"`
	ExpiryMinutes int    `yaml:"expiry_minutes"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// DispatchConfig — настройки store и фоновых триггеров обновления
type DispatchConfig struct {
	StoreDriver  string        `yaml:"store_driver"` // postgres | sqlite | memory
	SQLitePath   string        `yaml:"sqlite_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ListLimit    int           `yaml:"list_limit"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// Load reads CONFIG_DIR (default ./config) and lets environment variables
// override every file value. A .env file in the working directory is loaded first.
func Load() Config {
	_ = godotenv.Load()

	configDir := getEnv("CONFIG_DIR", "./config")
	cfg := defaults()

	files := []struct {
		name string
		dst  any
	}{
		{"db.yaml", &cfg.Database},
		{"mq.yaml", &cfg.RabbitMQ},
		{"ws.yaml", &cfg.WebSocket},
		{"service.yaml", &cfg.Services},
		{"jwt.yaml", &cfg.JWT},
		{"redis.yaml", &cfg.Redis},
		{"dispatch.yaml", &cfg.Dispatch},
	}
	for _, f := range files {
		// отсутствующий файл не ошибка: остаются defaults + env
		_ = decodeFile(filepath.Join(configDir, f.name), f.dst)
	}

	applyEnv(&cfg)
	return cfg
}

func defaults() Config {
	return Config{
		Database: DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "roadside_user",
			Password: "roadside_pass",
			Database: "roadside_db",
			SSLMode:  "disable",
		},
		RabbitMQ: MQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			VHost:    "/",
			Enabled:  true,
		},
		Services: ServicesConfig{DispatchServicePort: 3000},
		JWT:      JWTConfig{Secret: "dev_secret", ExpiryMinutes: 60},
		Redis:    RedisConfig{Address: "localhost:6379", Enabled: true},
		Dispatch: DispatchConfig{
			StoreDriver:  "postgres",
			SQLitePath:   "./roadside.db",
			PollInterval: 10 * time.Second,
			ListLimit:    100,
		},
	}
}

// decodeFile parses one YAML file into dst. Files may either be flat or nest
// their keys under a single top-level section (e.g. "jwt:").
func decodeFile(path string, dst any) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]

	// секция вида "jwt:\n  secret: ..." — спускаемся на уровень ниже
	if doc.Kind == yaml.MappingNode && len(doc.Content) == 2 && doc.Content[1].Kind == yaml.MappingNode {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if doc.Content[0].Value == name {
			doc = doc.Content[1]
		}
	}

	if err := doc.Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", cfg.RabbitMQ.Host)
	cfg.RabbitMQ.Port = getEnvInt("RABBITMQ_PORT", cfg.RabbitMQ.Port)
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", cfg.RabbitMQ.User)
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", cfg.RabbitMQ.Password)
	cfg.RabbitMQ.VHost = getEnv("RABBITMQ_VHOST", cfg.RabbitMQ.VHost)
	cfg.RabbitMQ.Enabled = getEnvBool("RABBITMQ_ENABLED", cfg.RabbitMQ.Enabled)

	cfg.WebSocket.AllowedOrigins = getEnvList("WS_ALLOWED_ORIGINS", cfg.WebSocket.AllowedOrigins)

	cfg.Services.DispatchServicePort = getEnvInt("DISPATCH_SERVICE_PORT", cfg.Services.DispatchServicePort)

	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.ExpiryMinutes = getEnvInt("JWT_EXPIRY_MINUTES", cfg.JWT.ExpiryMinutes)

	cfg.Redis.Address = getEnv("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.Redis.Enabled)

	cfg.Dispatch.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", cfg.Dispatch.StoreDriver))
	cfg.Dispatch.SQLitePath = getEnv("SQLITE_PATH", cfg.Dispatch.SQLitePath)
	cfg.Dispatch.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.Dispatch.PollInterval)
	cfg.Dispatch.ListLimit = getEnvInt("LIST_LIMIT", cfg.Dispatch.ListLimit)
	cfg.Dispatch.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.Dispatch.CORSOrigins)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DSN возвращает строку подключения к БД
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AMQPURL возвращает URL подключения к RabbitMQ
func (c MQConfig) AMQPURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}
