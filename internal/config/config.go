// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json/console
}

// DatabaseConfig 数据库配置，Host 为空时不启用持久化
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// Enabled 是否配置了数据库
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig Redis配置，Host 为空时使用进程内锁
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// Enabled 是否配置了 Redis
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr 返回Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIConfig API配置
type APIConfig struct {
	RateLimit int           `yaml:"rate_limit"` // 每秒请求数
	Timeout   time.Duration `yaml:"timeout"`
	CORS      CORSConfig    `yaml:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

// OptimizerConfig 调度优化器配置
type OptimizerConfig struct {
	BufferMinutes    int           `yaml:"buffer_minutes"`
	MaxLookaheadDays int           `yaml:"max_lookahead_days"`
	Timeout          time.Duration `yaml:"timeout"` // 单次调度的时间预算
	StrictLocations  bool          `yaml:"strict_locations"`
	CommitRetries    int           `yaml:"commit_retries"`
	DefaultDuration  int           `yaml:"default_duration_minutes"` // 请求未给出时长时的默认值
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "visitsched",
			Env:       "development",
			Port:      8002,
			LogLevel:  "info",
			LogFormat: "console",
		},
		Database: DatabaseConfig{
			Port:            5432,
			Name:            "visitsched",
			User:            "visitsched",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Port:     6379,
			PoolSize: 10,
			LockTTL:  10 * time.Second,
		},
		API: APIConfig{
			RateLimit: 100,
			Timeout:   30 * time.Second,
			CORS: CORSConfig{
				Enabled: true,
				Origins: []string{"*"},
			},
		},
		Optimizer: OptimizerConfig{
			BufferMinutes:    30,
			MaxLookaheadDays: 30,
			Timeout:          5 * time.Second,
			CommitRetries:    3,
			DefaultDuration:  120,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load 加载配置：默认值 → YAML 文件（CONFIG_FILE）→ .env → 环境变量
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// .env 不覆盖已存在的环境变量，文件不存在时忽略
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 读取 YAML 配置文件
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// applyEnv 用环境变量覆盖配置
func (c *Config) applyEnv() {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.App.Port = getEnvInt("APP_PORT", c.App.Port)
	c.App.LogLevel = getEnv("APP_LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("APP_LOG_FORMAT", c.App.LogFormat)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.LockTTL = getEnvDuration("REDIS_LOCK_TTL", c.Redis.LockTTL)

	c.API.RateLimit = getEnvInt("API_RATE_LIMIT", c.API.RateLimit)
	c.API.Timeout = getEnvDuration("API_TIMEOUT", c.API.Timeout)
	c.API.CORS.Enabled = getEnvBool("API_CORS_ENABLED", c.API.CORS.Enabled)

	c.Optimizer.BufferMinutes = getEnvInt("OPTIMIZER_BUFFER_MINUTES", c.Optimizer.BufferMinutes)
	c.Optimizer.MaxLookaheadDays = getEnvInt("OPTIMIZER_MAX_LOOKAHEAD_DAYS", c.Optimizer.MaxLookaheadDays)
	c.Optimizer.Timeout = getEnvDuration("OPTIMIZER_TIMEOUT", c.Optimizer.Timeout)
	c.Optimizer.StrictLocations = getEnvBool("OPTIMIZER_STRICT_LOCATIONS", c.Optimizer.StrictLocations)
	c.Optimizer.CommitRetries = getEnvInt("OPTIMIZER_COMMIT_RETRIES", c.Optimizer.CommitRetries)
	c.Optimizer.DefaultDuration = getEnvInt("OPTIMIZER_DEFAULT_DURATION", c.Optimizer.DefaultDuration)

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnv("METRICS_PATH", c.Metrics.Path)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("端口无效: %d", c.App.Port)
	}
	if c.Optimizer.BufferMinutes <= 0 {
		return fmt.Errorf("缓冲分钟数必须大于 0: %d", c.Optimizer.BufferMinutes)
	}
	if c.Optimizer.MaxLookaheadDays <= 0 {
		return fmt.Errorf("前瞻天数必须大于 0: %d", c.Optimizer.MaxLookaheadDays)
	}
	if c.Optimizer.CommitRetries <= 0 {
		return fmt.Errorf("提交重试次数必须大于 0: %d", c.Optimizer.CommitRetries)
	}
	return nil
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
