package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig execution and settlement settings.
type EngineConfig struct {
	OpeningBalance     string        `yaml:"opening_balance"`      // credited to every new wallet
	FeeRate            string        `yaml:"fee_rate"`             // fraction of margin, e.g. "0.01"
	MaxSlippagePercent string        `yaml:"max_slippage_percent"` // hard cap on per-order slippage, a fraction (0.05 = 5%)
	QuoteMaxAge        time.Duration `yaml:"quote_max_age"`        // quotes older than this are stale
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
}

// OracleConfig price feed settings.
type OracleConfig struct {
	Mode     string        `yaml:"mode"` // sim, ws, rest
	Endpoint string        `yaml:"endpoint"`
	Symbols  []string      `yaml:"symbols"`
	Interval time.Duration `yaml:"interval"` // poll/tick interval for rest and sim
}

// StorageConfig durable state locations.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	BadgerDir  string `yaml:"badger_dir"`
}

// LogConfig log output settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// RateLimitConfig per-user request gating.
type RateLimitConfig struct {
	Capacity   int `yaml:"capacity"`
	RefillRate int `yaml:"refill_rate"` // tokens per second
}

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the configuration used when no file or env override
// is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			OpeningBalance:     "1000",
			FeeRate:            "0.01",
			MaxSlippagePercent: "0.05",
			QuoteMaxAge:        10 * time.Second,
			RetryAttempts:      3,
			RetryBackoff:       100 * time.Millisecond,
		},
		Oracle: OracleConfig{
			Mode:     "sim",
			Symbols:  []string{"BTC-USD", "ETH-USD"},
			Interval: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			SQLitePath: "data/gotrade.db",
			BadgerDir:  "data/audit",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/combined.log",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		},
		RateLimit: RateLimitConfig{
			Capacity:   20,
			RefillRate: 10,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file if one
// is given, then environment overrides. A .env file in the working
// directory is read first so local runs need no exported variables.
func Load(filePath string) (*Config, error) {
	_ = godotenv.Load()

	config := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", filePath, err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return config, nil
}

func applyEnv(c *Config) {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Engine.OpeningBalance = getEnv("OPENING_BALANCE", c.Engine.OpeningBalance)
	c.Engine.FeeRate = getEnv("FEE_RATE", c.Engine.FeeRate)
	c.Engine.MaxSlippagePercent = getEnv("MAX_SLIPPAGE_PERCENT", c.Engine.MaxSlippagePercent)
	c.Engine.RetryAttempts = parseIntEnv("RETRY_ATTEMPTS", c.Engine.RetryAttempts)
	c.Oracle.Mode = getEnv("ORACLE_MODE", c.Oracle.Mode)
	c.Oracle.Endpoint = getEnv("ORACLE_ENDPOINT", c.Oracle.Endpoint)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.BadgerDir = getEnv("BADGER_DIR", c.Storage.BadgerDir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.RateLimit.Capacity = parseIntEnv("RATE_LIMIT_CAPACITY", c.RateLimit.Capacity)
	c.RateLimit.RefillRate = parseIntEnv("RATE_LIMIT_REFILL_RATE", c.RateLimit.RefillRate)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr 不能为空")
	}
	switch c.Oracle.Mode {
	case "sim", "ws", "rest":
	default:
		return fmt.Errorf("未知的 oracle.mode: %s (支持 sim, ws, rest)", c.Oracle.Mode)
	}
	if c.Oracle.Mode != "sim" && c.Oracle.Endpoint == "" {
		return fmt.Errorf("oracle.endpoint 不能为空（mode=%s）", c.Oracle.Mode)
	}
	if len(c.Oracle.Symbols) == 0 {
		return fmt.Errorf("oracle.symbols 不能为空")
	}
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("engine.retry_attempts 必须大于 0")
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillRate <= 0 {
		return fmt.Errorf("rate_limit 必须大于 0")
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
