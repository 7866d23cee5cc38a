package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`

	// 数据库配置
	UseLocalDB  bool   `env:"USE_LOCAL_DB" envDefault:"true"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/buylog.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	// JWT配置
	JWTSecret string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// CORS配置
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// HTTP配置
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// 邀请清理任务
	InviteTTL             time.Duration `env:"INVITE_TTL" envDefault:"24h"`
	InviteCleanupInterval time.Duration `env:"INVITE_CLEANUP_INTERVAL" envDefault:"5m"`

	// 调试配置
	Debug bool `env:"DEBUG" envDefault:"false"`
}

// LoadConfig 加载配置（.env 文件 + 环境变量）
func LoadConfig() (*Config, error) {
	// 根据环境加载对应的 .env 文件
	switch os.Getenv("ENVIRONMENT") {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config.PostgresDSN = strings.TrimSpace(config.PostgresDSN)
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	// 环境特定配置
	if config.IsProduction() {
		if config.PostgresDSN != "" {
			config.UseLocalDB = false
		} else {
			fmt.Println("⚠️  WARNING: Production environment using local SQLite database. Please configure POSTGRES_DSN")
		}
		// 生产环境关闭调试
		config.Debug = false
	}

	return config, nil
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	cachedErr    error
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
func GetCached() (*Config, error) {
	configOnce.Do(func() {
		cachedConfig, cachedErr = LoadConfig()
	})
	return cachedConfig, cachedErr
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		fmt.Println("⚠️  Using default JWT secret (not recommended for production)")
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或设置 USE_LOCAL_DB=true")
	}
	if c.UseLocalDB && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when USE_LOCAL_DB=true")
	}

	if c.RequestTimeout <= 0 || c.MaxBodyBytes <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT and MAX_BODY_BYTES must be positive")
	}

	if c.InviteTTL <= 0 || c.InviteCleanupInterval <= 0 {
		return fmt.Errorf("INVITE_TTL and INVITE_CLEANUP_INTERVAL must be positive")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// loadEnvFile 加载 .env 文件到环境变量，已存在的变量不覆盖
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // 文件不存在或无法打开，静默返回
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
