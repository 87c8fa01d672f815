package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"order-engine-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Dex      DexConfig      `yaml:"dex"`
	Alert    AlertConfig    `yaml:"alert"`
	Log      logger.Config  `yaml:"log"`
}

type ServerConfig struct {
	Port        int `yaml:"port"`        // HTTP API 端口
	MetricsPort int `yaml:"metricsPort"` // Prometheus 指标端口，0 表示不单独暴露
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // 完整 DSN，优先于下面的分字段
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslMode"`
	InMemory bool   `yaml:"inMemory"` // 开发/测试用内存存储
}

// DSN 拼接 postgres 连接串；配置了 url 时直接返回它。
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, sslMode)
}

type QueueConfig struct {
	MaxConcurrentOrders int           `yaml:"maxConcurrentOrders"` // 同时处理的订单上限
	OrdersPerMinute     int           `yaml:"ordersPerMinute"`     // 滚动一分钟窗口的准入上限
	MaxRetryAttempts    int           `yaml:"maxRetryAttempts"`    // 单个订单的最大处理尝试次数（含首次）
	BackoffBase         Duration      `yaml:"backoffBase"`         // 重试退避基数，第 n 次为 base*2^n
	SaturationThreshold int           `yaml:"saturationThreshold"` // 等待队列积压告警阈值，0 表示不告警
}

type DexConfig struct {
	SlippageTolerance float64       `yaml:"slippageTolerance"` // 默认滑点容忍度
	BasePrice         float64       `yaml:"basePrice"`         // 模拟行情基准价
	DriftInterval     Duration      `yaml:"driftInterval"`     // 行情随机漂移周期，0 表示不漂移
	Seed              int64         `yaml:"seed"`              // 随机种子，0 表示用时间
}

type AlertConfig struct {
	ThrottleInterval Duration `yaml:"throttleInterval"` // 相同告警的去重窗口
}

// Default returns the baseline configuration used when fields are omitted.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Server: ServerConfig{
			Port: 3000,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "orders",
			User:     "postgres",
			InMemory: true,
		},
		Queue: QueueConfig{
			MaxConcurrentOrders: 10,
			OrdersPerMinute:     100,
			MaxRetryAttempts:    3,
			BackoffBase:         Duration(time.Second),
		},
		Dex: DexConfig{
			SlippageTolerance: 0.01,
			BasePrice:         100,
		},
		Alert: AlertConfig{
			ThrottleInterval: Duration(5 * time.Minute),
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.InMemory = false
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("OE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("server.metricsPort %d out of range", cfg.Server.MetricsPort)
	}
	if !cfg.Database.InMemory && cfg.Database.URL == "" {
		if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			return errors.New("database.host/name/user are required (or database.url, or inMemory)")
		}
	}
	if cfg.Queue.MaxConcurrentOrders <= 0 {
		return errors.New("queue.maxConcurrentOrders must be > 0")
	}
	if cfg.Queue.OrdersPerMinute <= 0 {
		return errors.New("queue.ordersPerMinute must be > 0")
	}
	if cfg.Queue.MaxRetryAttempts < 0 {
		return errors.New("queue.maxRetryAttempts must be >= 0")
	}
	if cfg.Queue.BackoffBase <= 0 {
		return errors.New("queue.backoffBase must be > 0")
	}
	if cfg.Queue.SaturationThreshold < 0 {
		return errors.New("queue.saturationThreshold must be >= 0")
	}
	if cfg.Dex.SlippageTolerance < 0 || cfg.Dex.SlippageTolerance >= 1 {
		return fmt.Errorf("dex.slippageTolerance %f must be in [0, 1)", cfg.Dex.SlippageTolerance)
	}
	if cfg.Dex.BasePrice <= 0 {
		return errors.New("dex.basePrice must be > 0")
	}
	if cfg.Dex.DriftInterval < 0 {
		return errors.New("dex.driftInterval must be >= 0")
	}
	if cfg.Alert.ThrottleInterval < 0 {
		return errors.New("alert.throttleInterval must be >= 0")
	}
	return nil
}
