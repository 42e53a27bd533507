package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/carrierdesk/carrierdesk/internal/pricing"
	"github.com/carrierdesk/carrierdesk/pkg/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string // sqlite | postgres
	DSN    string
}

// FMCSAConfig 承运商资质查询配置
type FMCSAConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	CacheTTL  time.Duration // 查询结果缓存时长，0 表示不缓存
	RateLimit float64       // 每秒最多请求数，0 表示不限制
}

// Config 应用配置
type Config struct {
	ListenAddr string
	DebugAddr  string // pprof 监听地址（可选，为空则不启动）
	Database   DatabaseConfig
	APIKey     string
	FMCSA      FMCSAConfig
	Pricing    pricing.Config
	Log        logger.Config
	SecretsDir string // Badger 密钥库目录（可选）
	MasterKey  string // 密钥库加密 key（hex/base64，32 字节）
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	DebugAddr  string `yaml:"debug_addr" json:"debug_addr"`
	Database   struct {
		Driver string `yaml:"driver" json:"driver"`
		DSN    string `yaml:"dsn" json:"dsn"`
	} `yaml:"database" json:"database"`
	APIKey string `yaml:"api_key" json:"api_key"`
	FMCSA  struct {
		BaseURL   string   `yaml:"base_url" json:"base_url"`
		APIKey    string   `yaml:"api_key" json:"api_key"`
		Timeout   string   `yaml:"timeout" json:"timeout"`     // 例如 "5s"
		CacheTTL  string   `yaml:"cache_ttl" json:"cache_ttl"` // 例如 "10m"
		RateLimit *float64 `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"fmcsa" json:"fmcsa"`
	Pricing struct {
		MaxRounds        int      `yaml:"max_rounds" json:"max_rounds"`
		MaxBufferAmount  *float64 `yaml:"max_buffer_amount" json:"max_buffer_amount"`
		BufferPercentage *float64 `yaml:"buffer_percentage" json:"buffer_percentage"`
	} `yaml:"pricing" json:"pricing"`
	Log struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   bool   `yaml:"compress" json:"compress"`
		JSON       bool   `yaml:"json" json:"json"`
	} `yaml:"log" json:"log"`
	SecretsDir string `yaml:"secrets_dir" json:"secrets_dir"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Database:   DatabaseConfig{Driver: DriverSQLite, DSN: "data/carrierdesk.db"},
		FMCSA: FMCSAConfig{
			BaseURL:   "https://mobile.fmcsa.dot.gov/qc/services",
			APIKey:    "DEMO_KEY",
			Timeout:   5 * time.Second,
			CacheTTL:  10 * time.Minute,
			RateLimit: 5,
		},
		Pricing: pricing.DefaultConfig(),
		Log: logger.Config{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile 加载配置（优先级：环境变量 > 配置文件 > 默认值）。
// filePath 为空时只使用环境变量和默认值。
func LoadFromFile(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", filePath, err)
		}
		if err := cfg.applyFile(cf); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	// 支持 ${VAR} 展开
	data = []byte(os.ExpandEnv(string(data)))

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (.yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

func (c *Config) applyFile(cf *ConfigFile) error {
	c.ListenAddr = firstNonEmpty(cf.ListenAddr, c.ListenAddr)
	c.DebugAddr = firstNonEmpty(cf.DebugAddr, c.DebugAddr)
	if cf.Database.DSN != "" {
		c.Database.DSN = cf.Database.DSN
		c.Database.Driver = firstNonEmpty(cf.Database.Driver, DriverFromDSN(cf.Database.DSN))
	}
	c.APIKey = firstNonEmpty(cf.APIKey, c.APIKey)
	c.SecretsDir = firstNonEmpty(cf.SecretsDir, c.SecretsDir)

	c.FMCSA.BaseURL = firstNonEmpty(cf.FMCSA.BaseURL, c.FMCSA.BaseURL)
	c.FMCSA.APIKey = firstNonEmpty(cf.FMCSA.APIKey, c.FMCSA.APIKey)
	if cf.FMCSA.Timeout != "" {
		d, err := time.ParseDuration(cf.FMCSA.Timeout)
		if err != nil {
			return fmt.Errorf("fmcsa.timeout: %w", err)
		}
		c.FMCSA.Timeout = d
	}
	if cf.FMCSA.CacheTTL != "" {
		d, err := time.ParseDuration(cf.FMCSA.CacheTTL)
		if err != nil {
			return fmt.Errorf("fmcsa.cache_ttl: %w", err)
		}
		c.FMCSA.CacheTTL = d
	}
	if cf.FMCSA.RateLimit != nil {
		c.FMCSA.RateLimit = *cf.FMCSA.RateLimit
	}

	if cf.Pricing.MaxRounds != 0 {
		c.Pricing.MaxRounds = cf.Pricing.MaxRounds
	}
	if cf.Pricing.MaxBufferAmount != nil {
		c.Pricing.MaxBufferAmount = decimal.NewFromFloat(*cf.Pricing.MaxBufferAmount)
	}
	if cf.Pricing.BufferPercentage != nil {
		c.Pricing.BufferPercentage = decimal.NewFromFloat(*cf.Pricing.BufferPercentage)
	}

	c.Log.Level = firstNonEmpty(cf.Log.Level, c.Log.Level)
	c.Log.OutputFile = firstNonEmpty(cf.Log.File, c.Log.OutputFile)
	if cf.Log.MaxSize > 0 {
		c.Log.MaxSize = cf.Log.MaxSize
	}
	if cf.Log.MaxBackups > 0 {
		c.Log.MaxBackups = cf.Log.MaxBackups
	}
	if cf.Log.MaxAge > 0 {
		c.Log.MaxAge = cf.Log.MaxAge
	}
	c.Log.Compress = c.Log.Compress || cf.Log.Compress
	c.Log.JSON = c.Log.JSON || cf.Log.JSON
	return nil
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("CARRIERDESK_LISTEN", c.ListenAddr)
	c.DebugAddr = getEnv("CARRIERDESK_DEBUG_LISTEN", c.DebugAddr)
	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		c.Database.DSN = dsn
		c.Database.Driver = DriverFromDSN(dsn)
	}
	c.APIKey = getEnv("API_KEY", c.APIKey)
	c.FMCSA.APIKey = getEnv("FMCSA_API_KEY", c.FMCSA.APIKey)
	c.FMCSA.BaseURL = getEnv("FMCSA_BASE_URL", c.FMCSA.BaseURL)
	if v := getEnv("FMCSA_RATE_LIMIT", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FMCSA_RATE_LIMIT: %w", err)
		}
		c.FMCSA.RateLimit = f
	}
	c.SecretsDir = getEnv("CARRIERDESK_SECRETS_DIR", c.SecretsDir)
	c.MasterKey = getEnv("CARRIERDESK_MASTER_KEY", c.MasterKey)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.OutputFile = getEnv("LOG_FILE", c.Log.OutputFile)

	var err error
	if c.Pricing.MaxRounds, err = parseIntEnv("PRICING_MAX_ROUNDS", c.Pricing.MaxRounds); err != nil {
		return err
	}
	if c.Pricing.MaxBufferAmount, err = parseDecimalEnv("PRICING_MAX_BUFFER_AMOUNT", c.Pricing.MaxBufferAmount); err != nil {
		return err
	}
	if c.Pricing.BufferPercentage, err = parseDecimalEnv("PRICING_BUFFER_PERCENTAGE", c.Pricing.BufferPercentage); err != nil {
		return err
	}
	return nil
}

// ApplySecrets 用密钥库补齐未通过环境变量/配置文件提供的密钥
func (c *Config) ApplySecrets(lookup func(name string) string) {
	if lookup == nil {
		return
	}
	if c.APIKey == "" {
		c.APIKey = lookup("API_KEY")
	}
	if v := lookup("FMCSA_API_KEY"); v != "" && (c.FMCSA.APIKey == "" || c.FMCSA.APIKey == "DEMO_KEY") {
		c.FMCSA.APIKey = v
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen address is required")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API_KEY is required")
	}
	if c.FMCSA.BaseURL == "" {
		return errors.New("FMCSA base url is required")
	}
	if c.FMCSA.Timeout <= 0 {
		return errors.New("FMCSA timeout must be positive")
	}
	if c.FMCSA.RateLimit < 0 {
		return errors.New("FMCSA rate limit must not be negative")
	}
	return c.Pricing.Validate()
}

// DriverFromDSN postgres:// 或 postgresql:// 走 Postgres，其余按 SQLite 文件处理
func DriverFromDSN(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseDecimalEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
