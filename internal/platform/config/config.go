package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chat-sanitizer/internal/constants"

	"github.com/spf13/viper"
)

// 存儲驅動.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config 應用程式配置結構.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
	Limits    LimitsConfig    `mapstructure:"limits"`
}

// AppConfig 應用程式基本配置.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"` // 開啟才會註冊 dev 清理端點
}

// ServerConfig 伺服器配置.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Timeout  int    `mapstructure:"timeout"`
	UseHTTPS bool   `mapstructure:"use_https"`
	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
}

// GRPCConfig gRPC 配置.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
}

// DatabaseConfig 資料庫配置.
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"` // mongo 或 memory
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Memory MemoryConfig `mapstructure:"memory"`
}

// MongoConfig MongoDB 配置.
type MongoConfig struct {
	URL                    string `mapstructure:"url"`
	Database               string `mapstructure:"database"`
	Username               string `mapstructure:"username"`
	Password               string `mapstructure:"password"`
	MaxPoolSize            uint64 `mapstructure:"max_pool_size"`
	MinPoolSize            uint64 `mapstructure:"min_pool_size"`
	MaxConnIdleTime        int    `mapstructure:"max_conn_idle_time"`
	ConnectTimeout         int    `mapstructure:"connect_timeout"`
	ServerSelectionTimeout int    `mapstructure:"server_selection_timeout"`
	Transactions           bool   `mapstructure:"transactions"` // 批次刪除使用交易（需要 replica set），關閉時批次可能部分寫入
	CreateIndexes          bool   `mapstructure:"create_indexes"`
	TLSEnabled             bool   `mapstructure:"tls_enabled"`
	TLSCAFile              string `mapstructure:"tls_ca_file"`
	TLSCertFile            string `mapstructure:"tls_cert_file"`
	TLSKeyFile             string `mapstructure:"tls_key_file"`
	TLSInsecureSkipVerify  bool   `mapstructure:"tls_insecure_skip_verify"`
}

// MemoryConfig 記憶體存儲配置.
type MemoryConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// LogConfig 日誌配置.
type LogConfig struct {
	Path              string `mapstructure:"path"`
	Level             string `mapstructure:"level"`               // DEBUG、INFO、NOTICE、WARNING、ERROR.
	RotationTimeHours int    `mapstructure:"rotation_time_hours"` // 日誌輪轉時間 (小時).
	MaxAgeDays        int    `mapstructure:"max_age_days"`        // 日誌保留天數.
	MaxSizeMB         int    `mapstructure:"max_size_mb"`         // 單個日誌檔案最大大小 (MB).
}

// SecurityConfig 安全配置.
type SecurityConfig struct {
	TLS        TLSConfig        `mapstructure:"tls"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

// TLSConfig TLS 配置.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// EncryptionConfig 加密配置. 開啟時掃描前先解密訊息內容.
type EncryptionConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Algorithm string `mapstructure:"algorithm"`
}

// AuditConfig 審計配置.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// SanitizerConfig 清理流程配置.
type SanitizerConfig struct {
	BatchSize    int    `mapstructure:"batch_size"`
	SkipRedacted bool   `mapstructure:"skip_redacted"`
	DefaultActor string `mapstructure:"default_actor"`
	HistorySize  int    `mapstructure:"history_size"`
}

// LimitsConfig 限制配置.
type LimitsConfig struct {
	Request      RequestLimitsConfig `mapstructure:"request"`
	RateLimiting RateLimitingConfig  `mapstructure:"rate_limiting"`
}

// RequestLimitsConfig 請求限制配置.
type RequestLimitsConfig struct {
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// RateLimitingConfig Rate Limiting 配置.
type RateLimitingConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	DevPerMinute    int  `mapstructure:"dev_per_minute"`
	Burst           int  `mapstructure:"burst"`
	CleanupInterval int  `mapstructure:"cleanup_interval_minutes"`
}

var (
	config *Config
	// ENV 當前環境變數.
	ENV string = "local"
)

// Default 回傳可直接使用的記憶體存儲配置（CLI 與測試用）.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "chat-sanitizer",
			Version: "dev",
			Debug:   true,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    "8080",
			Timeout: constants.DefaultRequestTimeout,
		},
		GRPC: GRPCConfig{
			Host: "0.0.0.0",
			Port: "8081",
		},
		Database: DatabaseConfig{
			Driver: DriverMemory,
			Mongo: MongoConfig{
				MaxPoolSize:            10,
				ConnectTimeout:         10,
				ServerSelectionTimeout: 5,
				Transactions:           true,
			},
		},
		Log: LogConfig{
			Path:              "./logs",
			Level:             "INFO",
			RotationTimeHours: 24,
			MaxAgeDays:        30,
			MaxSizeMB:         100,
		},
		Sanitizer: SanitizerConfig{
			BatchSize:    constants.DefaultSoftDeleteBatchSize,
			DefaultActor: constants.DefaultActorID,
			HistorySize:  constants.DefaultRunHistorySize,
		},
		Limits: LimitsConfig{
			Request: RequestLimitsConfig{MaxBodySize: constants.DefaultMaxRequestBodySize},
			RateLimiting: RateLimitingConfig{
				Enabled:         true,
				DevPerMinute:    constants.DefaultDevRateLimitPerMinute,
				Burst:           constants.DefaultDevRateLimitBurst,
				CleanupInterval: constants.RateLimitCleanupIntervalMin,
			},
		},
	}
}

// Load 載入設定檔.
func Load(testCfg ...*Config) error {
	// 如果直接傳入配置（主要用於測試），設定並驗證
	if len(testCfg) > 0 && testCfg[0] != nil {
		if err := validateConfig(testCfg[0]); err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}
		config = testCfg[0]
		return nil
	}

	v := viper.New()
	setDefaults(v)

	// 環境變數覆蓋，例如 APP_DEBUG、SANITIZER_BATCH_SIZE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
		// 從檔案名稱推斷環境
		baseName := filepath.Base(configPath)
		ENV = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	} else {
		if env := os.Getenv("ENV"); env != "" {
			ENV = env
		}
		v.SetConfigName(ENV)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("讀取配置檔案失敗: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失敗: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("配置驗證失敗: %w", err)
	}

	config = cfg
	return nil
}

// setDefaults 與 Default() 保持一致，讓配置檔只需寫差異.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.version", d.App.Version)
	v.SetDefault("app.debug", false)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("grpc.host", d.GRPC.Host)
	v.SetDefault("grpc.port", d.GRPC.Port)
	v.SetDefault("database.driver", DriverMongo)
	v.SetDefault("database.mongo.max_pool_size", d.Database.Mongo.MaxPoolSize)
	v.SetDefault("database.mongo.connect_timeout", d.Database.Mongo.ConnectTimeout)
	v.SetDefault("database.mongo.server_selection_timeout", d.Database.Mongo.ServerSelectionTimeout)
	v.SetDefault("database.mongo.transactions", d.Database.Mongo.Transactions)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.rotation_time_hours", d.Log.RotationTimeHours)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("sanitizer.batch_size", d.Sanitizer.BatchSize)
	v.SetDefault("sanitizer.skip_redacted", false)
	v.SetDefault("sanitizer.default_actor", d.Sanitizer.DefaultActor)
	v.SetDefault("sanitizer.history_size", d.Sanitizer.HistorySize)
	v.SetDefault("limits.request.max_body_size", d.Limits.Request.MaxBodySize)
	v.SetDefault("limits.rate_limiting.enabled", d.Limits.RateLimiting.Enabled)
	v.SetDefault("limits.rate_limiting.dev_per_minute", d.Limits.RateLimiting.DevPerMinute)
	v.SetDefault("limits.rate_limiting.burst", d.Limits.RateLimiting.Burst)
	v.SetDefault("limits.rate_limiting.cleanup_interval_minutes", d.Limits.RateLimiting.CleanupInterval)
}

// Get 取得設定.
func Get() *Config {
	return config
}

// SetEnv 設定環境.
func SetEnv(env string) {
	ENV = env
}

// GetEnv 取得當前環境.
func GetEnv() string {
	return ENV
}

// validateConfig 驗證配置的有效性
func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("應用程式名稱不能為空")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("應用程式版本不能為空")
	}

	if cfg.Server.Host == "" {
		return fmt.Errorf("伺服器主機不能為空")
	}
	if cfg.Server.Port == "" {
		return fmt.Errorf("伺服器端口不能為空")
	}
	if cfg.Server.Timeout <= 0 {
		return fmt.Errorf("伺服器超時時間必須大於 0")
	}

	switch cfg.Database.Driver {
	case DriverMongo:
		if cfg.Database.Mongo.URL == "" {
			return fmt.Errorf("MongoDB URL 不能為空")
		}
		if cfg.Database.Mongo.Database == "" {
			return fmt.Errorf("MongoDB 資料庫名稱不能為空")
		}
		if cfg.Database.Mongo.MaxPoolSize == 0 {
			return fmt.Errorf("MongoDB 最大連接池大小必須大於 0")
		}
		if cfg.Database.Mongo.MinPoolSize > cfg.Database.Mongo.MaxPoolSize {
			return fmt.Errorf("MongoDB 最小連接池大小不能大於最大連接池大小")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("不支援的資料庫驅動: %q", cfg.Database.Driver)
	}

	switch strings.ToUpper(cfg.Log.Level) {
	case "", "DEBUG", "INFO", "NOTICE", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("不支援的日誌級別: %q", cfg.Log.Level)
	}
	if cfg.Log.RotationTimeHours <= 0 {
		return fmt.Errorf("日誌輪轉時間必須大於 0")
	}
	if cfg.Log.MaxAgeDays <= 0 {
		return fmt.Errorf("日誌保留天數必須大於 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("日誌檔案最大大小必須大於 0")
	}

	if cfg.Sanitizer.BatchSize <= 0 || cfg.Sanitizer.BatchSize > constants.MaxSoftDeleteBatchSize {
		return fmt.Errorf("批次大小必須介於 1 到 %d", constants.MaxSoftDeleteBatchSize)
	}
	if cfg.Sanitizer.HistorySize <= 0 {
		return fmt.Errorf("執行紀錄數量必須大於 0")
	}
	if cfg.Sanitizer.DefaultActor == "" {
		return fmt.Errorf("預設操作者不能為空")
	}

	if cfg.Security.TLS.Enabled && (cfg.Security.TLS.CertFile == "" || cfg.Security.TLS.KeyFile == "") {
		return fmt.Errorf("啟用 TLS 時必須設定憑證與私鑰")
	}

	return nil
}

// IsDebug 檢查是否為除錯模式
func IsDebug() bool {
	if config != nil {
		return config.App.Debug
	}
	return false
}

// GetServerAddr 取得伺服器地址
func GetServerAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)
	}
	return "localhost:8080"
}

// GetGRPCAddr 取得 gRPC 伺服器地址
func GetGRPCAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.GRPC.Host, config.GRPC.Port)
	}
	return "localhost:8081"
}
