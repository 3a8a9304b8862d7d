package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	LLD      LLDConfig      `mapstructure:"lld"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	// Seed 启动时导入的规则定义文件（YAML），为空则跳过
	Seed string `mapstructure:"seed"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxPayload 单次发现请求体上限（字节）
	MaxPayload int64 `mapstructure:"max_payload"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// SlowThreshold 慢 SQL 阈值
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	LogSQL        bool          `mapstructure:"log_sql"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LLDConfig 发现引擎配置
type LLDConfig struct {
	// Workers 批量处理多条规则时的并发上限
	Workers int `mapstructure:"workers"`
	// DefaultLifetime 规则未设置 lifetime 时使用
	DefaultLifetime time.Duration `mapstructure:"default_lifetime"`
	// RunTimeout 单次运行超时
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// TxRetry 遇到 SQLite 忙时的事务重试
	TxRetry RetryConfig  `mapstructure:"tx_retry"`
	Limits  LimitsConfig `mapstructure:"limits"`
}

// RetryConfig 重试参数
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Sleep    time.Duration `mapstructure:"sleep"`
}

// LimitsConfig 名称长度上限（字符数）
type LimitsConfig struct {
	HostName    int `mapstructure:"host_name"`
	VisibleName int `mapstructure:"visible_name"`
	GroupName   int `mapstructure:"group_name"`
	TagName     int `mapstructure:"tag_name"`
	TagValue    int `mapstructure:"tag_value"`
}

// AuditConfig 审计归档配置
type AuditConfig struct {
	// Archive 归档后端：none | local | minio
	Archive string           `mapstructure:"archive"`
	Local   LocalAuditConfig `mapstructure:"local"`
	Minio   MinioConfig      `mapstructure:"minio"`
}

// LocalAuditConfig 本地归档目录
type LocalAuditConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Secure    bool   `mapstructure:"secure"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

var globalConfig *Config

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 环境变量覆盖，例如 LLD_SERVER_PORT
	v.SetEnvPrefix("LLD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_payload", 16<<20)

	v.SetDefault("database.sqlite.path", "./data/lldsync.db")
	v.SetDefault("database.sqlite.busy_timeout", 15*time.Second)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)
	v.SetDefault("database.sqlite.slow_threshold", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/lldsync.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("lld.workers", 4)
	v.SetDefault("lld.default_lifetime", 30*24*time.Hour)
	v.SetDefault("lld.run_timeout", 5*time.Minute)
	v.SetDefault("lld.tx_retry.attempts", 5)
	v.SetDefault("lld.tx_retry.sleep", 50*time.Millisecond)
	v.SetDefault("lld.limits.host_name", 128)
	v.SetDefault("lld.limits.visible_name", 128)
	v.SetDefault("lld.limits.group_name", 255)
	v.SetDefault("lld.limits.tag_name", 255)
	v.SetDefault("lld.limits.tag_value", 255)

	// 审计默认仅写入数据库
	v.SetDefault("audit.archive", "none")
	v.SetDefault("audit.local.base_dir", "./data/audit")
	v.SetDefault("audit.local.mkdir_if_missing", true)
	v.SetDefault("audit.minio.bucket", "lld-audit")
	v.SetDefault("audit.minio.prefix", "runs")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.LLD.Workers < 1 {
		return fmt.Errorf("lld.workers must be positive, got %d", c.LLD.Workers)
	}
	if c.LLD.DefaultLifetime < 0 {
		return fmt.Errorf("lld.default_lifetime must not be negative")
	}
	switch strings.ToLower(c.Audit.Archive) {
	case "", "none", "local", "minio":
	default:
		return fmt.Errorf("unsupported audit.archive: %q", c.Audit.Archive)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
