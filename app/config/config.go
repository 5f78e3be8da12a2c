package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	MiniMax  MiniMaxConfig  `mapstructure:"minimax"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Database DatabaseConfig `mapstructure:"database"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	Dir        string `mapstructure:"dir"`         // 日志目录
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// AuthConfig 接口登录账号，password_hash 为 bcrypt 哈希，为空时关闭登录接口
type AuthConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// MiniMaxConfig 海螺视频接口配置
type MiniMaxConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // 单次请求超时（秒）
}

// RequestTimeout 单次请求超时
func (m MiniMaxConfig) RequestTimeout() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// BatchConfig 批量任务默认参数
type BatchConfig struct {
	OutputDir     string `mapstructure:"output_dir"`
	MaxWorkers    int    `mapstructure:"max_workers"`
	CheckInterval int    `mapstructure:"check_interval"` // 轮询间隔（秒）
	MaxRounds     int    `mapstructure:"max_rounds"`     // 0 表示不限制轮询轮数
}

// PollInterval 轮询间隔
func (b BatchConfig) PollInterval() time.Duration {
	return time.Duration(b.CheckInterval) * time.Second
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WatchConfig 任务文件收件箱监控配置
type WatchConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	InboxDir     string `mapstructure:"inbox_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
}

// CleanupConfig 历史任务清理配置
type CleanupConfig struct {
	Schedule               string `mapstructure:"schedule"`
	CompletedRetentionDays int    `mapstructure:"completed_retention_days"`
	FailedRetentionDays    int    `mapstructure:"failed_retention_days"`
}

func Load() *Config {
	cfg, err := LoadE()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// LoadE 读取配置并返回错误而不是直接退出
func LoadE() (*Config, error) {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件出错: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解码配置: %w", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.dir", "data/logs")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "hailuo-batch")

	viper.SetDefault("auth.username", "admin")

	viper.SetDefault("minimax.base_url", "https://api.minimaxi.com")
	viper.SetDefault("minimax.timeout", 60)

	viper.SetDefault("batch.output_dir", "output")
	viper.SetDefault("batch.max_workers", 3)
	viper.SetDefault("batch.check_interval", 5)
	viper.SetDefault("batch.max_rounds", 0)

	viper.SetDefault("database.path", "data/hailuo_tasks.db")

	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.inbox_dir", "data/inbox")
	viper.SetDefault("watch.processed_dir", "data/inbox/processed")

	viper.SetDefault("cleanup.schedule", "@every 1h")
	viper.SetDefault("cleanup.completed_retention_days", 7)
	viper.SetDefault("cleanup.failed_retention_days", 30)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.MiniMax.BaseURL == "" {
		return fmt.Errorf("minimax.base_url 未设置")
	}
	if config.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch.max_workers 必须大于 0")
	}
	if config.Batch.CheckInterval <= 0 {
		return fmt.Errorf("batch.check_interval 必须大于 0")
	}
	if config.Batch.MaxRounds < 0 {
		return fmt.Errorf("batch.max_rounds 不能为负数")
	}
	if config.Database.Path == "" {
		return fmt.Errorf("数据库路径未设置")
	}
	return nil
}
