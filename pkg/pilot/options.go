// Package pilot 提供 AgentPilot 核心框架
package pilot

import (
	"time"

	"github.com/KodaTao/AgentPilot/pkg/llm"
	"github.com/KodaTao/AgentPilot/pkg/telegram"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       llm.Config      `mapstructure:"llm"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telegram  telegram.Config `mapstructure:"telegram"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// Host 监听地址
	Host string `mapstructure:"host"`

	// Port 监听端口
	Port int `mapstructure:"port"`

	// Mode 运行模式：debug, release, test
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 数据库文件路径
	Path string `mapstructure:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别：debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format 日志格式：text, json
	Format string `mapstructure:"format"`

	// Output 输出目标：stdout, file
	Output string `mapstructure:"output"`

	// FilePath 日志文件路径（当 Output 为 file 时生效）
	FilePath string `mapstructure:"file_path"`
}

// SchedulerConfig 调度配置
type SchedulerConfig struct {
	// TickInterval 扫描到期任务的周期
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// LeaseTTL 执行租约的最长持有时间
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`

	// MaxConcurrent 同时执行的任务上限
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// RunTimeout 单次执行的最长时间
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// FailureThreshold 连续失败多少次后任务置为 failed
	FailureThreshold int `mapstructure:"failure_threshold"`

	// InboxBatchSize 单次执行最多带走的收件箱消息数
	InboxBatchSize int `mapstructure:"inbox_batch_size"`

	// CatchUp 停机补偿策略：fire_once, skip
	CatchUp string `mapstructure:"catch_up"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "debug",
		},
		LLM: llm.Config{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4",
			Timeout:     60,
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Database: DatabaseConfig{
			Path: "~/.agentpilot/data.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			TickInterval:     10 * time.Second,
			LeaseTTL:         35 * time.Minute,
			MaxConcurrent:    5,
			RunTimeout:       30 * time.Minute,
			FailureThreshold: 3,
			InboxBatchSize:   32,
			CatchUp:          "fire_once",
		},
		Telegram: telegram.Config{
			Enabled: false,
			Token:   "",
		},
	}
}

// Option 配置选项函数
type Option func(*Config)

// WithServerPort 设置服务器端口
func WithServerPort(port int) Option {
	return func(c *Config) {
		c.Server.Port = port
	}
}

// WithServerMode 设置服务器运行模式
func WithServerMode(mode string) Option {
	return func(c *Config) {
		c.Server.Mode = mode
	}
}

// WithLLMConfig 设置 LLM 配置
func WithLLMConfig(cfg llm.Config) Option {
	return func(c *Config) {
		c.LLM = cfg
	}
}

// WithDatabasePath 设置数据库路径
func WithDatabasePath(path string) Option {
	return func(c *Config) {
		c.Database.Path = path
	}
}

// WithLogLevel 设置日志级别
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.Log.Level = level
	}
}

// WithScheduler 设置调度配置
func WithScheduler(cfg SchedulerConfig) Option {
	return func(c *Config) {
		c.Scheduler = cfg
	}
}

// WithTelegram 设置 Telegram 配置
func WithTelegram(cfg telegram.Config) Option {
	return func(c *Config) {
		c.Telegram = cfg
	}
}
