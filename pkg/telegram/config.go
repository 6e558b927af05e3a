// Package telegram 提供 Telegram 通知渠道
package telegram

// Config Telegram 渠道配置
type Config struct {
	Enabled bool   `mapstructure:"enabled"` // 是否启用 Telegram 通知
	Token   string `mapstructure:"token"`   // Bot Token
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Token:   "",
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Enabled && c.Token == "" {
		return ErrTokenRequired
	}
	return nil
}
