// Package storage 提供 sqlite 数据库的打开与建表
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/KodaTao/AgentPilot/pkg/observability"
)

// Config 数据库配置
type Config struct {
	Path string // 数据库文件路径
}

// Open 打开数据库连接
// 路径中的 ~ 展开为用户主目录，父目录不存在时自动创建
func Open(cfg Config) (*gorm.DB, error) {
	dbPath := expandPath(cfg.Path)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	// 业务日志走应用自己的 logger，gorm 的 SQL 日志关掉
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	observability.Info("Database opened", "path", dbPath)
	return db, nil
}

// Migrate 按模型建表
func Migrate(db *gorm.DB, models ...any) error {
	return db.AutoMigrate(models...)
}

// Close 关闭底层数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// expandPath 展开路径中的 ~ 为用户主目录
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
