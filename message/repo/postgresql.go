package repo

import (
	"fmt"

	"github.com/AdventureDe/LinkIM/message/config"
	"github.com/AdventureDe/LinkIM/message/repo/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 初始化数据库连接，driver 支持 postgres / mysql
func InitDB(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	DB = db
	return DB, nil
}

// AutoMigrate 自动迁移所有模型
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.PrivateMessage{},
		&model.Conversation{},
		&model.FirstContact{},
		&model.User{},
		&model.Follow{},
		&model.Blacklist{},
		&model.MessageSettings{},
		&model.SysConfig{},
	)
}

// CloseDB 关闭数据库连接
func CloseDB(log *zap.Logger) {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB() // 获取底层的 *sql.DB
	if err != nil {
		log.Warn("get sql.DB failed", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil { // 关闭连接池
		log.Warn("close database failed", zap.Error(err))
	}
}
