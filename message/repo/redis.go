package repo

import (
	"context"
	"time"

	"github.com/AdventureDe/LinkIM/message/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端
func InitRedis(cfg config.Redis) (*redis.Client, error) {
	RDB = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	// 测试连接是否成功
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return RDB, nil
}

// CloseRedis 关闭 Redis 客户端连接
func CloseRedis(log *zap.Logger) {
	if RDB == nil {
		return
	}
	if err := RDB.Close(); err != nil {
		log.Warn("close redis failed", zap.Error(err))
	}
}
