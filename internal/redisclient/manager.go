package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/Kukaas/Chatty/internal/config"

	"github.com/go-redis/redis/v8"
)

// 在线状态缓存共用的 Redis 客户端
// 进程启动时从全局配置初始化一次，连接失败不重试，
// 状态层整体降级为进程内存
var (
	client  *redis.Client
	enabled bool
)

const pingTimeout = 5 * time.Second

// Init 按 config.GlobalConfig.Redis 建立连接并探活
func Init() error {
	cfg := config.GlobalConfig.Redis
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		enabled = false
		return err
	}

	enabled = true
	return nil
}

// GetRedisClient 获取客户端实例，未初始化或连接失败时为 nil 语义
func GetRedisClient() *redis.Client {
	return client
}

// IsRedisEnabled Redis 是否可用
func IsRedisEnabled() bool {
	return enabled && client != nil
}

// CloseRedis 进程退出时关闭连接
func CloseRedis() error {
	if client == nil {
		return nil
	}
	enabled = false
	return client.Close()
}
