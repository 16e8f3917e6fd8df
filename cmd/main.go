package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Kukaas/Chatty/internal/chat"
	"github.com/Kukaas/Chatty/internal/config"
	"github.com/Kukaas/Chatty/internal/connection"
	"github.com/Kukaas/Chatty/internal/database"
	"github.com/Kukaas/Chatty/internal/friend"
	"github.com/Kukaas/Chatty/internal/presence"
	"github.com/Kukaas/Chatty/internal/redisclient"
	"github.com/Kukaas/Chatty/internal/router"
	"github.com/Kukaas/Chatty/internal/status"

	"github.com/joho/godotenv"
)

func main() {
	// 加载 .env（不存在时忽略）
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}

	// 读取配置
	if err := config.Init(); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB()
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取数据库连接失败: %v", err)
	}
	defer sqlDB.Close()

	log.Println("数据库初始化成功")

	// 初始化Redis
	if err := redisclient.Init(); err != nil {
		log.Printf("警告: Redis 初始化失败: %v", err)
		log.Println("在线状态将只保存在进程内存中")
	} else {
		log.Println("Redis 初始化成功")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 状态管理器 + 连接注册表 + 在线状态广播
	statusMgr := status.NewManager(ctx)
	registry := connection.NewManager(statusMgr)
	registry.SetPresenceListener(presence.NewBroadcaster(registry))

	// 定期清理本地状态缓存里过期的条目
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := statusMgr.CleanupExpiredStatuses(); err != nil {
					log.Printf("清理过期用户状态失败: %v", err)
				}
			}
		}
	}()

	// 消息路由器与好友服务
	msgRouter := chat.NewRouter(chat.NewGormStore(db), registry)
	friendSvc := friend.NewService(friend.NewGormStore(db), registry)

	// 设置 Gin 路由
	r := router.SetupRouter(registry, msgRouter, friendSvc, statusMgr)

	// 启动 HTTP 服务器
	port := config.GlobalConfig.Server.Port
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: r,
	}

	go func() {
		log.Printf("HTTP服务器已启动，监听端口 %d", port)
		log.Printf("实时通道: ws://localhost:%d/api/ws", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 关闭连接注册表（注册表是纯内存的，重启后从零重建）
	if err := registry.Close(); err != nil {
		log.Printf("连接注册表关闭失败: %v", err)
	}

	// 关闭 Redis
	if err := redisclient.CloseRedis(); err != nil {
		log.Printf("Redis 关闭失败: %v", err)
	}

	log.Println("服务器已安全关闭")
}
