package router

import (
	"log"
	"net/http"
	"time"

	"github.com/Kukaas/Chatty/internal/chat"
	"github.com/Kukaas/Chatty/internal/config"
	"github.com/Kukaas/Chatty/internal/connection"
	"github.com/Kukaas/Chatty/internal/friend"
	"github.com/Kukaas/Chatty/internal/middleware"
	"github.com/Kukaas/Chatty/internal/server"
	"github.com/Kukaas/Chatty/internal/status"
	"github.com/Kukaas/Chatty/internal/user"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SetupRouter 配置所有路由
func SetupRouter(registry connection.Registry, msgRouter *chat.Router, friendSvc *friend.Service, statusMgr *status.Manager) *gin.Engine {
	r := gin.Default()

	// CORS 配置
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{config.GlobalConfig.App.Origin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// API请求日志中间件
	r.Use(func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("requestID", requestID)

		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)

		log.Printf("[%s] 请求: %s %s, 状态: %d, 延迟: %s",
			requestID, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency)
	})

	chatHandler := chat.NewHandler(msgRouter)
	friendHandler := friend.NewHandler(friendSvc)

	// API 路由
	api := r.Group("/api")
	{
		// ----- 无需认证的路由 -----
		api.POST("/register", user.Register)
		api.POST("/login", user.Login)

		// 心跳预检
		api.OPTIONS("/heartbeat", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		// 实时通道 - 身份在 identify 阶段校验，不经过JWT中间件
		api.GET("/ws", server.WebSocketHandler(registry, msgRouter))

		// ----- 需要认证的路由 -----
		auth := api.Group("/")
		auth.Use(middleware.JWT())
		{
			// ----- 用户相关 -----
			auth.GET("/user/info", user.GetUserInfo)
			auth.GET("/users/search", user.SearchUsers)
			auth.GET("/users/online", user.OnlineUsers(registry))

			// ----- 好友相关 -----
			auth.POST("/friends", friendHandler.SendRequest)
			auth.GET("/friends", friendHandler.List)
			auth.GET("/friends/requests", friendHandler.PendingIncoming)
			auth.POST("/friends/respond", friendHandler.Respond)
			auth.DELETE("/friends/requests/:id", friendHandler.Cancel)

			// ----- 消息相关 -----
			auth.POST("/messages", chatHandler.SendMessage)
			auth.GET("/messages/user/:user_id", chatHandler.GetHistory)

			// 心跳检测
			auth.GET("/heartbeat", user.Heartbeat(statusMgr))
		}
	}

	return r
}
