package user

import (
	"log"
	"net/http"

	"github.com/Kukaas/Chatty/internal/connection"
	"github.com/Kukaas/Chatty/internal/status"

	"github.com/gin-gonic/gin"
)

// Register 处理用户注册
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := NewAccountService()
	userID, err := svc.Register(c.Request.Context(), &req)
	if err != nil {
		log.Printf("注册错误: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "用户注册成功",
		"user_id": userID,
	})
}

// Login 处理用户登录
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := NewAccountService()
	response, err := svc.Login(c.Request.Context(), &req)
	if err != nil {
		log.Printf("%s 登录失败: %v", req.Email, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetUserInfo 获取当前用户信息
func GetUserInfo(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未授权"})
		return
	}

	svc := NewAccountService()
	user, err := svc.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取用户信息失败"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// SearchUsers 搜索用户
func SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "搜索查询不能为空"})
		return
	}

	svc := NewAccountService()
	users, err := svc.SearchUsers(c.Request.Context(), query)
	if err != nil {
		log.Printf("搜索用户出错: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索用户失败"})
		return
	}

	c.JSON(http.StatusOK, users)
}

// OnlineUsers 返回在线用户 ID 快照
// 拉取路径和推送增量同源于连接注册表，避免两边漂移
func OnlineUsers(registry connection.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": registry.OnlineUsers()})
	}
}

// Heartbeat 处理 HTTP 心跳，刷新用户活跃状态的 TTL
func Heartbeat(statusMgr *status.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "未授权"})
			return
		}

		if err := statusMgr.Touch(userID); err != nil {
			log.Printf("刷新用户 %s 的心跳失败: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新状态失败"})
			return
		}

		userStatus, _ := statusMgr.GetUserStatus(userID)
		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
			"online":  userStatus.Online,
		})
	}
}
