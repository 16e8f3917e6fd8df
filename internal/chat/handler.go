package chat

import (
	"errors"
	"log"
	"net/http"

	"github.com/Kukaas/Chatty/internal/apperr"

	"github.com/gin-gonic/gin"
)

// SendMessageRequest HTTP 路径发送消息
type SendMessageRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

// Handler 消息相关 HTTP 接口
type Handler struct {
	router *Router
}

// NewHandler 创建消息接口处理器
func NewHandler(router *Router) *Handler {
	return &Handler{router: router}
}

// SendMessage 处理 HTTP 路径的发消息
// HTTP 路径没有来源连接，回显会到达发送方的全部标签页
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	msg, err := h.router.Route(c.Request.Context(), userID, req.RecipientID, req.Content, "")
	if err != nil {
		// 落库失败时实时副本可能已送达，响应里带上消息体让客户端标记"未保存"
		if apperr.IsStorageUnavailable(err) {
			log.Printf("用户 %s 的消息落库失败: %v", userID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "message": msg})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetHistory 获取当前用户与指定用户的消息历史
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.GetString("userID")
	otherUserID := c.Param("user_id")

	messages, err := h.router.History(c.Request.Context(), userID, otherUserID)
	if err != nil {
		log.Printf("获取用户 %s 和 %s 的消息历史失败: %v", userID, otherUserID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEmptyRecipient), errors.Is(err, ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
