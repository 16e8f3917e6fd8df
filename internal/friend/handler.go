package friend

import (
	"errors"
	"log"
	"net/http"

	"github.com/Kukaas/Chatty/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Handler 好友相关 HTTP 接口
type Handler struct {
	service *Service
}

// NewHandler 创建好友接口处理器
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SendRequest 处理发送好友请求
func (h *Handler) SendRequest(c *gin.Context) {
	var req SendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	resp, err := h.service.Request(c.Request.Context(), userID, req.UserID)
	if err != nil {
		log.Printf("用户 %s 发送好友请求失败: %v", userID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Respond 处理接受/拒绝好友请求
func (h *Handler) Respond(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if err := h.service.Respond(c.Request.Context(), userID, req.RequestID, req.Status); err != nil {
		log.Printf("用户 %s 处理好友请求 %s 失败: %v", userID, req.RequestID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "好友请求已处理"})
}

// Cancel 处理撤回好友请求
func (h *Handler) Cancel(c *gin.Context) {
	requestID := c.Param("id")
	userID := c.GetString("userID")

	if err := h.service.Cancel(c.Request.Context(), userID, requestID); err != nil {
		log.Printf("用户 %s 撤回好友请求 %s 失败: %v", userID, requestID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "好友请求已撤回"})
}

// List 获取好友列表
func (h *Handler) List(c *gin.Context) {
	userID := c.GetString("userID")

	friends, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		log.Printf("获取用户 %s 的好友列表失败: %v", userID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, friends)
}

// PendingIncoming 获取待处理的好友请求
func (h *Handler) PendingIncoming(c *gin.Context) {
	userID := c.GetString("userID")

	requests, err := h.service.PendingIncoming(c.Request.Context(), userID)
	if err != nil {
		log.Printf("获取用户 %s 的待处理请求失败: %v", userID, err)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, requests)
}

// writeError 把业务错误映射为 HTTP 状态码，可恢复错误带具体提示
func (h *Handler) writeError(c *gin.Context, err error) {
	if dup, ok := apperr.IsDuplicateRelationship(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": dup.Error(), "status": dup.Status})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidSelfReference), errors.Is(err, ErrInvalidDecision):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsStorageUnavailable(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
