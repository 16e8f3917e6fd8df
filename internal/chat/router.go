package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Kukaas/Chatty/internal/apperr"
	"github.com/Kukaas/Chatty/internal/model"
	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/google/uuid"
)

// ErrEmptyRecipient 消息必须有接收者
var ErrEmptyRecipient = errors.New("消息缺少接收者ID")

// ErrEmptyContent 消息内容不能为空
var ErrEmptyContent = errors.New("消息内容不能为空")

// 持久化调用的超时上限，不能让存储抖动拖住事件处理
const defaultPersistTimeout = 5 * time.Second

// Deliverer 实时投递出口，由连接注册表实现
type Deliverer interface {
	SendToUser(userID string, message *protocol.Message)
	SendToUserExcept(userID string, exceptConnID string, message *protocol.Message)
}

// Router 消息路由器
//
// 投递和持久化是刻意分离的两条路径：投递走低延迟 fire-and-forget，
// 持久化走带超时的落库，两者不构成事务。同一条逻辑消息可能经
// 两条路径分别到达客户端，由消费方按 ReconciliationKey 去重。
type Router struct {
	store          Store
	deliverer      Deliverer
	persistTimeout time.Duration
}

// NewRouter 创建消息路由器
// deliverer 可为 nil（纯持久化路径，例如 HTTP 发消息时接收方全程离线）
func NewRouter(store Store, deliverer Deliverer) *Router {
	return &Router{
		store:          store,
		deliverer:      deliverer,
		persistTimeout: defaultPersistTimeout,
	}
}

// Route 路由一条消息
//
// 第一步投递：推给接收方全部连接，并回显到发送方除 originConnID 外的
// 其他连接（多标签页同步）。接收方离线不算失败，消息等下次历史拉取。
// 第二步持久化：独立落库，失败返回 StorageUnavailable，但不撤回已投递
// 的实时副本，调用方据此提示"发送成功但未保存"。
func (r *Router) Route(ctx context.Context, senderID, recipientID, content, originConnID string) (*protocol.Message, error) {
	if senderID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if recipientID == "" {
		return nil, ErrEmptyRecipient
	}
	if content == "" {
		return nil, ErrEmptyContent
	}

	now := time.Now()
	msg := &protocol.Message{
		Type:        protocol.TypeReceiveMessage,
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Timestamp:   now.Unix(),
	}

	// 投递路径
	if r.deliverer != nil {
		r.deliverer.SendToUser(recipientID, msg)
		r.deliverer.SendToUserExcept(senderID, originConnID, msg)
	}

	// 持久化路径
	persistCtx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	record := &model.Message{
		ID:          msg.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   now,
	}
	if err := r.store.Append(persistCtx, record); err != nil {
		log.Printf("消息 %s 落库失败: %v", msg.ID, err)
		return msg, &apperr.StorageUnavailableError{Err: err}
	}

	return msg, nil
}

// History 两个用户之间的消息历史，按创建时间升序
func (r *Router) History(ctx context.Context, userA, userB string) ([]*protocol.Message, error) {
	if userA == "" {
		return nil, apperr.ErrUnauthorized
	}

	records, err := r.store.History(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("查询消息历史失败: %w", err)
	}

	messages := make([]*protocol.Message, 0, len(records))
	for _, m := range records {
		messages = append(messages, &protocol.Message{
			Type:        protocol.TypeReceiveMessage,
			ID:          m.ID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Content:     m.Content,
			Timestamp:   m.CreatedAt.Unix(),
		})
	}
	return messages, nil
}

// ForwardTyping 把正在输入事件转发到接收方的全部连接
// 纯瞬态，不落库；丢了 stop 时没有超时兜底，连接断开会发合成 stop
func (r *Router) ForwardTyping(senderID, recipientID string, isTyping bool) {
	if r.deliverer == nil || recipientID == "" {
		return
	}

	r.deliverer.SendToUser(recipientID, &protocol.Message{
		Type:      protocol.TypeTypingStatus,
		UserID:    senderID,
		IsTyping:  isTyping,
		Timestamp: time.Now().Unix(),
	})
}
