package friend

import "time"

// SendRequestRequest 发送好友请求
type SendRequestRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// RespondRequest 处理好友请求
type RespondRequest struct {
	RequestID string `json:"requestId" binding:"required"`
	Status    string `json:"status" binding:"required"` // accepted / rejected
}

// UserProfile 对外暴露的用户概要
type UserProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// RequestResponse 好友请求记录（含发起方概要，供实时通知直接渲染）
type RequestResponse struct {
	ID          string      `json:"id"`
	Requester   UserProfile `json:"requester"`
	RecipientID string      `json:"recipient_id"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// FriendItem 已接受的好友关系，双方概要都填充
type FriendItem struct {
	ID        string      `json:"id"`
	Requester UserProfile `json:"requester"`
	Recipient UserProfile `json:"recipient"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
