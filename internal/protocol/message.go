package protocol

import "strconv"

// 实时通道事件类型
const (
	// 客户端 -> 服务端
	TypeIdentify    = "identify"
	TypeSendMessage = "send-message"
	TypeTypingStart = "typing-start"
	TypeTypingStop  = "typing-stop"
	TypePing        = "ping"

	// 服务端 -> 客户端
	TypeReceiveMessage       = "receive-message"
	TypeUserStatusChange     = "user-status-change"
	TypeTypingStatus         = "typing-status"
	TypeFriendRequestCreated = "friend-request-received"
	TypeFriendRequestUpdated = "friend-request-updated"
	TypePong                 = "pong"
	TypeError                = "error"
)

// 在线状态值
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Message 实时通道的统一消息信封
// 同一条逻辑消息可能同时经过实时路径和持久化路径到达客户端，
// 消费方按 ID（有则精确）或 (sender, content, timestamp) 去重
type Message struct {
	Type string `json:"type"`

	ID          string `json:"id,omitempty"`
	SenderID    string `json:"sender_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Content     string `json:"content,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`

	// 在线状态事件字段
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"`

	// 正在输入事件字段
	IsTyping bool `json:"is_typing,omitempty"`

	// 好友请求事件字段
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`

	// 鉴权（identify 时携带）
	Token string `json:"token,omitempty"`
}

// ReconciliationKey 去重键：有 ID 用 ID，否则退到 (sender, content, timestamp)
func ReconciliationKey(m *Message) string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	return fallbackKey(m)
}

func fallbackKey(m *Message) string {
	return "fb:" + m.SenderID + "|" + m.Content + "|" + strconv.FormatInt(m.Timestamp, 10)
}

// Merge 合并可能重复观察到的消息序列，保留首次出现的顺序
// 同一逻辑消息的带 ID 版本会覆盖占位的无 ID 版本
func Merge(observed []*Message) []*Message {
	seen := make(map[string]int)
	var out []*Message

	for _, m := range observed {
		key := ReconciliationKey(m)
		if idx, ok := seen[key]; ok {
			// 带 ID 的版本信息更完整，原位替换
			if out[idx].ID == "" && m.ID != "" {
				out[idx] = m
			}
			continue
		}
		// 两条路径的同一逻辑消息可能一条带 ID 一条不带，回退键兜底
		// 双方都带 ID 且 ID 不同的视为两条消息，不合并
		if idx, ok := seen[fallbackKey(m)]; ok && (out[idx].ID == "" || m.ID == "") {
			if out[idx].ID == "" && m.ID != "" {
				out[idx] = m
				seen[key] = idx
			}
			continue
		}
		seen[key] = len(out)
		if _, ok := seen[fallbackKey(m)]; !ok {
			seen[fallbackKey(m)] = len(out)
		}
		out = append(out, m)
	}

	return out
}
