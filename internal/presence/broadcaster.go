package presence

import (
	"time"

	"github.com/Kukaas/Chatty/internal/protocol"
)

// Fanout 是广播出口，由连接注册表实现
type Fanout interface {
	Broadcast(message *protocol.Message)
}

// Broadcaster 把注册表的上线/下线迁移转成 user-status-change 事件推给客户端
// 目前对所有在线连接全量广播，和原始行为一致
// 大规模部署时应换成按好友关系圈定通知范围的实现，接口保持不变
type Broadcaster struct {
	fanout Fanout
}

// NewBroadcaster 创建全量广播器
func NewBroadcaster(fanout Fanout) *Broadcaster {
	return &Broadcaster{fanout: fanout}
}

// OnPresenceChange 实现 connection.PresenceListener
func (b *Broadcaster) OnPresenceChange(userID string, online bool) {
	statusValue := protocol.StatusOnline
	if !online {
		statusValue = protocol.StatusOffline
	}

	b.fanout.Broadcast(&protocol.Message{
		Type:      protocol.TypeUserStatusChange,
		UserID:    userID,
		Status:    statusValue,
		Timestamp: time.Now().Unix(),
	})
}
