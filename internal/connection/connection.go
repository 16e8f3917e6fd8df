package connection

import (
	"errors"
	"time"

	"github.com/Kukaas/Chatty/internal/protocol"
)

// Connection 表示一个与客户端的实时连接句柄
// 一个用户可以同时持有多个句柄（多标签页/多设备）
type Connection interface {
	// SendMessage 发送消息到客户端，缓冲区满或连接关闭时立即返回错误
	SendMessage(message *protocol.Message) error

	// Close 关闭连接
	Close() error

	// GetUserID 获取用户 ID
	GetUserID() string

	// GetConnID 获取连接句柄 ID
	GetConnID() string
}

// Registry 连接注册表，"谁在线"的唯一事实来源
// 完全驻留内存，进程重启后从零重建
// 隔离在接口后面，多进程部署时可替换为共享存储实现而不触碰路由逻辑
type Registry interface {
	// Register 注册一个连接句柄，用户的第一个句柄触发上线事件
	Register(userID string, conn Connection) error

	// Unregister 注销指定句柄，未注册过的句柄是 no-op
	// 用户最后一个句柄移除时触发一次下线事件
	Unregister(userID string, connID string)

	// IsOnline 用户至少有一个活跃句柄时为 true
	IsOnline(userID string) bool

	// ConnectionsFor 返回用户当前的全部句柄
	ConnectionsFor(userID string) []Connection

	// OnlineUsers 返回当前在线用户 ID 快照
	OnlineUsers() []string

	// SendToUser 投递消息到用户的全部句柄，尽力而为
	SendToUser(userID string, message *protocol.Message)

	// SendToUserExcept 投递到用户除指定句柄外的其他句柄（发送方回显用）
	SendToUserExcept(userID string, exceptConnID string, message *protocol.Message)

	// Broadcast 投递消息到所有在线连接
	Broadcast(message *protocol.Message)
}

// PresenceListener 接收注册表上线/下线迁移事件
type PresenceListener interface {
	OnPresenceChange(userID string, online bool)
}

// 连接超时与心跳常量
const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 10000
)

// 连接层错误
var (
	ErrConnectionClosed     = errors.New("连接已关闭")
	ErrConnectionBufferFull = errors.New("发送缓冲区已满")
	ErrNoIdentity           = errors.New("连接未携带可解析的用户身份")
)
