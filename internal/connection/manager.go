package connection

import (
	"log"
	"sync"

	"github.com/Kukaas/Chatty/internal/protocol"
	"github.com/Kukaas/Chatty/internal/status"
)

// Manager 单进程内存版连接注册表
// 按 用户ID -> 句柄ID -> 连接 组织，显式增删句柄，避免"最后一个标签页获胜"
type Manager struct {
	connections map[string]map[string]Connection
	listener    PresenceListener
	statusMgr   *status.Manager
	mutex       sync.RWMutex
}

var _ Registry = (*Manager)(nil)

// NewManager 创建连接注册表
// statusMgr 可为 nil（不同步 Redis 在线状态）
func NewManager(statusMgr *status.Manager) *Manager {
	return &Manager{
		connections: make(map[string]map[string]Connection),
		statusMgr:   statusMgr,
	}
}

// SetPresenceListener 设置上线/下线事件监听器
// 必须在 Register 之前调用，之后不再变更
func (m *Manager) SetPresenceListener(l PresenceListener) {
	m.listener = l
}

// Register 注册连接句柄
func (m *Manager) Register(userID string, conn Connection) error {
	if userID == "" {
		return ErrNoIdentity
	}

	m.mutex.Lock()
	userConns, ok := m.connections[userID]
	if !ok {
		userConns = make(map[string]Connection)
		m.connections[userID] = userConns
	}
	first := len(userConns) == 0
	userConns[conn.GetConnID()] = conn
	m.mutex.Unlock()

	log.Printf("用户 %s 的连接 %s 已注册", userID, conn.GetConnID())

	// 只有第一个句柄触发上线迁移
	if first {
		if m.statusMgr != nil {
			if err := m.statusMgr.UpdateUserStatus(userID, true); err != nil {
				log.Printf("更新用户 %s 的在线状态失败: %v", userID, err)
			}
		}
		if m.listener != nil {
			m.listener.OnPresenceChange(userID, true)
		}
	}

	return nil
}

// Unregister 注销连接句柄
// 断连可能与注册失败竞争，未注册过的句柄直接忽略
func (m *Manager) Unregister(userID string, connID string) {
	m.mutex.Lock()
	userConns, ok := m.connections[userID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	conn, ok := userConns[connID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	delete(userConns, connID)
	last := len(userConns) == 0
	if last {
		delete(m.connections, userID)
	}
	m.mutex.Unlock()

	_ = conn.Close()
	log.Printf("用户 %s 的连接 %s 已注销", userID, connID)

	// 最后一个句柄移除时触发一次下线迁移
	if last {
		if m.statusMgr != nil {
			if err := m.statusMgr.UpdateUserStatus(userID, false); err != nil {
				log.Printf("更新用户 %s 的离线状态失败: %v", userID, err)
			}
		}
		if m.listener != nil {
			m.listener.OnPresenceChange(userID, false)
		}
	}
}

// IsOnline 检查用户是否在线
func (m *Manager) IsOnline(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.connections[userID]) > 0
}

// ConnectionsFor 返回用户当前的全部句柄
func (m *Manager) ConnectionsFor(userID string) []Connection {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conns := make([]Connection, 0, len(m.connections[userID]))
	for _, conn := range m.connections[userID] {
		conns = append(conns, conn)
	}
	return conns
}

// OnlineUsers 返回在线用户 ID 快照
// 与推送增量同源，客户端晚加入时用它重建在线状态
func (m *Manager) OnlineUsers() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	users := make([]string, 0, len(m.connections))
	for userID := range m.connections {
		users = append(users, userID)
	}
	return users
}

// SendToUser 投递消息到用户的全部句柄
func (m *Manager) SendToUser(userID string, message *protocol.Message) {
	for _, conn := range m.ConnectionsFor(userID) {
		if err := conn.SendMessage(message); err != nil {
			log.Printf("投递消息到用户 %s 的连接 %s 失败: %v", userID, conn.GetConnID(), err)
		}
	}
}

// SendToUserExcept 投递到用户除指定句柄外的其他句柄
func (m *Manager) SendToUserExcept(userID string, exceptConnID string, message *protocol.Message) {
	for _, conn := range m.ConnectionsFor(userID) {
		if conn.GetConnID() == exceptConnID {
			continue
		}
		if err := conn.SendMessage(message); err != nil {
			log.Printf("投递消息到用户 %s 的连接 %s 失败: %v", userID, conn.GetConnID(), err)
		}
	}
}

// Broadcast 投递消息到所有在线连接
func (m *Manager) Broadcast(message *protocol.Message) {
	m.mutex.RLock()
	var conns []Connection
	for _, userConns := range m.connections {
		for _, conn := range userConns {
			conns = append(conns, conn)
		}
	}
	m.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.SendMessage(message); err != nil {
			log.Printf("广播消息到连接 %s 失败: %v", conn.GetConnID(), err)
		}
	}
}

// Close 关闭所有连接并清空注册表
func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, userConns := range m.connections {
		for _, conn := range userConns {
			_ = conn.Close()
		}
	}
	m.connections = make(map[string]map[string]Connection)
	return nil
}
