package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kukaas/Chatty/internal/redisclient"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// UserStatus 表示用户状态
type UserStatus struct {
	UserID     string    `json:"user_id"`
	Online     bool      `json:"online"`
	LastActive time.Time `json:"last_active"`
}

// 状态键过期时间，连接心跳和 HTTP heartbeat 都会刷新
const statusTTL = 10 * time.Minute

// Redis 键
const (
	keyUserStatus  = "user:%s:status"
	keyOnlineUsers = "online_users"
)

// Manager 用户状态管理
// 注册表掉线重建后状态以注册表为准，这里只是带 TTL 的缓存视图，
// Redis 不可用时退化为本地缓存
type Manager struct {
	redisClient  *redis.Client
	redisEnabled bool
	statusCache  map[string]*UserStatus
	mutex        sync.RWMutex
	ctx          context.Context
}

// NewManager 创建状态管理器
func NewManager(ctx context.Context) *Manager {
	return &Manager{
		redisClient:  redisclient.GetRedisClient(),
		redisEnabled: redisclient.IsRedisEnabled(),
		statusCache:  make(map[string]*UserStatus),
		ctx:          ctx,
	}
}

// UpdateUserStatus 更新用户在线状态
func (m *Manager) UpdateUserStatus(userID string, online bool) error {
	now := time.Now()

	m.mutex.Lock()
	status, exists := m.statusCache[userID]
	if !exists {
		status = &UserStatus{UserID: userID}
		m.statusCache[userID] = status
	}
	status.Online = online
	status.LastActive = now
	snapshot := *status
	m.mutex.Unlock()

	if m.redisEnabled {
		return m.syncToRedis(userID, &snapshot)
	}
	return nil
}

// Touch 刷新用户活跃时间（HTTP 心跳路径）
func (m *Manager) Touch(userID string) error {
	m.mutex.RLock()
	status, exists := m.statusCache[userID]
	online := exists && status.Online
	m.mutex.RUnlock()

	return m.UpdateUserStatus(userID, online)
}

// syncToRedis 将状态同步到Redis
func (m *Manager) syncToRedis(userID string, status *UserStatus) error {
	statusKey := fmt.Sprintf(keyUserStatus, userID)

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("序列化用户状态失败: %w", err)
	}

	pipe := m.redisClient.Pipeline()
	pipe.Set(m.ctx, statusKey, data, statusTTL)
	if status.Online {
		pipe.SAdd(m.ctx, keyOnlineUsers, userID)
	} else {
		pipe.SRem(m.ctx, keyOnlineUsers, userID)
	}

	if _, err := pipe.Exec(m.ctx); err != nil {
		return fmt.Errorf("同步用户状态到Redis失败: %w", err)
	}
	return nil
}

// GetUserStatus 获取用户状态
func (m *Manager) GetUserStatus(userID string) (*UserStatus, error) {
	m.mutex.RLock()
	if status, ok := m.statusCache[userID]; ok {
		if time.Since(status.LastActive) < statusTTL {
			result := *status
			m.mutex.RUnlock()
			return &result, nil
		}
	}
	m.mutex.RUnlock()

	if m.redisEnabled {
		statusKey := fmt.Sprintf(keyUserStatus, userID)
		data, err := m.redisClient.Get(m.ctx, statusKey).Bytes()
		if err == nil {
			var status UserStatus
			if err = json.Unmarshal(data, &status); err == nil {
				m.mutex.Lock()
				m.statusCache[userID] = &status
				m.mutex.Unlock()
				return &status, nil
			}
		}
	}

	// 默认离线
	return &UserStatus{
		UserID:     userID,
		Online:     false,
		LastActive: time.Now().Add(-statusTTL),
	}, nil
}

// IsUserOnline 检查用户是否在线
func (m *Manager) IsUserOnline(userID string) (bool, error) {
	status, err := m.GetUserStatus(userID)
	if err != nil {
		return false, err
	}
	return status.Online, nil
}

// GetOnlineUsers 获取所有在线用户
func (m *Manager) GetOnlineUsers() ([]string, error) {
	if !m.redisEnabled {
		m.mutex.RLock()
		defer m.mutex.RUnlock()

		var onlineUsers []string
		for userID, status := range m.statusCache {
			if status.Online && time.Since(status.LastActive) < statusTTL {
				onlineUsers = append(onlineUsers, userID)
			}
		}
		return onlineUsers, nil
	}

	users, err := m.redisClient.SMembers(m.ctx, keyOnlineUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("获取在线用户列表失败: %w", err)
	}
	return users, nil
}

// CleanupExpiredStatuses 清理本地缓存中过期的用户状态
func (m *Manager) CleanupExpiredStatuses() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	for userID, status := range m.statusCache {
		if now.Sub(status.LastActive) > statusTTL {
			delete(m.statusCache, userID)
		}
	}
	return nil
}
