package model

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(50)" json:"name"`
	Email     string    `gorm:"type:varchar(100);uniqueIndex" json:"email"`
	Password  string    `gorm:"type:varchar(100)" json:"-"`
	AvatarURL string    `gorm:"type:varchar(255)" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// 好友关系状态
const (
	FriendshipStatusPending  = "pending"
	FriendshipStatusAccepted = "accepted"
	FriendshipStatusRejected = "rejected"
)

// Friendship 好友请求/好友关系
// 每个无序用户对最多存在一条记录，由 pair_key 上的唯一索引保证：
// 两个用户互发请求的竞态下，两边的查重快照读都可能看不到对方，
// 最终靠唯一索引让后写者失败
// pending 记录被 cancel 时直接删除，accepted/rejected 为终态
type Friendship struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	RequesterID string `gorm:"type:varchar(36);index:idx_requester_recipient;not null"`
	RecipientID string `gorm:"type:varchar(36);index:idx_requester_recipient;not null"`
	// PairKey 归一化的无序用户对，小 ID 在前
	PairKey   string `gorm:"uniqueIndex;type:varchar(73);not null" json:"-"`
	Status    string `gorm:"type:varchar(20);not null;default:'pending'"` // pending, accepted, rejected
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (Friendship) TableName() string {
	return "friendships"
}

// Message 单聊消息，只增不改
type Message struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID    string    `gorm:"type:varchar(36);index" json:"sender_id"`
	RecipientID string    `gorm:"type:varchar(36);index" json:"recipient_id"`
	Content     string    `gorm:"type:text" json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// SetupDatabase 初始化数据库表结构
func SetupDatabase(db *gorm.DB) error {
	// 自动迁移表结构
	return db.AutoMigrate(
		&User{},
		&Friendship{},
		&Message{},
	)
}
