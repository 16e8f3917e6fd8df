package chat

import (
	"context"

	"github.com/Kukaas/Chatty/internal/model"

	"gorm.io/gorm"
)

// Store 消息持久化接口，只增不改
type Store interface {
	// Append 追加一条消息记录
	Append(ctx context.Context, m *model.Message) error

	// History 两个用户之间的全部消息（两个方向），按创建时间升序
	// 当前不分页，生产规模需要加游标分页
	History(ctx context.Context, userA, userB string) ([]model.Message, error)
}

// GormStore 基于 GORM/MySQL 的消息存储
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore 创建消息存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append 追加消息
func (s *GormStore) Append(ctx context.Context, m *model.Message) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// History 按无序用户对查询消息历史
func (s *GormStore) History(ctx context.Context, userA, userB string) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userA, userB, userB, userA).
		Order("created_at asc").
		Find(&messages).Error
	return messages, err
}
