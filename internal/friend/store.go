package friend

import (
	"context"
	"errors"

	"github.com/Kukaas/Chatty/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Store 好友关系持久化接口
// 状态机逻辑在 Service 里，这里只做记录级操作
type Store interface {
	// CreatePending 插入 pending 记录，每个无序用户对最多一条
	// 若该用户对已存在记录（任意状态、任意方向），返回已有记录且不插入
	CreatePending(ctx context.Context, f *model.Friendship) (existing *model.Friendship, err error)

	// ResolvePending 把 pending 记录置为终态
	// 条件更新：id 匹配、recipient 匹配、状态仍为 pending，返回是否命中
	ResolvePending(ctx context.Context, requestID, recipientID, newStatus string) (bool, error)

	// DeletePending 删除 pending 记录
	// 条件删除：id 匹配、requester 匹配、状态仍为 pending，返回是否命中
	DeletePending(ctx context.Context, requestID, requesterID string) (bool, error)

	// FindByID 按 ID 查找记录，不存在时返回 nil
	FindByID(ctx context.Context, requestID string) (*model.Friendship, error)

	// ListAccepted 用户参与的全部 accepted 记录（任一方向）
	ListAccepted(ctx context.Context, userID string) ([]model.Friendship, error)

	// ListPendingIncoming 用户为接收方的全部 pending 记录
	ListPendingIncoming(ctx context.Context, userID string) ([]model.Friendship, error)

	// GetUser 按 ID 查找用户，不存在时返回 nil
	GetUser(ctx context.Context, userID string) (*model.User, error)

	// GetUsers 批量查找用户
	GetUsers(ctx context.Context, userIDs []string) ([]model.User, error)
}

// GormStore 基于 GORM/MySQL 的好友关系存储
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore 创建好友关系存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreatePending 插入 pending 记录
// 先按 pair_key 查已有记录是快速路径，REPEATABLE READ 下两个并发
// 事务可能都看不到对方的插入，唯一约束才是兜底：后写者拿到重复键
// 错误后重读已有记录返回
func (s *GormStore) CreatePending(ctx context.Context, f *model.Friendship) (*model.Friendship, error) {
	f.PairKey = pairKey(f.RequesterID, f.RecipientID)

	existing, err := s.findByPairKey(ctx, f.PairKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	err = s.db.WithContext(ctx).Create(f).Error
	if err == nil {
		return nil, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, err
	}

	existing, findErr := s.findByPairKey(ctx, f.PairKey)
	if findErr != nil {
		return nil, findErr
	}
	if existing != nil {
		return existing, nil
	}
	// 对方的记录在插入失败后又被删除，把原始错误报出去
	return nil, err
}

// findByPairKey 按归一化用户对查记录，不存在时返回 nil
func (s *GormStore) findByPairKey(ctx context.Context, key string) (*model.Friendship, error) {
	var found model.Friendship
	err := s.db.WithContext(ctx).Where("pair_key = ?", key).First(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// isDuplicateKeyErr 识别唯一索引冲突
// GORM 只在开启 TranslateError 时转换该错误，这里两种形态都认
func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// ResolvePending 条件更新 pending 记录为终态
func (s *GormStore) ResolvePending(ctx context.Context, requestID, recipientID, newStatus string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("id = ? AND recipient_id = ? AND status = ?", requestID, recipientID, model.FriendshipStatusPending).
		Update("status", newStatus)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeletePending 条件删除 pending 记录
func (s *GormStore) DeletePending(ctx context.Context, requestID, requesterID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("id = ? AND requester_id = ? AND status = ?", requestID, requesterID, model.FriendshipStatusPending).
		Delete(&model.Friendship{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID 按 ID 查找记录
func (s *GormStore) FindByID(ctx context.Context, requestID string) (*model.Friendship, error) {
	var f model.Friendship
	err := s.db.WithContext(ctx).Where("id = ?", requestID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListAccepted 用户参与的全部 accepted 记录
func (s *GormStore) ListAccepted(ctx context.Context, userID string) ([]model.Friendship, error) {
	var list []model.Friendship
	err := s.db.WithContext(ctx).
		Where("(requester_id = ? OR recipient_id = ?) AND status = ?",
			userID, userID, model.FriendshipStatusAccepted).
		Find(&list).Error
	return list, err
}

// ListPendingIncoming 用户为接收方的全部 pending 记录
func (s *GormStore) ListPendingIncoming(ctx context.Context, userID string) ([]model.Friendship, error) {
	var list []model.Friendship
	err := s.db.WithContext(ctx).
		Where("recipient_id = ? AND status = ?", userID, model.FriendshipStatusPending).
		Find(&list).Error
	return list, err
}

// GetUser 按 ID 查找用户
func (s *GormStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsers 批量查找用户
func (s *GormStore) GetUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var users []model.User
	err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error
	return users, err
}
