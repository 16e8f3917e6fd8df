package apperr

import (
	"errors"
	"fmt"
)

// 业务错误分类，供 handler 映射为 HTTP 状态码和客户端提示
var (
	// ErrUnauthorized 无法解析用户身份
	ErrUnauthorized = errors.New("未授权")

	// ErrInvalidSelfReference 不能向自己发送好友请求
	ErrInvalidSelfReference = errors.New("不能添加自己为好友")

	// ErrNotFound 请求记录不存在或不属于当前用户
	// respond/cancel 第二次调用同一个 ID 会返回该错误，调用方应视为"已处理"
	ErrNotFound = errors.New("好友请求不存在")
)

// DuplicateRelationshipError 好友关系已存在（任一方向、任一状态，含 rejected）
type DuplicateRelationshipError struct {
	Status string // 已有记录的状态，用于客户端提示
}

func (e *DuplicateRelationshipError) Error() string {
	return fmt.Sprintf("好友关系已存在，当前状态: %s", e.Status)
}

// IsDuplicateRelationship 判断并提取重复关系错误
func IsDuplicateRelationship(err error) (*DuplicateRelationshipError, bool) {
	var dup *DuplicateRelationshipError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

// StorageUnavailableError 持久化层不可用
// 消息路径上该错误不阻塞实时投递，只标记落库失败
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("存储不可用: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// IsStorageUnavailable 判断是否为存储不可用错误
func IsStorageUnavailable(err error) bool {
	var su *StorageUnavailableError
	return errors.As(err, &su)
}
