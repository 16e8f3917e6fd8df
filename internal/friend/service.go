package friend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Kukaas/Chatty/internal/apperr"
	"github.com/Kukaas/Chatty/internal/model"
	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/google/uuid"
)

// ErrInvalidDecision respond 的 status 只接受 accepted / rejected
var ErrInvalidDecision = errors.New("无效的处理结果")

// Notifier 实时通知出口，由连接注册表实现
type Notifier interface {
	IsOnline(userID string) bool
	SendToUser(userID string, message *protocol.Message)
}

// Service 好友请求状态机
//
// 每个无序用户对的生命周期:
//
//	none -> pending(requester) -> accepted | rejected（终态）
//	pending 记录可被发起方 cancel 直接删除
//
// 明确的不变量：任意已存在记录（含 rejected）都阻塞新请求，
// 即拒绝后不允许重新发起，需要时只能由运营手工清理记录
type Service struct {
	store    Store
	notifier Notifier
}

// NewService 创建好友服务
// notifier 可为 nil（不发实时通知，纯持久化路径）
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Request 发起好友请求
func (s *Service) Request(ctx context.Context, requesterID, recipientID string) (*RequestResponse, error) {
	if requesterID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if requesterID == recipientID {
		return nil, apperr.ErrInvalidSelfReference
	}

	// 接收方必须存在
	recipient, err := s.store.GetUser(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("查询接收方失败: %w", err)
	}
	if recipient == nil {
		return nil, apperr.ErrNotFound
	}

	f := &model.Friendship{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      model.FriendshipStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// 双方同时互发请求是竞态，pair_key 唯一索引保证先写者胜出
	existing, err := s.store.CreatePending(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("创建好友请求失败: %w", err)
	}
	if existing != nil {
		return nil, &apperr.DuplicateRelationshipError{Status: existing.Status}
	}

	resp, err := s.populateRequest(ctx, f)
	if err != nil {
		return nil, err
	}

	// 接收方在线时实时推送，携带填充好的发起方概要
	if s.notifier != nil && s.notifier.IsOnline(recipientID) {
		s.notifier.SendToUser(recipientID, &protocol.Message{
			Type:      protocol.TypeFriendRequestCreated,
			RequestID: f.ID,
			Payload:   resp,
			Timestamp: time.Now().Unix(),
		})
	}

	log.Printf("用户 %s 向 %s 发起了好友请求 %s", requesterID, recipientID, f.ID)
	return resp, nil
}

// Respond 接收方处理好友请求
// 对已处理或不属于自己的请求返回 NotFound，重复调用不是硬错误
func (s *Service) Respond(ctx context.Context, responderID, requestID, decision string) error {
	if responderID == "" {
		return apperr.ErrUnauthorized
	}
	if decision != model.FriendshipStatusAccepted && decision != model.FriendshipStatusRejected {
		return ErrInvalidDecision
	}

	// 通知需要 requester，先读记录再条件更新
	record, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("查询好友请求失败: %w", err)
	}
	if record == nil {
		return apperr.ErrNotFound
	}

	ok, err := s.store.ResolvePending(ctx, requestID, responderID, decision)
	if err != nil {
		return fmt.Errorf("更新好友请求失败: %w", err)
	}
	if !ok {
		return apperr.ErrNotFound
	}

	// 发起方在线时推送 request_id，让其界面撤回 pending 状态
	if s.notifier != nil && s.notifier.IsOnline(record.RequesterID) {
		s.notifier.SendToUser(record.RequesterID, &protocol.Message{
			Type:      protocol.TypeFriendRequestUpdated,
			RequestID: requestID,
			Status:    decision,
			Timestamp: time.Now().Unix(),
		})
	}

	log.Printf("用户 %s 将好友请求 %s 置为 %s", responderID, requestID, decision)
	return nil
}

// Cancel 发起方撤回仍处于 pending 的请求，记录直接删除
func (s *Service) Cancel(ctx context.Context, requesterID, requestID string) error {
	if requesterID == "" {
		return apperr.ErrUnauthorized
	}

	record, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("查询好友请求失败: %w", err)
	}
	if record == nil {
		return apperr.ErrNotFound
	}

	ok, err := s.store.DeletePending(ctx, requestID, requesterID)
	if err != nil {
		return fmt.Errorf("删除好友请求失败: %w", err)
	}
	if !ok {
		return apperr.ErrNotFound
	}

	// 接收方在线时同样推送更新，撤回其待处理列表里的条目
	if s.notifier != nil && s.notifier.IsOnline(record.RecipientID) {
		s.notifier.SendToUser(record.RecipientID, &protocol.Message{
			Type:      protocol.TypeFriendRequestUpdated,
			RequestID: requestID,
			Timestamp: time.Now().Unix(),
		})
	}

	log.Printf("用户 %s 撤回了好友请求 %s", requesterID, requestID)
	return nil
}

// List 用户的全部已接受好友关系
// 防御性过滤自引用和重复用户对，即使 Request 不应产生它们
func (s *Service) List(ctx context.Context, userID string) ([]FriendItem, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}

	records, err := s.store.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询好友列表失败: %w", err)
	}

	profiles, err := s.profilesFor(ctx, records)
	if err != nil {
		return nil, err
	}

	seenPairs := make(map[string]bool)
	items := make([]FriendItem, 0, len(records))
	for _, r := range records {
		if r.RequesterID == r.RecipientID {
			continue
		}
		pairKey := pairKey(r.RequesterID, r.RecipientID)
		if seenPairs[pairKey] {
			continue
		}
		seenPairs[pairKey] = true

		items = append(items, FriendItem{
			ID:        r.ID,
			Requester: profiles[r.RequesterID],
			Recipient: profiles[r.RecipientID],
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return items, nil
}

// PendingIncoming 用户收到的待处理请求，发起方概要填充
func (s *Service) PendingIncoming(ctx context.Context, userID string) ([]RequestResponse, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}

	records, err := s.store.ListPendingIncoming(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询待处理请求失败: %w", err)
	}

	profiles, err := s.profilesFor(ctx, records)
	if err != nil {
		return nil, err
	}

	items := make([]RequestResponse, 0, len(records))
	for _, r := range records {
		if r.RequesterID == r.RecipientID {
			continue
		}
		items = append(items, RequestResponse{
			ID:          r.ID,
			Requester:   profiles[r.RequesterID],
			RecipientID: r.RecipientID,
			Status:      r.Status,
			CreatedAt:   r.CreatedAt,
		})
	}
	return items, nil
}

// populateRequest 填充发起方概要
func (s *Service) populateRequest(ctx context.Context, f *model.Friendship) (*RequestResponse, error) {
	requester, err := s.store.GetUser(ctx, f.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("查询发起方失败: %w", err)
	}

	resp := &RequestResponse{
		ID:          f.ID,
		RecipientID: f.RecipientID,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
	}
	if requester != nil {
		resp.Requester = toProfile(*requester)
	}
	return resp, nil
}

// profilesFor 批量拉取记录双方的用户概要
func (s *Service) profilesFor(ctx context.Context, records []model.Friendship) (map[string]UserProfile, error) {
	idSet := make(map[string]bool)
	var ids []string
	for _, r := range records {
		for _, id := range []string{r.RequesterID, r.RecipientID} {
			if !idSet[id] {
				idSet[id] = true
				ids = append(ids, id)
			}
		}
	}

	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询用户概要失败: %w", err)
	}

	profiles := make(map[string]UserProfile, len(users))
	for _, u := range users {
		profiles[u.ID] = toProfile(u)
	}
	return profiles, nil
}

func toProfile(u model.User) UserProfile {
	return UserProfile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
