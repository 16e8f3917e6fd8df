package friend

import (
	"context"
	"testing"

	"github.com/Kukaas/Chatty/internal/apperr"
	"github.com/Kukaas/Chatty/internal/model"
	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存版好友存储
type fakeStore struct {
	friendships map[string]*model.Friendship
	users       map[string]*model.User
}

func newFakeStore(users ...*model.User) *fakeStore {
	s := &fakeStore{
		friendships: make(map[string]*model.Friendship),
		users:       make(map[string]*model.User),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) CreatePending(ctx context.Context, f *model.Friendship) (*model.Friendship, error) {
	for _, existing := range s.friendships {
		if (existing.RequesterID == f.RequesterID && existing.RecipientID == f.RecipientID) ||
			(existing.RequesterID == f.RecipientID && existing.RecipientID == f.RequesterID) {
			copy := *existing
			return &copy, nil
		}
	}
	copy := *f
	s.friendships[f.ID] = &copy
	return nil, nil
}

func (s *fakeStore) ResolvePending(ctx context.Context, requestID, recipientID, newStatus string) (bool, error) {
	f, ok := s.friendships[requestID]
	if !ok || f.RecipientID != recipientID || f.Status != model.FriendshipStatusPending {
		return false, nil
	}
	f.Status = newStatus
	return true, nil
}

func (s *fakeStore) DeletePending(ctx context.Context, requestID, requesterID string) (bool, error) {
	f, ok := s.friendships[requestID]
	if !ok || f.RequesterID != requesterID || f.Status != model.FriendshipStatusPending {
		return false, nil
	}
	delete(s.friendships, requestID)
	return true, nil
}

func (s *fakeStore) FindByID(ctx context.Context, requestID string) (*model.Friendship, error) {
	f, ok := s.friendships[requestID]
	if !ok {
		return nil, nil
	}
	copy := *f
	return &copy, nil
}

func (s *fakeStore) ListAccepted(ctx context.Context, userID string) ([]model.Friendship, error) {
	var list []model.Friendship
	for _, f := range s.friendships {
		if f.Status == model.FriendshipStatusAccepted && (f.RequesterID == userID || f.RecipientID == userID) {
			list = append(list, *f)
		}
	}
	return list, nil
}

func (s *fakeStore) ListPendingIncoming(ctx context.Context, userID string) ([]model.Friendship, error) {
	var list []model.Friendship
	for _, f := range s.friendships {
		if f.Status == model.FriendshipStatusPending && f.RecipientID == userID {
			list = append(list, *f)
		}
	}
	return list, nil
}

func (s *fakeStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	copy := *u
	return &copy, nil
}

func (s *fakeStore) GetUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	var users []model.User
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

// fakeNotifier 记录实时通知
type fakeNotifier struct {
	online map[string]bool
	sent   map[string][]*protocol.Message
}

func newFakeNotifier(onlineUsers ...string) *fakeNotifier {
	n := &fakeNotifier{
		online: make(map[string]bool),
		sent:   make(map[string][]*protocol.Message),
	}
	for _, u := range onlineUsers {
		n.online[u] = true
	}
	return n
}

func (n *fakeNotifier) IsOnline(userID string) bool { return n.online[userID] }

func (n *fakeNotifier) SendToUser(userID string, m *protocol.Message) {
	n.sent[userID] = append(n.sent[userID], m)
}

func setup(onlineUsers ...string) (*Service, *fakeStore, *fakeNotifier) {
	store := newFakeStore(
		&model.User{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		&model.User{ID: "bob", Name: "Bob", Email: "bob@example.com"},
		&model.User{ID: "carol", Name: "Carol", Email: "carol@example.com"},
	)
	notifier := newFakeNotifier(onlineUsers...)
	return NewService(store, notifier), store, notifier
}

func TestRequestRejectsSelfReference(t *testing.T) {
	svc, _, _ := setup()
	_, err := svc.Request(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, apperr.ErrInvalidSelfReference)
}

func TestRequestRejectsUnknownRecipient(t *testing.T) {
	svc, _, _ := setup()
	_, err := svc.Request(context.Background(), "alice", "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRequestDuplicateEitherDirection(t *testing.T) {
	svc, _, _ := setup()
	_, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	// 同方向重复
	_, err = svc.Request(context.Background(), "alice", "bob")
	dup, ok := apperr.IsDuplicateRelationship(err)
	require.True(t, ok)
	assert.Equal(t, model.FriendshipStatusPending, dup.Status)

	// 反方向同样被挡住
	_, err = svc.Request(context.Background(), "bob", "alice")
	_, ok = apperr.IsDuplicateRelationship(err)
	assert.True(t, ok)
}

func TestRejectedRecordStillBlocksReRequest(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.Respond(context.Background(), "bob", resp.ID, model.FriendshipStatusRejected))

	// 拒绝后的重新请求仍然被已有记录阻塞，错误里带当前状态
	_, err = svc.Request(context.Background(), "alice", "bob")
	dup, ok := apperr.IsDuplicateRelationship(err)
	require.True(t, ok)
	assert.Equal(t, model.FriendshipStatusRejected, dup.Status)
}

func TestRespondTwiceReturnsNotFound(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, svc.Respond(context.Background(), "bob", resp.ID, model.FriendshipStatusAccepted))
	// 第二次调用返回 NotFound，调用方应视为"已处理"
	err = svc.Respond(context.Background(), "bob", resp.ID, model.FriendshipStatusAccepted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRespondByWrongUserReturnsNotFound(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	// 只有接收方能处理，其他人拿到的等同于不存在
	err = svc.Respond(context.Background(), "carol", resp.ID, model.FriendshipStatusAccepted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = svc.Respond(context.Background(), "alice", resp.ID, model.FriendshipStatusAccepted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRespondRejectsInvalidDecision(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = svc.Respond(context.Background(), "bob", resp.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestCancelTwiceReturnsNotFound(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "alice", resp.ID))
	err = svc.Cancel(context.Background(), "alice", resp.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelOnlyByRequester(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), "bob", resp.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelDeletesRecordAndAllowsNewRequest(t *testing.T) {
	svc, _, _ := setup()
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), "alice", resp.ID))

	// 记录删除后可以重新发起
	_, err = svc.Request(context.Background(), "bob", "alice")
	assert.NoError(t, err)
}

func TestAcceptScenarioWithRealtimeNotifications(t *testing.T) {
	svc, _, notifier := setup("alice", "bob")

	// A 发起请求，B 在线时实时收到 friend-request-received，携带发起方概要
	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	require.Len(t, notifier.sent["bob"], 1)
	received := notifier.sent["bob"][0]
	assert.Equal(t, protocol.TypeFriendRequestCreated, received.Type)
	assert.Equal(t, resp.ID, received.RequestID)
	payload, ok := received.Payload.(*RequestResponse)
	require.True(t, ok)
	assert.Equal(t, "Alice", payload.Requester.Name)

	// B 接受，A 在线时收到 friend-request-updated，携带请求 ID
	require.NoError(t, svc.Respond(context.Background(), "bob", resp.ID, model.FriendshipStatusAccepted))
	require.Len(t, notifier.sent["alice"], 1)
	updated := notifier.sent["alice"][0]
	assert.Equal(t, protocol.TypeFriendRequestUpdated, updated.Type)
	assert.Equal(t, resp.ID, updated.RequestID)

	// 双方的好友列表都包含这条关系
	aliceList, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	bobList, err := svc.List(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, aliceList, 1)
	require.Len(t, bobList, 1)
	assert.Equal(t, resp.ID, aliceList[0].ID)
	assert.Equal(t, "Bob", aliceList[0].Recipient.Name)
}

func TestNoNotificationWhenCounterpartyOffline(t *testing.T) {
	svc, _, notifier := setup() // 无人在线

	resp, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, notifier.sent["bob"])

	require.NoError(t, svc.Respond(context.Background(), "bob", resp.ID, model.FriendshipStatusAccepted))
	assert.Empty(t, notifier.sent["alice"])
}

func TestListFiltersSelfReferentialRecords(t *testing.T) {
	svc, store, _ := setup()

	// 防御性过滤：直接在存储里构造一条不该存在的自引用记录
	store.friendships["bad"] = &model.Friendship{
		ID: "bad", RequesterID: "alice", RecipientID: "alice",
		Status: model.FriendshipStatusAccepted,
	}

	list, err := svc.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	pending, err := svc.PendingIncoming(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingIncomingPopulatesRequesterProfile(t *testing.T) {
	svc, _, _ := setup()
	_, err := svc.Request(context.Background(), "alice", "bob")
	require.NoError(t, err)

	pending, err := svc.PendingIncoming(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Alice", pending[0].Requester.Name)
	assert.Equal(t, "alice@example.com", pending[0].Requester.Email)

	// 方向性：alice 这边没有待处理请求
	nothing, err := svc.PendingIncoming(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, nothing)
}
