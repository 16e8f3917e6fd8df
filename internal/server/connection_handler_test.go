package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kukaas/Chatty/internal/chat"
	"github.com/Kukaas/Chatty/internal/config"
	"github.com/Kukaas/Chatty/internal/connection"
	"github.com/Kukaas/Chatty/internal/middleware"
	"github.com/Kukaas/Chatty/internal/model"
	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn 测试用连接句柄
type fakeConn struct {
	userID string
	connID string

	mu   sync.Mutex
	sent []*protocol.Message
}

func (c *fakeConn) SendMessage(m *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Close() error      { return nil }
func (c *fakeConn) GetUserID() string { return c.userID }
func (c *fakeConn) GetConnID() string { return c.connID }

func (c *fakeConn) received() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Message(nil), c.sent...)
}

// fakeStore 内存版消息存储
type fakeStore struct {
	appendErr error
	messages  []model.Message
}

func (s *fakeStore) Append(ctx context.Context, m *model.Message) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *fakeStore) History(ctx context.Context, userA, userB string) ([]model.Message, error) {
	return nil, nil
}

// fakeDeliverer 记录投递调用
type fakeDeliverer struct {
	mu   sync.Mutex
	sent map[string][]*protocol.Message
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{sent: make(map[string][]*protocol.Message)}
}

func (d *fakeDeliverer) SendToUser(userID string, m *protocol.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[userID] = append(d.sent[userID], m)
}

func (d *fakeDeliverer) SendToUserExcept(userID, exceptConnID string, m *protocol.Message) {}

func (d *fakeDeliverer) sentTo(userID string) []*protocol.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*protocol.Message(nil), d.sent[userID]...)
}

func TestDispatchSendMessageDelivers(t *testing.T) {
	deliverer := newFakeDeliverer()
	msgRouter := chat.NewRouter(&fakeStore{}, deliverer)
	conn := &fakeConn{userID: "alice", connID: "conn-1"}

	dispatch(conn, "alice", &protocol.Message{
		Type:        protocol.TypeSendMessage,
		RecipientID: "bob",
		Content:     "你好",
	}, msgRouter, map[string]bool{})

	got := deliverer.sentTo("bob")
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeReceiveMessage, got[0].Type)
	assert.Equal(t, "你好", got[0].Content)
	assert.Empty(t, conn.received())
}

func TestDispatchSendMessageStorageFailureNotifiesSender(t *testing.T) {
	deliverer := newFakeDeliverer()
	msgRouter := chat.NewRouter(&fakeStore{appendErr: errors.New("数据库连接断开")}, deliverer)
	conn := &fakeConn{userID: "alice", connID: "conn-1"}

	dispatch(conn, "alice", &protocol.Message{
		Type:        protocol.TypeSendMessage,
		RecipientID: "bob",
		Content:     "hi",
	}, msgRouter, map[string]bool{})

	// 实时副本已投递，发送方只收到一条错误事件
	require.Len(t, deliverer.sentTo("bob"), 1)
	got := conn.received()
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeError, got[0].Type)
}

func TestDispatchTracksTypingState(t *testing.T) {
	deliverer := newFakeDeliverer()
	msgRouter := chat.NewRouter(&fakeStore{}, deliverer)
	conn := &fakeConn{userID: "alice", connID: "conn-1"}
	typingTo := map[string]bool{}

	dispatch(conn, "alice", &protocol.Message{Type: protocol.TypeTypingStart, RecipientID: "bob"}, msgRouter, typingTo)
	assert.True(t, typingTo["bob"])

	got := deliverer.sentTo("bob")
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeTypingStatus, got[0].Type)
	assert.True(t, got[0].IsTyping)

	dispatch(conn, "alice", &protocol.Message{Type: protocol.TypeTypingStop, RecipientID: "bob"}, msgRouter, typingTo)
	assert.NotContains(t, typingTo, "bob")

	got = deliverer.sentTo("bob")
	require.Len(t, got, 2)
	assert.False(t, got[1].IsTyping)
}

func TestSweepTypingSendsSyntheticStops(t *testing.T) {
	deliverer := newFakeDeliverer()
	msgRouter := chat.NewRouter(&fakeStore{}, deliverer)

	// 连接掉线时仍挂着的输入指示
	sweepTyping("alice", map[string]bool{"bob": true, "carol": true}, msgRouter)

	for _, recipient := range []string{"bob", "carol"} {
		got := deliverer.sentTo(recipient)
		require.Len(t, got, 1, "接收方 %s", recipient)
		assert.Equal(t, protocol.TypeTypingStatus, got[0].Type)
		assert.Equal(t, "alice", got[0].UserID)
		assert.False(t, got[0].IsTyping)
	}
}

// ----- 端到端 identify 流程 -----

func newWSTestServer(t *testing.T, registry connection.Registry, msgRouter *chat.Router) string {
	t.Helper()
	config.GlobalConfig.JWT.Secret = "test-secret"
	config.GlobalConfig.JWT.Expire = 1

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", WebSocketHandler(registry, msgRouter))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestIdentifyWithTokenInMessageRegisters(t *testing.T) {
	registry := connection.NewManager(nil)
	wsURL := newWSTestServer(t, registry, chat.NewRouter(&fakeStore{}, registry))

	token, err := middleware.GenerateToken("alice")
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(&protocol.Message{Type: protocol.TypeIdentify, Token: token}))
	require.Eventually(t, func() bool { return registry.IsOnline("alice") },
		2*time.Second, 10*time.Millisecond, "identify 后用户应进入注册表")

	// 断开后句柄注销，用户离线
	ws.Close()
	require.Eventually(t, func() bool { return !registry.IsOnline("alice") },
		2*time.Second, 10*time.Millisecond, "断开后用户应离线")
}

func TestIdentifyWithTokenInQueryRegisters(t *testing.T) {
	registry := connection.NewManager(nil)
	wsURL := newWSTestServer(t, registry, chat.NewRouter(&fakeStore{}, registry))

	token, err := middleware.GenerateToken("alice")
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer ws.Close()

	// identify 本身不带 token，退到查询参数
	require.NoError(t, ws.WriteJSON(&protocol.Message{Type: protocol.TypeIdentify}))
	require.Eventually(t, func() bool { return registry.IsOnline("alice") },
		2*time.Second, 10*time.Millisecond)
}

func TestFirstMessageMustBeIdentify(t *testing.T) {
	registry := connection.NewManager(nil)
	wsURL := newWSTestServer(t, registry, chat.NewRouter(&fakeStore{}, registry))

	token, err := middleware.GenerateToken("alice")
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer ws.Close()

	// 首条不是 identify，连接被拒并收到错误事件
	require.NoError(t, ws.WriteJSON(&protocol.Message{Type: protocol.TypeSendMessage, RecipientID: "bob", Content: "hi"}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply protocol.Message
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.False(t, registry.IsOnline("alice"))
}

func TestIdentifyRejectsMismatchedUserID(t *testing.T) {
	registry := connection.NewManager(nil)
	wsURL := newWSTestServer(t, registry, chat.NewRouter(&fakeStore{}, registry))

	token, err := middleware.GenerateToken("alice")
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	// 声明的用户 ID 和 token 不一致，身份解析失败
	require.NoError(t, ws.WriteJSON(&protocol.Message{Type: protocol.TypeIdentify, Token: token, UserID: "bob"}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply protocol.Message
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.False(t, registry.IsOnline("alice"))
	assert.False(t, registry.IsOnline("bob"))
}
