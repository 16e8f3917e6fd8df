package connection

import (
	"log"
	"time"

	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketConnection 实现 WebSocket 连接句柄
type WebSocketConnection struct {
	conn   *websocket.Conn
	userID string
	connID string
	send   chan *protocol.Message
	done   chan struct{}
}

// NewWebSocketConnection 创建新的 WebSocket 连接句柄
func NewWebSocketConnection(conn *websocket.Conn, userID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:   conn,
		userID: userID,
		connID: uuid.New().String(),
		send:   make(chan *protocol.Message, 256),
		done:   make(chan struct{}),
	}
}

// SendMessage 发送消息到 WebSocket 客户端
// 实时投递是 fire-and-forget：不排队等待，缓冲区满直接报错
func (c *WebSocketConnection) SendMessage(message *protocol.Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrConnectionBufferFull
	}
}

// Close 关闭 WebSocket 连接
func (c *WebSocketConnection) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}

	return c.conn.Close()
}

// GetUserID 获取用户 ID
func (c *WebSocketConnection) GetUserID() string {
	return c.userID
}

// GetConnID 获取连接句柄 ID
func (c *WebSocketConnection) GetConnID() string {
	return c.connID
}

// StartReading 开始从WebSocket读取消息，阻塞直到连接关闭
func (c *WebSocketConnection) StartReading(msgHandler func(*protocol.Message)) {
	defer c.Close()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		var message protocol.Message
		err := c.conn.ReadJSON(&message)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("用户 %s 的 WebSocket读取错误: %v", c.userID, err)
			}
			break
		}

		// 发送者身份以连接为准，客户端字段不可信
		message.SenderID = c.userID
		if message.Timestamp == 0 {
			message.Timestamp = time.Now().Unix()
		}

		// ping 在连接层直接回 pong，不进入路由
		if message.Type == protocol.TypePing {
			pong := &protocol.Message{
				Type:      protocol.TypePong,
				Timestamp: time.Now().Unix(),
			}
			if err := c.SendMessage(pong); err != nil {
				log.Printf("用户 %s 回复pong失败: %v", c.userID, err)
			}
			continue
		}

		msgHandler(&message)
	}
}

// StartWriting 开始向WebSocket写入消息
func (c *WebSocketConnection) StartWriting() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteJSON(message); err != nil {
				log.Printf("用户 %s 的 WebSocket写入失败: %v", c.userID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
