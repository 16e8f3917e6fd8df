package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Kukaas/Chatty/internal/apperr"
	"github.com/Kukaas/Chatty/internal/chat"
	"github.com/Kukaas/Chatty/internal/connection"
	"github.com/Kukaas/Chatty/internal/middleware"
	"github.com/Kukaas/Chatty/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 等待 identify 的时间上限
const identifyTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源，生产环境应收紧
	},
}

// WebSocketHandler 处理实时通道连接
//
// 升级后连接先不进入注册表，客户端必须先发 identify 宣告身份，
// 身份以 JWT 校验为准（token 在查询参数或 identify 消息里）。
// 身份解析失败的连接直接关闭，不被注册表追踪。
func WebSocketHandler(registry connection.Registry, msgRouter *chat.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket 升级失败: %v", err)
			return
		}

		userID, err := awaitIdentify(ws, c.Query("token"))
		if err != nil {
			log.Printf("WebSocket 身份宣告失败: %v", err)
			_ = ws.WriteJSON(&protocol.Message{
				Type:    protocol.TypeError,
				Content: apperr.ErrUnauthorized.Error(),
			})
			ws.Close()
			return
		}

		conn := connection.NewWebSocketConnection(ws, userID)
		handleIdentifiedConnection(conn, userID, registry, msgRouter)
	}
}

// awaitIdentify 等待客户端的 identify 消息并解析身份
func awaitIdentify(ws *websocket.Conn, queryToken string) (string, error) {
	ws.SetReadDeadline(time.Now().Add(identifyTimeout))
	defer ws.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := ws.ReadJSON(&msg); err != nil {
		return "", err
	}
	if msg.Type != protocol.TypeIdentify {
		return "", errors.New("首条消息必须是 identify")
	}

	token := msg.Token
	if token == "" {
		token = queryToken
	}
	if token == "" {
		return "", apperr.ErrUnauthorized
	}

	userID, err := middleware.ValidateToken(token)
	if err != nil {
		return "", err
	}

	// identify 声明的用户 ID 必须和 token 一致
	if msg.UserID != "" && msg.UserID != userID {
		return "", apperr.ErrUnauthorized
	}

	return userID, nil
}

// handleIdentifiedConnection 注册连接并驱动读写循环，阻塞到连接关闭
func handleIdentifiedConnection(conn *connection.WebSocketConnection, userID string, registry connection.Registry, msgRouter *chat.Router) {
	if err := registry.Register(userID, conn); err != nil {
		log.Printf("注册用户 %s 的连接失败: %v", userID, err)
		conn.Close()
		return
	}
	defer registry.Unregister(userID, conn.GetConnID())

	// 该连接上仍处于"正在输入"状态的接收方
	// 读循环单线程访问，不需要锁
	typingTo := make(map[string]bool)

	go conn.StartWriting()

	conn.StartReading(func(msg *protocol.Message) {
		dispatch(conn, userID, msg, msgRouter, typingTo)
	})

	sweepTyping(userID, typingTo, msgRouter)

	log.Printf("用户 %s 的连接 %s 已关闭", userID, conn.GetConnID())
}

// sweepTyping 连接掉线时对方的输入指示不能悬挂，补发合成 stop
func sweepTyping(userID string, typingTo map[string]bool, msgRouter *chat.Router) {
	for recipientID := range typingTo {
		msgRouter.ForwardTyping(userID, recipientID, false)
	}
}

// dispatch 处理单条客户端事件
func dispatch(conn connection.Connection, userID string, msg *protocol.Message, msgRouter *chat.Router, typingTo map[string]bool) {
	switch msg.Type {
	case protocol.TypeSendMessage:
		_, err := msgRouter.Route(context.Background(), userID, msg.RecipientID, msg.Content, conn.GetConnID())
		if err != nil {
			// 落库失败时实时副本已投递，只通知发送方"未保存"
			// 其他错误同样回给发送方，接收方离线不属于错误
			sendError(conn, err)
		}

	case protocol.TypeTypingStart:
		typingTo[msg.RecipientID] = true
		msgRouter.ForwardTyping(userID, msg.RecipientID, true)

	case protocol.TypeTypingStop:
		delete(typingTo, msg.RecipientID)
		msgRouter.ForwardTyping(userID, msg.RecipientID, false)

	case protocol.TypeIdentify:
		// 已完成身份宣告，重复 identify 忽略

	default:
		log.Printf("用户 %s 发送了未知类型的消息: %s", userID, msg.Type)
	}
}

// sendError 把错误事件回发给来源连接
func sendError(conn connection.Connection, err error) {
	if sendErr := conn.SendMessage(&protocol.Message{
		Type:      protocol.TypeError,
		Content:   err.Error(),
		Timestamp: time.Now().Unix(),
	}); sendErr != nil {
		log.Printf("回发错误消息失败: %v", sendErr)
	}
}
