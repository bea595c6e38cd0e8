package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/logger"
)

// Message types exchanged on /ws.
const (
	MessageAsk    = "ask"
	MessagePing   = "ping"
	MessagePong   = "pong"
	MessageStatus = "status"
	MessageAnswer = "answer"
	MessageError  = "error"
)

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msgType, content string, data any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := w.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		logger.Warn("Error sending message: %v", err)
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Error reading message: %v", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			ws.send(MessageError, "invalid message", nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	switch msg.Type {
	case MessagePing:
		ws.send(MessagePong, "", nil)

	case MessageAsk, "":
		ws.send(MessageStatus, "正在查询知识库...", nil)

		reply, err := s.assistant.Ask(ctx, msg.Content)
		if err != nil {
			if errors.Is(err, types.ErrEmptyContent) {
				ws.send(MessageError, "问题不能为空", nil)
				return
			}
			logger.Error("assistant: %v", err)
			ws.send(MessageError, "抱歉，系统出现错误："+err.Error(), nil)
			return
		}

		ws.send(MessageAnswer, reply.Spoken, reply)

	default:
		ws.send(MessageError, "unknown message type: "+msg.Type, nil)
	}
}
