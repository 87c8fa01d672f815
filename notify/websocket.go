package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"order-engine-go/order"
)

// WSSubscriber 把一个 websocket 连接包装成订阅者。
// gorilla 的连接不允许并发写，这里用互斥锁串行化。
type WSSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewWSSubscriber 包装连接。writeTimeout <= 0 时默认 5s。
func NewWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *WSSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WSSubscriber{conn: conn, writeTimeout: writeTimeout}
}

func (w *WSSubscriber) Send(update order.Update) error {
	return w.WriteJSON(update)
}

// WriteJSON 串行化写任意 JSON 消息（状态推送之外的连接确认等）。
func (w *WSSubscriber) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return websocket.ErrCloseSent
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteJSON(v)
}

func (w *WSSubscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close()
}
