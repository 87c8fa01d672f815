package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"order-engine-go/notify"
)

// wsConnectedMessage 升级成功后发给客户端的首条消息。
type wsConnectedMessage struct {
	Type      string `json:"type"`
	OrderID   string `json:"orderId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// handleWebSocket 把连接升级为该订单的状态订阅。
// 连接断开（读失败）时自动注销；发送失败由 hub 负责剔除。
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}

	sub := notify.NewWSSubscriber(conn, 0)
	s.hub.Register(orderID, sub)
	if s.monitor != nil {
		s.monitor.RecordWSConnection()
	}
	s.logger.Debug("websocket connected", zap.String("order_id", orderID))

	if err := sub.WriteJSON(wsConnectedMessage{
		Type:      "connected",
		OrderID:   orderID,
		Message:   "WebSocket connected for order updates",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.hub.Unregister(orderID, sub)
		_ = sub.Close()
		return
	}

	// 读循环只用于探测断开，客户端消息忽略内容
	go func() {
		defer func() {
			s.hub.Unregister(orderID, sub)
			_ = sub.Close()
			if s.monitor != nil {
				s.monitor.RecordWSDisconnect()
			}
			s.logger.Debug("websocket disconnected", zap.String("order_id", orderID))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
