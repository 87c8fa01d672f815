package notify

import (
	"sync"

	"go.uber.org/zap"

	"order-engine-go/infrastructure/monitor"
	"order-engine-go/order"
)

// Subscriber 单个订阅端。Send 失败会导致该订阅者被移除。
type Subscriber interface {
	Send(update order.Update) error
	Close() error
}

// Hub 按订单 id 维护订阅者集合并做扇出推送。
// 至多一次、尽力而为：发布后加入的订阅者收不到历史消息。
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[Subscriber]struct{}
	logger  *zap.Logger
	monitor *monitor.Monitor
}

// NewHub 创建扇出中心。
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[Subscriber]struct{}),
		logger: logger,
	}
}

// SetMonitor 挂接指标收集（可选）。
func (h *Hub) SetMonitor(mon *monitor.Monitor) {
	h.monitor = mon
}

// Register 注册订阅者到指定订单。
func (h *Hub) Register(orderID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[orderID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.subs[orderID] = set
	}
	set[sub] = struct{}{}
	h.logger.Debug("subscriber registered", zap.String("order_id", orderID), zap.Int("count", len(set)))
}

// Unregister 移除订阅者；订单的最后一个订阅者移除后清掉整个条目。
func (h *Hub) Unregister(orderID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(orderID, sub)
}

func (h *Hub) removeLocked(orderID string, sub Subscriber) {
	set, ok := h.subs[orderID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, orderID)
	}
}

// Publish 推送状态变更给该订单的全部订阅者。
// 单个订阅者发送失败不阻塞其它订阅者，失败者被移除并关闭。
// 没有订阅者时静默返回。
func (h *Hub) Publish(orderID string, update order.Update) {
	h.mu.RLock()
	set, ok := h.subs[orderID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]Subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var failed []Subscriber
	for _, sub := range targets {
		if err := sub.Send(update); err != nil {
			h.logger.Warn("subscriber send failed, dropping",
				zap.String("order_id", orderID),
				zap.String("status", string(update.Status)),
				zap.Error(err))
			failed = append(failed, sub)
			if h.monitor != nil {
				h.monitor.RecordUpdateDropped()
			}
		} else if h.monitor != nil {
			h.monitor.RecordUpdateDelivered()
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, sub := range failed {
			h.removeLocked(orderID, sub)
		}
		h.mu.Unlock()
		for _, sub := range failed {
			_ = sub.Close()
		}
	}

	h.logger.Debug("update published",
		zap.String("order_id", orderID),
		zap.String("status", string(update.Status)),
		zap.Int("delivered", len(targets)-len(failed)))
}

// SubscriberCount 指定订单当前的订阅者数量。
func (h *Hub) SubscriberCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}

// TotalSubscribers 全部订单的订阅者总数。
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return total
}

// CloseAll 关闭并清空所有订阅者（进程退出时调用）。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[Subscriber]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for sub := range set {
			_ = sub.Close()
		}
	}
}
