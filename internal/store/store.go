package store

import (
	"context"

	"order-engine-go/order"
)

// Store 订单持久层。Save 为按 id upsert；Get 不存在时返回 order.ErrNotFound；
// Recent 按 createdAt 倒序返回最近的订单。
type Store interface {
	Save(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id string) (*order.Order, error)
	Recent(ctx context.Context, limit int) ([]*order.Order, error)
	Close() error
}
