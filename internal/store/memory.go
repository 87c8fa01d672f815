package store

import (
	"context"
	"sort"
	"sync"

	"order-engine-go/order"
)

// MemoryStore 进程内存储，开发模式（-memstore）和测试使用。
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]order.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]order.Order)}
}

func (s *MemoryStore) Save(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := o
	return &cp, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	all := make([]*order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := o
		all = append(all, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
