package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-engine-go/order"
)

func TestMemoryStoreSaveGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	o := &order.Order{ID: "o1", Type: order.TypeMarket, Status: order.StatusPending, AmountIn: 100, CreatedAt: time.Now()}
	if err := s.Save(ctx, o); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != order.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	// 取出的是副本，改它不影响库里的记录
	got.Status = order.StatusFailed
	again, _ := s.Get(ctx, "o1")
	if again.Status != order.StatusPending {
		t.Fatalf("store must hand out copies")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	o := &order.Order{ID: "o1", Status: order.StatusPending, CreatedAt: time.Now()}
	_ = s.Save(ctx, o)
	o.Status = order.StatusConfirmed
	_ = s.Save(ctx, o)

	got, _ := s.Get(ctx, "o1")
	if got.Status != order.StatusConfirmed {
		t.Fatalf("expected upsert to overwrite, got %s", got.Status)
	}
}

func TestMemoryStoreRecentOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c", "d"} {
		_ = s.Save(ctx, &order.Order{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "d" || recent[1].ID != "c" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
}
