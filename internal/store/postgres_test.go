package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"order-engine-go/order"
)

func TestUpsertOverwritesOutcomeColumns(t *testing.T) {
	// 提交之后还会变化的列都必须进冲突更新列表，否则终态结果写不进库
	for _, col := range []string{
		"status", "updated_at", "amount_out", "tx_hash",
		"executed_price", "error_message", "dex_provider",
	} {
		if !strings.Contains(upsertOrderSQL, col+" = EXCLUDED."+col) {
			t.Fatalf("conflict update list missing %s", col)
		}
	}
}

func TestPostgresSavePersistsFill(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(dsn, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	o := &order.Order{
		ID:        uuid.NewString(),
		Type:      order.TypeMarket,
		TokenIn:   "SOL",
		TokenOut:  "USDC",
		AmountIn:  1,
		Slippage:  0.01,
		Status:    order.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	o.Status = order.StatusConfirmed
	o.AmountOut = 99.5
	o.TxHash = "ab12"
	o.ExecutedPrice = 99.5
	o.DexProvider = order.ProviderRaydium
	o.UpdatedAt = now.Add(time.Second)
	if err := s.Save(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != order.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	if got.AmountOut != 99.5 {
		t.Fatalf("amount_out = %v, want 99.5", got.AmountOut)
	}
	if got.TxHash != "ab12" || got.DexProvider != order.ProviderRaydium {
		t.Fatalf("outcome fields not persisted: %+v", got)
	}
}
