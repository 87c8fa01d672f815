package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"order-engine-go/order"
)

// PostgresStore 基于 lib/pq 的订单存储。
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore 连接数据库并初始化 schema。
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &PostgresStore{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			type VARCHAR(20) NOT NULL,
			token_in VARCHAR(100) NOT NULL,
			token_out VARCHAR(100) NOT NULL,
			amount_in DOUBLE PRECISION NOT NULL,
			amount_out DOUBLE PRECISION,
			target_price DOUBLE PRECISION,
			launch_time TIMESTAMPTZ,
			slippage DOUBLE PRECISION NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			user_id VARCHAR(100),
			tx_hash VARCHAR(200),
			executed_price DOUBLE PRECISION,
			error_message TEXT,
			dex_provider VARCHAR(20)
		)`)
	if err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}
	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
	} {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	s.logger.Info("order store initialized")
	return nil
}

// upsertOrderSQL 冲突时覆盖提交后会变化的列。
// amount_out 在 CONFIRMED 时才写入成交量，必须在更新列表里。
const upsertOrderSQL = `
	INSERT INTO orders (
		id, type, token_in, token_out, amount_in, amount_out, target_price,
		launch_time, slippage, status, created_at, updated_at, user_id,
		tx_hash, executed_price, error_message, dex_provider
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		updated_at = EXCLUDED.updated_at,
		amount_out = EXCLUDED.amount_out,
		tx_hash = EXCLUDED.tx_hash,
		executed_price = EXCLUDED.executed_price,
		error_message = EXCLUDED.error_message,
		dex_provider = EXCLUDED.dex_provider`

// Save 按 id upsert。
func (s *PostgresStore) Save(ctx context.Context, o *order.Order) error {
	_, err := s.db.ExecContext(ctx, upsertOrderSQL,
		o.ID, o.Type, o.TokenIn, o.TokenOut, o.AmountIn,
		nullFloat(o.AmountOut), nullFloat(o.TargetPrice), nullTime(o.LaunchTime),
		o.Slippage, o.Status, o.CreatedAt, o.UpdatedAt, nullString(o.UserID),
		nullString(o.TxHash), nullFloat(o.ExecutedPrice), nullString(o.ErrorMessage),
		nullString(string(o.DexProvider)))
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, token_in, token_out, amount_in, amount_out, target_price,
		       launch_time, slippage, status, created_at, updated_at, user_id,
		       tx_hash, executed_price, error_message, dex_provider
		FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, token_in, token_out, amount_in, amount_out, target_price,
		       launch_time, slippage, status, created_at, updated_at, user_id,
		       tx_hash, executed_price, error_message, dex_provider
		FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*order.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	var amountOut, targetPrice, executedPrice sql.NullFloat64
	var launchTime sql.NullTime
	var userID, txHash, errMsg, provider sql.NullString

	err := row.Scan(&o.ID, &o.Type, &o.TokenIn, &o.TokenOut, &o.AmountIn,
		&amountOut, &targetPrice, &launchTime, &o.Slippage, &o.Status,
		&o.CreatedAt, &o.UpdatedAt, &userID, &txHash, &executedPrice,
		&errMsg, &provider)
	if err != nil {
		return nil, err
	}

	o.AmountOut = amountOut.Float64
	o.TargetPrice = targetPrice.Float64
	o.ExecutedPrice = executedPrice.Float64
	if launchTime.Valid {
		o.LaunchTime = launchTime.Time
	}
	o.UserID = userID.String
	o.TxHash = txHash.String
	o.ErrorMessage = errMsg.String
	o.DexProvider = order.Provider(provider.String)
	return &o, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
