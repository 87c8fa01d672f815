package dex

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-engine-go/order"
)

// Market 模拟市场基准价，多个 SimSource 共享同一实例。
// 基准价按随机游走漂移，模拟真实行情变化。
type Market struct {
	mu        sync.Mutex
	basePrice float64
	rng       *rand.Rand
}

// NewMarket 创建模拟市场，basePrice 为初始基准价。
func NewMarket(basePrice float64, seed int64) *Market {
	if basePrice <= 0 {
		basePrice = 100
	}
	return &Market{
		basePrice: basePrice,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// BasePrice 当前基准价。
func (m *Market) BasePrice() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.basePrice
}

// Drift 随机游走一步（±2%）。
func (m *Market) Drift() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	change := (m.rng.Float64() - 0.5) * 0.04
	m.basePrice *= 1 + change
	return m.basePrice
}

// StartDrift 周期性漂移基准价，直到 ctx 取消。
func (m *Market) StartDrift(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p := m.Drift()
				if logger != nil {
					logger.Debug("market drift", zap.Float64("base_price", p))
				}
			}
		}
	}()
}

func (m *Market) float64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

// SimParams 单个模拟来源的报价参数。
type SimParams struct {
	QuoteLatency    time.Duration // 报价基础延迟
	QuoteJitter     time.Duration // 报价延迟抖动
	VarianceBase    float64       // 价格方差下界（如 0.98）
	VarianceRange   float64       // 价格方差区间（如 0.04）
	Fee             float64       // 手续费比例
	ImpactThreshold float64       // 大单冲击阈值（amountIn）
	ImpactBase      float64       // 大单冲击基础值
	ImpactRange     float64       // 冲击随机区间
	SmallImpact     float64       // 小单冲击上界
	ExecLatency     time.Duration // swap 执行基础延迟
	ExecJitter      time.Duration // swap 执行延迟抖动
	FailureRate     float64       // 执行失败概率（模拟网络拥堵）
}

// RaydiumParams 与 MeteoraParams 对应两个模拟交易场的默认参数。
func RaydiumParams() SimParams {
	return SimParams{
		QuoteLatency:    150 * time.Millisecond,
		QuoteJitter:     100 * time.Millisecond,
		VarianceBase:    0.98,
		VarianceRange:   0.04,
		Fee:             0.003,
		ImpactThreshold: 1000,
		ImpactBase:      0.001,
		ImpactRange:     0.003,
		SmallImpact:     0.001,
		ExecLatency:     2 * time.Second,
		ExecJitter:      time.Second,
		FailureRate:     0.05,
	}
}

func MeteoraParams() SimParams {
	return SimParams{
		QuoteLatency:    180 * time.Millisecond,
		QuoteJitter:     120 * time.Millisecond,
		VarianceBase:    0.97,
		VarianceRange:   0.05,
		Fee:             0.002,
		ImpactThreshold: 1000,
		ImpactBase:      0.0008,
		ImpactRange:     0.002,
		SmallImpact:     0.0008,
		ExecLatency:     2 * time.Second,
		ExecJitter:      time.Second,
		FailureRate:     0.05,
	}
}

// SimSource 随机化的流动性来源替身，报价/执行带模拟延迟和随机扰动。
type SimSource struct {
	name   order.Provider
	params SimParams
	market *Market
}

// NewSimSource 创建模拟来源。
func NewSimSource(name order.Provider, params SimParams, market *Market) *SimSource {
	return &SimSource{name: name, params: params, market: market}
}

func (s *SimSource) Name() order.Provider {
	return s.name
}

// Quote 生成一份即时报价。AmountOut 已扣除手续费与价格冲击。
func (s *SimSource) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn float64) (order.Quote, error) {
	delay := s.params.QuoteLatency + time.Duration(s.market.float64()*float64(s.params.QuoteJitter))
	if err := sleep(ctx, delay); err != nil {
		return order.Quote{}, err
	}

	variance := s.params.VarianceBase + s.market.float64()*s.params.VarianceRange
	price := s.market.BasePrice() * variance

	var impact float64
	if amountIn > s.params.ImpactThreshold {
		impact = s.params.ImpactBase + s.market.float64()*s.params.ImpactRange
	} else {
		impact = s.market.float64() * s.params.SmallImpact
	}

	return order.Quote{
		Provider:    s.name,
		Price:       price,
		Fee:         s.params.Fee,
		AmountOut:   amountIn * price * (1 - s.params.Fee - impact),
		PriceImpact: impact,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// ExecuteSwap 模拟链上执行：带延迟、概率性失败、滑点。
func (s *SimSource) ExecuteSwap(ctx context.Context, o *order.Order, q order.Quote) (order.ExecutionResult, error) {
	delay := s.params.ExecLatency + time.Duration(s.market.float64()*float64(s.params.ExecJitter))
	if err := sleep(ctx, delay); err != nil {
		return order.ExecutionResult{}, err
	}

	if s.market.float64() < s.params.FailureRate {
		return order.ExecutionResult{
			Success: false,
			Err:     "transaction failed due to network congestion",
		}, nil
	}

	slippage := s.market.float64() * o.Slippage * 0.8
	finalAmount := q.AmountOut * (1 - slippage)

	return order.ExecutionResult{
		Success:       true,
		TxHash:        s.generateTxHash(),
		ExecutedPrice: finalAmount / o.AmountIn,
		AmountOut:     finalAmount,
	}, nil
}

const hexChars = "0123456789abcdef"

func (s *SimSource) generateTxHash() string {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = hexChars[int(s.market.float64()*16)%16]
	}
	return string(buf)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
