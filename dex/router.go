package dex

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-engine-go/infrastructure/monitor"
	"order-engine-go/order"
)

// Source 单个流动性来源。Quote/ExecuteSwap 必须支持多来源并发调用，
// 且各自独立失败。
type Source interface {
	Name() order.Provider
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn float64) (order.Quote, error)
	ExecuteSwap(ctx context.Context, o *order.Order, q order.Quote) (order.ExecutionResult, error)
}

// ErrNoQuotes 所有来源报价都失败。
var ErrNoQuotes = errors.New("no quotes available from any source")

// Router 聚合多个来源：并发拉取报价，按输出量选择最优来源。
// 来源顺序固定，输出量相同时保留先配置的来源（确定性平手规则）。
type Router struct {
	sources []Source
	logger  *zap.Logger
	monitor *monitor.Monitor
}

// NewRouter 创建路由器。sources 的顺序即平手时的优先顺序。
func NewRouter(sources []Source, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{sources: sources, logger: logger}
}

// SetMonitor 挂接指标收集（可选）。
func (r *Router) SetMonitor(mon *monitor.Monitor) {
	r.monitor = mon
}

// Sources 返回来源名称列表（按配置顺序）。
func (r *Router) Sources() []order.Provider {
	names := make([]order.Provider, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return names
}

// Quotes 并发请求所有来源的报价，结果保持来源配置顺序。
// 单个来源失败只记日志；全部失败返回 ErrNoQuotes。
func (r *Router) Quotes(ctx context.Context, tokenIn, tokenOut string, amountIn float64) ([]order.Quote, error) {
	results := make([]*order.Quote, len(r.sources))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		i, src := i, src
		group.Go(func() error {
			start := time.Now()
			q, err := src.Quote(groupCtx, tokenIn, tokenOut, amountIn)
			if r.monitor != nil {
				r.monitor.RecordQuoteLatency(string(src.Name()), time.Since(start).Seconds())
			}
			if err != nil {
				if r.monitor != nil {
					r.monitor.RecordQuoteError(string(src.Name()))
				}
				r.logger.Warn("quote failed",
					zap.String("provider", string(src.Name())),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				return nil // 来源独立失败，不中断其它报价
			}
			mu.Lock()
			results[i] = &q
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	quotes := make([]order.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	if len(quotes) == 0 {
		return nil, ErrNoQuotes
	}
	return quotes, nil
}

// BestQuote 返回输出量最大的报价及全部报价。
// 严格大于才替换，保证平手时选中先出现的来源。
func (r *Router) BestQuote(ctx context.Context, tokenIn, tokenOut string, amountIn float64) (order.Quote, []order.Quote, error) {
	quotes, err := r.Quotes(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return order.Quote{}, nil, err
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.AmountOut > best.AmountOut {
			best = q
		}
	}

	r.logger.Debug("dex routing",
		zap.Int("quotes", len(quotes)),
		zap.String("best", string(best.Provider)),
		zap.Float64("amount_out", best.AmountOut))

	return best, quotes, nil
}

// ExecuteSwap 在指定来源上执行 swap。
func (r *Router) ExecuteSwap(ctx context.Context, o *order.Order, q order.Quote) (order.ExecutionResult, error) {
	for _, src := range r.sources {
		if src.Name() == q.Provider {
			return src.ExecuteSwap(ctx, o, q)
		}
	}
	return order.ExecutionResult{}, errors.New("unknown provider: " + string(q.Provider))
}
