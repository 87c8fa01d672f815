package dex

import (
	"context"
	"sync"

	"order-engine-go/order"
)

// FixedSource 确定性的测试替身：固定报价、可注入错误和执行结果，
// 让报价选择/平手规则可以在无随机性的前提下验证。
type FixedSource struct {
	Provider   order.Provider
	FixedQuote order.Quote
	QuoteErr   error
	ExecResult order.ExecutionResult
	ExecErr    error

	mu        sync.Mutex
	quoteN    int
	execN     int
	lastOrder *order.Order
}

func (f *FixedSource) Name() order.Provider {
	return f.Provider
}

func (f *FixedSource) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn float64) (order.Quote, error) {
	f.mu.Lock()
	f.quoteN++
	f.mu.Unlock()
	if f.QuoteErr != nil {
		return order.Quote{}, f.QuoteErr
	}
	q := f.FixedQuote
	q.Provider = f.Provider
	return q, nil
}

func (f *FixedSource) ExecuteSwap(ctx context.Context, o *order.Order, q order.Quote) (order.ExecutionResult, error) {
	f.mu.Lock()
	f.execN++
	f.lastOrder = o
	f.mu.Unlock()
	if f.ExecErr != nil {
		return order.ExecutionResult{}, f.ExecErr
	}
	return f.ExecResult, nil
}

// QuoteCalls / ExecCalls 供断言使用。
func (f *FixedSource) QuoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteN
}

func (f *FixedSource) ExecCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execN
}
