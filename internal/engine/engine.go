package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"order-engine-go/dex"
	"order-engine-go/infrastructure/logger"
	"order-engine-go/infrastructure/monitor"
	"order-engine-go/internal/store"
	"order-engine-go/notify"
	"order-engine-go/order"
)

// Engine 订单编排器，独占状态转换：
// 每次转换先过状态机校验，再落库，最后推送通知。
// 编排器只分类错误（瞬时/永久），退避重试由调度器负责。
type Engine struct {
	store   store.Store
	router  *dex.Router
	hub     *notify.Hub
	sm      *order.StateMachine
	logger  *logger.Logger
	monitor *monitor.Monitor

	mu              sync.Mutex
	defaultSlippage float64
	now             func() time.Time
}

// New 创建编排器。monitor 可为 nil。
func New(st store.Store, router *dex.Router, hub *notify.Hub, log *logger.Logger, mon *monitor.Monitor, defaultSlippage float64) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if defaultSlippage <= 0 {
		defaultSlippage = 0.01
	}
	return &Engine{
		store:           st,
		router:          router,
		hub:             hub,
		sm:              order.NewStateMachine(),
		logger:          log,
		monitor:         mon,
		defaultSlippage: defaultSlippage,
		now:             time.Now,
	}
}

// SetDefaultSlippage 动态调整默认滑点（配置热更新用）。
func (e *Engine) SetDefaultSlippage(s float64) {
	if s >= 0 && s < 1 {
		e.mu.Lock()
		e.defaultSlippage = s
		e.mu.Unlock()
	}
}

// Submit 构造 PENDING 订单并落库。不负责调度，入队由上层路由层完成。
func (e *Engine) Submit(ctx context.Context, sub order.Submission) (*order.Order, error) {
	switch sub.Type {
	case order.TypeMarket:
	case order.TypeLimit:
		if sub.TargetPrice <= 0 {
			return nil, &order.ValidationError{Field: "targetPrice", Reason: "required for limit orders"}
		}
	case order.TypeSniper:
		if sub.LaunchTime.IsZero() {
			return nil, &order.ValidationError{Field: "launchTime", Reason: "required for sniper orders"}
		}
	default:
		return nil, order.ErrUnsupportedType
	}
	if sub.AmountIn <= 0 {
		return nil, &order.ValidationError{Field: "amountIn", Reason: "must be > 0"}
	}
	if sub.TokenIn == "" || sub.TokenOut == "" {
		return nil, &order.ValidationError{Field: "tokenIn/tokenOut", Reason: "required"}
	}

	slippage := sub.Slippage
	if slippage <= 0 {
		e.mu.Lock()
		slippage = e.defaultSlippage
		e.mu.Unlock()
	}

	now := e.now().UTC()
	o := &order.Order{
		ID:          uuid.NewString(),
		Type:        sub.Type,
		TokenIn:     sub.TokenIn,
		TokenOut:    sub.TokenOut,
		AmountIn:    sub.AmountIn,
		AmountOut:   sub.AmountOut,
		TargetPrice: sub.TargetPrice,
		LaunchTime:  sub.LaunchTime,
		Slippage:    slippage,
		Status:      order.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      sub.UserID,
	}
	if err := e.store.Save(ctx, o); err != nil {
		return nil, err
	}

	e.publish(o, order.UpdateData{})
	if e.monitor != nil {
		e.monitor.RecordOrderSubmitted(string(o.Type))
	}
	e.logger.LogOrder("submitted", o.ID, map[string]interface{}{
		"type":      string(o.Type),
		"token_in":  o.TokenIn,
		"token_out": o.TokenOut,
		"amount_in": o.AmountIn,
	})
	return o, nil
}

// Get 读取单个订单。
func (e *Engine) Get(ctx context.Context, orderID string) (*order.Order, error) {
	return e.store.Get(ctx, orderID)
}

// Recent 读取最近订单。
func (e *Engine) Recent(ctx context.Context, limit int) ([]*order.Order, error) {
	return e.store.Recent(ctx, limit)
}

// Process 执行一次调度处理。终态订单直接返回 nil（幂等）。
// 返回 TransientError 表示可重试：触发条件未满足、执行瞬时失败、
// 报价全失败或存储读写失败。其它错误表示订单已终态失败或不存在。
func (e *Engine) Process(ctx context.Context, orderID string) error {
	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		return storeFailure(err)
	}
	if o.Terminal() {
		return nil
	}

	// 上次执行在 BUILDING/SUBMITTED 中断（瞬时执行失败后重试），
	// 触发条件此前已满足，直接续跑执行阶段。
	if o.Status == order.StatusBuilding || o.Status == order.StatusSubmitted {
		return e.execute(ctx, o)
	}

	if err := e.transition(ctx, o, order.StatusRouting, order.UpdateData{}); err != nil {
		return err
	}

	switch o.Type {
	case order.TypeMarket:
		return e.execute(ctx, o)

	case order.TypeLimit:
		if o.TargetPrice <= 0 {
			return e.failWith(ctx, o, &order.ValidationError{Field: "targetPrice", Reason: "required for limit orders"})
		}
		best, _, err := e.router.BestQuote(ctx, o.TokenIn, o.TokenOut, o.AmountIn)
		if err != nil {
			return e.quoteFailure(ctx, o, err)
		}
		effectivePrice := best.AmountOut / o.AmountIn
		if effectivePrice < o.TargetPrice {
			e.logger.LogOrder("target_not_reached", o.ID, map[string]interface{}{
				"effective_price": effectivePrice,
				"target_price":    o.TargetPrice,
			})
			return order.NewTransient("Target price not reached yet")
		}
		return e.execute(ctx, o)

	case order.TypeSniper:
		if o.LaunchTime.IsZero() {
			return e.failWith(ctx, o, &order.ValidationError{Field: "launchTime", Reason: "required for sniper orders"})
		}
		if e.now().Before(o.LaunchTime) {
			e.logger.LogOrder("launch_not_reached", o.ID, map[string]interface{}{
				"launch_time": o.LaunchTime,
			})
			return order.NewTransient("Launch time not reached yet")
		}
		return e.execute(ctx, o)

	default:
		return e.failWith(ctx, o, order.ErrUnsupportedType)
	}
}

// FailOrder 把订单置为终态失败（调度器重试用尽时调用）。已终态时幂等返回 nil。
func (e *Engine) FailOrder(ctx context.Context, orderID, reason string) error {
	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		return storeFailure(err)
	}
	if o.Terminal() {
		return nil
	}
	return e.fail(ctx, o, reason)
}

// execute 执行阶段：选最优报价、推进到 SUBMITTED、执行 swap。
func (e *Engine) execute(ctx context.Context, o *order.Order) error {
	best, quotes, err := e.router.BestQuote(ctx, o.TokenIn, o.TokenOut, o.AmountIn)
	if err != nil {
		return e.quoteFailure(ctx, o, err)
	}

	switch o.Status {
	case order.StatusRouting:
		o.DexProvider = best.Provider
		if err := e.transition(ctx, o, order.StatusBuilding, order.UpdateData{
			DexProvider: best.Provider,
			Quotes:      quotes,
		}); err != nil {
			return err
		}
		if err := e.transition(ctx, o, order.StatusSubmitted, order.UpdateData{}); err != nil {
			return err
		}
	case order.StatusBuilding:
		o.DexProvider = best.Provider
		if err := e.transition(ctx, o, order.StatusSubmitted, order.UpdateData{}); err != nil {
			return err
		}
	case order.StatusSubmitted:
		// 重试续跑：同状态重入，报价换新
		o.DexProvider = best.Provider
		if err := e.transition(ctx, o, order.StatusSubmitted, order.UpdateData{}); err != nil {
			return err
		}
	}

	res, err := e.router.ExecuteSwap(ctx, o, best)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return e.failWith(ctx, o, err)
	}
	if e.monitor != nil {
		e.monitor.RecordSwap(string(best.Provider), res.Success)
	}
	if !res.Success {
		reason := res.Err
		if reason == "" {
			reason = "transaction failed due to network congestion"
		}
		e.logger.LogOrder("execution_failed", o.ID, map[string]interface{}{
			"provider": string(best.Provider),
			"reason":   reason,
		})
		return order.NewTransient("%s", reason)
	}

	o.TxHash = res.TxHash
	o.ExecutedPrice = res.ExecutedPrice
	o.AmountOut = res.AmountOut
	if err := e.transition(ctx, o, order.StatusConfirmed, order.UpdateData{
		TxHash:        res.TxHash,
		ExecutedPrice: res.ExecutedPrice,
		AmountOut:     res.AmountOut,
		DexProvider:   o.DexProvider,
	}); err != nil {
		return err
	}

	if e.monitor != nil {
		e.monitor.RecordOrderConfirmed()
	}
	e.logger.LogOrder("confirmed", o.ID, map[string]interface{}{
		"tx_hash":        res.TxHash,
		"executed_price": res.ExecutedPrice,
		"amount_out":     res.AmountOut,
		"provider":       string(o.DexProvider),
	})
	return nil
}

// quoteFailure 全部来源报价失败按瞬时分类；其余路由错误终态失败。
func (e *Engine) quoteFailure(ctx context.Context, o *order.Order, err error) error {
	if errors.Is(err, dex.ErrNoQuotes) {
		e.logger.LogOrder("no_quotes", o.ID, map[string]interface{}{
			"token_in":  o.TokenIn,
			"token_out": o.TokenOut,
		})
		return order.NewTransient("%s", err.Error())
	}
	return e.failWith(ctx, o, err)
}

// storeFailure 存储读写错误按瞬时分类，交给调度器退避重试；ErrNotFound 保持永久。
func storeFailure(err error) error {
	if errors.Is(err, order.ErrNotFound) {
		return err
	}
	return order.NewTransient("%s", err.Error())
}

// failWith 永久失败：订单置为 FAILED 并把原始错误返回给调度器。
func (e *Engine) failWith(ctx context.Context, o *order.Order, cause error) error {
	if err := e.fail(ctx, o, cause.Error()); err != nil {
		return err
	}
	return cause
}

// fail 把订单置为 FAILED 并推送失败通知。
func (e *Engine) fail(ctx context.Context, o *order.Order, reason string) error {
	o.ErrorMessage = reason
	if err := e.transition(ctx, o, order.StatusFailed, order.UpdateData{Error: reason}); err != nil {
		return err
	}
	if e.monitor != nil {
		e.monitor.RecordOrderFailed()
	}
	e.logger.LogOrder("failed", o.ID, map[string]interface{}{
		"reason": reason,
	})
	return nil
}

// transition 校验、落库、推送三步合一。校验失败时订单保持原状态。
func (e *Engine) transition(ctx context.Context, o *order.Order, to order.Status, data order.UpdateData) error {
	if err := e.sm.ValidateTransition(o.Status, to); err != nil {
		return err
	}
	prev := o.Status
	o.Status = to
	o.UpdatedAt = e.now().UTC()
	if err := e.store.Save(ctx, o); err != nil {
		o.Status = prev
		return storeFailure(err)
	}

	e.publish(o, data)
	e.logger.LogOrder("transition", o.ID, map[string]interface{}{
		"from": string(prev),
		"to":   string(to),
	})
	return nil
}

// publish 推送当前状态给订阅者。
func (e *Engine) publish(o *order.Order, data order.UpdateData) {
	if e.hub == nil {
		return
	}
	e.hub.Publish(o.ID, order.Update{
		OrderID:   o.ID,
		Status:    o.Status,
		Timestamp: o.UpdatedAt,
		Data:      data,
	})
}
