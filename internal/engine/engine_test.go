package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-engine-go/dex"
	"order-engine-go/internal/store"
	"order-engine-go/notify"
	"order-engine-go/order"
)

// recSub 记录收到的全部状态推送。
type recSub struct {
	mu      sync.Mutex
	updates []order.Update
}

func (r *recSub) Send(u order.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recSub) Close() error { return nil }

func (r *recSub) statuses() []order.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Status, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Status
	}
	return out
}

type env struct {
	store *store.MemoryStore
	hub   *notify.Hub
	eng   *Engine
}

func newEnv(sources ...dex.Source) *env {
	st := store.NewMemoryStore()
	hub := notify.NewHub(nil)
	router := dex.NewRouter(sources, nil)
	return &env{
		store: st,
		hub:   hub,
		eng:   New(st, router, hub, nil, nil, 0.01),
	}
}

func goodSource(provider order.Provider, amountOut float64) *dex.FixedSource {
	return &dex.FixedSource{
		Provider:   provider,
		FixedQuote: order.Quote{Price: amountOut, AmountOut: amountOut, Fee: 0.003},
		ExecResult: order.ExecutionResult{
			Success:       true,
			TxHash:        "ab12",
			ExecutedPrice: amountOut,
			AmountOut:     amountOut,
		},
	}
}

func TestMarketOrderHappyPath(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 99))
	ctx := context.Background()

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, o.Status)
	require.NotEmpty(t, o.ID)

	sub := &recSub{}
	e.hub.Register(o.ID, sub)

	require.NoError(t, e.eng.Process(ctx, o.ID))

	got, err := e.store.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusConfirmed, got.Status)
	require.Equal(t, "ab12", got.TxHash)
	require.Equal(t, order.ProviderRaydium, got.DexProvider)
	require.Equal(t, 99.0, got.AmountOut)

	require.Equal(t, []order.Status{
		order.StatusRouting,
		order.StatusBuilding,
		order.StatusSubmitted,
		order.StatusConfirmed,
	}, sub.statuses())
}

func TestBestQuoteTieKeepsFirstSource(t *testing.T) {
	first := goodSource(order.ProviderRaydium, 100)
	second := goodSource(order.ProviderMeteora, 100)
	e := newEnv(first, second)
	ctx := context.Background()

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, err)
	require.NoError(t, e.eng.Process(ctx, o.ID))

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.ProviderRaydium, got.DexProvider)
	require.Equal(t, 1, first.ExecCalls())
	require.Equal(t, 0, second.ExecCalls())
}

func TestLimitOrderBelowTargetIsTransient(t *testing.T) {
	// 有效单价 104，目标价 105：不触发
	e := newEnv(goodSource(order.ProviderRaydium, 104))
	ctx := context.Background()

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeLimit, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1, TargetPrice: 105,
	})
	require.NoError(t, err)

	err = e.eng.Process(ctx, o.ID)
	require.Error(t, err)
	require.True(t, order.IsTransient(err))
	require.EqualError(t, err, "Target price not reached yet")

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusRouting, got.Status, "must not pass routing")
}

func TestLimitOrderTriggersAtTarget(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 105))
	ctx := context.Background()

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeLimit, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1, TargetPrice: 105,
	})
	require.NoError(t, err)
	require.NoError(t, e.eng.Process(ctx, o.ID))

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
}

func TestLimitRetryReentersRouting(t *testing.T) {
	src := goodSource(order.ProviderRaydium, 100)
	e := newEnv(src)
	ctx := context.Background()

	o, _ := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeLimit, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1, TargetPrice: 105,
	})

	require.True(t, order.IsTransient(e.eng.Process(ctx, o.ID)))
	require.True(t, order.IsTransient(e.eng.Process(ctx, o.ID)), "routing re-entry must be legal")

	// 价格到位后触发
	src.FixedQuote.AmountOut = 106
	src.ExecResult.AmountOut = 106
	require.NoError(t, e.eng.Process(ctx, o.ID))
	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
}

func TestSniperOrderBeforeLaunchIsTransient(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeSniper, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
		LaunchTime: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	err = e.eng.Process(ctx, o.ID)
	require.True(t, order.IsTransient(err))
	require.EqualError(t, err, "Launch time not reached yet")

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusRouting, got.Status)
}

func TestSniperOrderExecutesAfterLaunch(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	launch := time.Now().Add(time.Hour)
	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeSniper, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1, LaunchTime: launch,
	})
	require.NoError(t, err)

	// 把编排器的时钟拨到发射时间之后
	e.eng.now = func() time.Time { return launch.Add(time.Second) }
	require.NoError(t, e.eng.Process(ctx, o.ID))

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
}

func TestExecutionFailureIsTransientAndResumes(t *testing.T) {
	src := goodSource(order.ProviderRaydium, 100)
	src.ExecResult = order.ExecutionResult{Success: false, Err: "transaction failed due to network congestion"}
	e := newEnv(src)
	ctx := context.Background()

	o, _ := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})

	err := e.eng.Process(ctx, o.ID)
	require.True(t, order.IsTransient(err))
	require.EqualError(t, err, "transaction failed due to network congestion")

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusSubmitted, got.Status)

	// 重试续跑：从 SUBMITTED 直接重发执行
	src.ExecResult = order.ExecutionResult{Success: true, TxHash: "cd34", ExecutedPrice: 100, AmountOut: 100}
	require.NoError(t, e.eng.Process(ctx, o.ID))
	got, _ = e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
	require.Equal(t, "cd34", got.TxHash)
}

func TestAllQuoteSourcesFailedIsTransient(t *testing.T) {
	bad := &dex.FixedSource{Provider: order.ProviderRaydium, QuoteErr: errors.New("venue down")}
	e := newEnv(bad)
	ctx := context.Background()

	o, _ := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})

	// 两个场地同时抖动不终结订单，留给调度器退避重试
	err := e.eng.Process(ctx, o.ID)
	require.True(t, order.IsTransient(err))
	require.EqualError(t, err, dex.ErrNoQuotes.Error())

	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusRouting, got.Status)

	// 来源恢复后重试成功
	bad.QuoteErr = nil
	bad.FixedQuote = order.Quote{Price: 100, AmountOut: 100, Fee: 0.003}
	bad.ExecResult = order.ExecutionResult{Success: true, TxHash: "ef56", ExecutedPrice: 100, AmountOut: 100}
	require.NoError(t, e.eng.Process(ctx, o.ID))
	got, _ = e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
}

func TestProcessUnknownOrder(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	err := e.eng.Process(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestProcessTerminalOrderIsNoop(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, _ := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, e.eng.Process(ctx, o.ID))

	sub := &recSub{}
	e.hub.Register(o.ID, sub)
	require.NoError(t, e.eng.Process(ctx, o.ID))
	require.Empty(t, sub.statuses(), "terminal order must not emit further updates")
}

func TestFailOrder(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, _ := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})

	require.NoError(t, e.eng.FailOrder(ctx, o.ID, "maximum retry attempts exceeded"))
	got, _ := e.store.Get(ctx, o.ID)
	require.Equal(t, order.StatusFailed, got.Status)
	require.Equal(t, "maximum retry attempts exceeded", got.ErrorMessage)

	// 终态后幂等
	require.NoError(t, e.eng.FailOrder(ctx, o.ID, "other reason"))
	got, _ = e.store.Get(ctx, o.ID)
	require.Equal(t, "maximum retry attempts exceeded", got.ErrorMessage)
}

func TestSubmitValidation(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	cases := []struct {
		name string
		sub  order.Submission
	}{
		{"limit without target price", order.Submission{Type: order.TypeLimit, TokenIn: "a", TokenOut: "b", AmountIn: 1}},
		{"sniper without launch time", order.Submission{Type: order.TypeSniper, TokenIn: "a", TokenOut: "b", AmountIn: 1}},
		{"zero amount", order.Submission{Type: order.TypeMarket, TokenIn: "a", TokenOut: "b"}},
		{"missing tokens", order.Submission{Type: order.TypeMarket, AmountIn: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.eng.Submit(ctx, tc.sub)
			var ve *order.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}

	_, err := e.eng.Submit(ctx, order.Submission{Type: "twap", TokenIn: "a", TokenOut: "b", AmountIn: 1})
	require.ErrorIs(t, err, order.ErrUnsupportedType)
}

func TestSubmitAppliesDefaultSlippage(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 0.01, o.Slippage)

	o2, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1, Slippage: 0.05,
	})
	require.NoError(t, err)
	require.Equal(t, 0.05, o2.Slippage)
}

// flakyStore 包装内存存储，可注入读写错误。
type flakyStore struct {
	*store.MemoryStore
	getErr  error
	saveErr error
}

func (f *flakyStore) Get(ctx context.Context, id string) (*order.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryStore.Get(ctx, id)
}

func (f *flakyStore) Save(ctx context.Context, o *order.Order) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, o)
}

func newFlakyEnv(sources ...dex.Source) (*flakyStore, *Engine) {
	fs := &flakyStore{MemoryStore: store.NewMemoryStore()}
	router := dex.NewRouter(sources, nil)
	return fs, New(fs, router, notify.NewHub(nil), nil, nil, 0.01)
}

func TestStoreReadFailureIsTransient(t *testing.T) {
	fs, eng := newFlakyEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, err := eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, err)

	// 存储抖动期间订单不能被打成终态，留给调度器重试
	fs.getErr = errors.New("connection refused")
	err = eng.Process(ctx, o.ID)
	require.True(t, order.IsTransient(err))

	fs.getErr = nil
	require.NoError(t, eng.Process(ctx, o.ID))
	got, _ := fs.MemoryStore.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
}

func TestStoreWriteFailureIsTransient(t *testing.T) {
	fs, eng := newFlakyEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, err := eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, err)

	fs.saveErr = errors.New("write timeout")
	err = eng.Process(ctx, o.ID)
	require.True(t, order.IsTransient(err))

	// 写失败时库里保持上一个已落库状态
	got, _ := fs.MemoryStore.Get(ctx, o.ID)
	require.Equal(t, order.StatusPending, got.Status)

	fs.saveErr = nil
	require.NoError(t, eng.Process(ctx, o.ID))
	got, _ = fs.MemoryStore.Get(ctx, o.ID)
	require.Equal(t, order.StatusConfirmed, got.Status)
}

func TestSetDefaultSlippageConcurrentWithSubmit(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			e.eng.SetDefaultSlippage(0.02)
		}
	}()
	for i := 0; i < 100; i++ {
		_, err := e.eng.Submit(ctx, order.Submission{
			Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
		})
		require.NoError(t, err)
	}
	<-done

	o, err := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 0.02, o.Slippage)
}

func TestUpdatedAtMonotonic(t *testing.T) {
	e := newEnv(goodSource(order.ProviderRaydium, 100))
	ctx := context.Background()

	o, _ := e.eng.Submit(ctx, order.Submission{
		Type: order.TypeMarket, TokenIn: "SOL", TokenOut: "USDC", AmountIn: 1,
	})
	created := o.CreatedAt
	require.NoError(t, e.eng.Process(ctx, o.ID))

	got, _ := e.store.Get(ctx, o.ID)
	require.False(t, got.UpdatedAt.Before(created))
}
