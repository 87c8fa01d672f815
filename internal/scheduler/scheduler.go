package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"order-engine-go/infrastructure/alert"
	"order-engine-go/infrastructure/logger"
	"order-engine-go/infrastructure/monitor"
	"order-engine-go/order"
)

var (
	// ErrDuplicate 同一订单已在队列或执行中
	ErrDuplicate = errors.New("order already queued")
	// ErrStopped 调度器已关闭
	ErrStopped = errors.New("scheduler stopped")
)

// Processor 执行单个订单的一次处理。
// 返回瞬时错误时调度器负责退避重试；其它错误视为订单已终态失败。
type Processor interface {
	Process(ctx context.Context, orderID string) error
	FailOrder(ctx context.Context, orderID, reason string) error
}

// Config 调度参数
type Config struct {
	MaxConcurrentOrders int           // 同时处理上限
	OrdersPerMinute     int           // 滚动一分钟准入上限
	MaxRetryAttempts    int           // 单个订单的最大处理尝试次数（含首次）
	BackoffBase         time.Duration // 第 n 次重试延迟 base*2^n
	SaturationThreshold int           // 等待积压告警阈值，0 不告警
}

// DefaultConfig 默认调度参数
func DefaultConfig() Config {
	return Config{
		MaxConcurrentOrders: 10,
		OrdersPerMinute:     100,
		MaxRetryAttempts:    3,
		BackoffBase:         time.Second,
	}
}

// Stats 队列状态快照
type Stats struct {
	Waiting   int   `json:"waiting"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int   `json:"delayed"`
}

// item 队列元素。priority 大的先出队，相同优先级按入队顺序。
type item struct {
	orderID  string
	priority int
	seq      uint64
	readyAt  time.Time
	index    int
}

// Scheduler 订单调度器。
// 单个派发 goroutine 拥有两个堆：就绪堆按优先级出队，延迟堆按就绪时刻出队。
// worker 槽位用带缓冲 channel 实现，限流用滚动分钟窗口。
type Scheduler struct {
	cfg       Config
	processor Processor
	limiter   *MinuteLimiter
	logger    *logger.Logger
	monitor   *monitor.Monitor
	alerts    *alert.Manager

	mu        sync.Mutex
	waiting   readyQueue
	delayed   delayQueue
	inflight  map[string]struct{}
	attempts  map[string]int
	active    int
	completed int64
	failed    int64
	paused    bool
	stopped   bool
	seq       uint64

	slots          chan struct{}
	wakeCh         chan struct{}
	stopCh         chan struct{}
	runCtx         context.Context
	cancel         context.CancelFunc
	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
	wg             sync.WaitGroup
	started        bool
}

// New 创建调度器。monitor、alerts 可为 nil。
func New(cfg Config, processor Processor, log *logger.Logger, mon *monitor.Monitor, alerts *alert.Manager) *Scheduler {
	if cfg.MaxConcurrentOrders <= 0 {
		cfg.MaxConcurrentOrders = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:            cfg,
		processor:      processor,
		limiter:        NewMinuteLimiter(cfg.OrdersPerMinute),
		logger:         log,
		monitor:        mon,
		alerts:         alerts,
		inflight:       make(map[string]struct{}),
		attempts:       make(map[string]int),
		slots:          make(chan struct{}, cfg.MaxConcurrentOrders),
		wakeCh:         make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		runCtx:         runCtx,
		cancel:         cancel,
		dispatchCtx:    dispatchCtx,
		dispatchCancel: dispatchCancel,
	}
}

// Start 启动派发循环。重复调用无效果。
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch()
}

// Enqueue 按优先级入队。同一订单在途时拒绝二次入队。
func (s *Scheduler) Enqueue(orderID string, priority int) error {
	return s.enqueue(orderID, priority, 0)
}

// EnqueueDelayed 延迟入队，到点后进入就绪堆。
func (s *Scheduler) EnqueueDelayed(orderID string, priority int, delay time.Duration) error {
	return s.enqueue(orderID, priority, delay)
}

func (s *Scheduler) enqueue(orderID string, priority int, delay time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if _, ok := s.inflight[orderID]; ok {
		s.mu.Unlock()
		return ErrDuplicate
	}
	s.inflight[orderID] = struct{}{}
	s.seq++
	it := &item{orderID: orderID, priority: priority, seq: s.seq}
	if delay > 0 {
		it.readyAt = time.Now().Add(delay)
		heap.Push(&s.delayed, it)
	} else {
		heap.Push(&s.waiting, it)
	}
	waiting := s.waiting.Len()
	s.mu.Unlock()

	s.logger.LogDispatch("enqueued", orderID, 0, map[string]interface{}{
		"priority": priority,
		"delay_ms": delay.Milliseconds(),
	})
	s.publishDepth()
	if s.cfg.SaturationThreshold > 0 && waiting > s.cfg.SaturationThreshold && s.alerts != nil {
		_ = s.alerts.QueueSaturated(waiting, s.cfg.SaturationThreshold)
	}
	s.wake()
	return nil
}

// Pause 暂停派发。已在执行的订单不受影响。
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("scheduler paused")
}

// Resume 恢复派发。
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("scheduler resumed")
	s.wake()
}

// Paused 是否处于暂停状态。
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Stats 返回当前快照。
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Waiting:   s.waiting.Len(),
		Active:    s.active,
		Completed: s.completed,
		Failed:    s.failed,
		Delayed:   s.delayed.Len(),
	}
}

// SetOrdersPerMinute 动态调整准入速率（配置热更新用）。
func (s *Scheduler) SetOrdersPerMinute(limit int) {
	s.limiter.SetLimit(limit)
}

// SetRetryPolicy 动态调整重试参数（配置热更新用）。
func (s *Scheduler) SetRetryPolicy(maxAttempts int, backoffBase time.Duration) {
	s.mu.Lock()
	if maxAttempts >= 0 {
		s.cfg.MaxRetryAttempts = maxAttempts
	}
	if backoffBase > 0 {
		s.cfg.BackoffBase = backoffBase
	}
	s.mu.Unlock()
}

// Clear 丢弃所有等待和延迟中的订单，返回丢弃数量。执行中的订单不受影响。
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	n := s.waiting.Len() + s.delayed.Len()
	for _, it := range s.waiting {
		delete(s.inflight, it.orderID)
		delete(s.attempts, it.orderID)
	}
	for _, it := range s.delayed {
		delete(s.inflight, it.orderID)
		delete(s.attempts, it.orderID)
	}
	s.waiting = s.waiting[:0]
	s.delayed = s.delayed[:0]
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("queue cleared")
	}
	s.publishDepth()
	return n
}

// Drain 阻塞直到队列排空且没有执行中的订单。
func (s *Scheduler) Drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		idle := s.waiting.Len() == 0 && s.delayed.Len() == 0 && s.active == 0
		s.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown 停止接收新订单并等待执行中的订单结束。
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.dispatchCancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		// 超时则强制取消执行中的处理
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// wake 唤醒派发循环，重复唤醒合并。
func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// dispatch 派发主循环。
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		s.promoteDelayedLocked(time.Now())
		var it *item
		if !s.paused && s.waiting.Len() > 0 {
			it = heap.Pop(&s.waiting).(*item)
		}
		var timerC <-chan time.Time
		var timer *time.Timer
		if it == nil && s.delayed.Len() > 0 && !s.paused {
			d := time.Until(s.delayed[0].readyAt)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}
		s.mu.Unlock()

		if it == nil {
			select {
			case <-s.stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-s.wakeCh:
			case <-timerC:
			}
			if timer != nil {
				timer.Stop()
			}
			continue
		}

		waited, err := s.limiter.Acquire(s.dispatchCtx)
		if waited {
			if s.monitor != nil {
				s.monitor.RecordRateLimitWait()
			}
			s.logger.LogDispatch("rate_limited", it.orderID, s.attemptOf(it.orderID), nil)
		}
		if err != nil {
			return
		}

		select {
		case <-s.stopCh:
			return
		case s.slots <- struct{}{}:
		}

		s.mu.Lock()
		s.active++
		s.mu.Unlock()
		s.publishDepth()

		s.wg.Add(1)
		go s.run(it)
	}
}

// promoteDelayedLocked 把到点的延迟订单搬进就绪堆。
func (s *Scheduler) promoteDelayedLocked(now time.Time) {
	for s.delayed.Len() > 0 && !s.delayed[0].readyAt.After(now) {
		it := heap.Pop(&s.delayed).(*item)
		it.readyAt = time.Time{}
		heap.Push(&s.waiting, it)
	}
}

func (s *Scheduler) attemptOf(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[orderID]
}

// run 执行一次处理并按结果记账。
func (s *Scheduler) run(it *item) {
	defer s.wg.Done()
	defer func() {
		<-s.slots
		s.wake()
	}()

	attempt := s.attemptOf(it.orderID)
	if s.monitor != nil {
		s.monitor.RecordDispatchAttempt()
	}
	s.logger.LogDispatch("processing", it.orderID, attempt, map[string]interface{}{
		"priority": it.priority,
	})

	start := time.Now()
	err := s.processor.Process(s.runCtx, it.orderID)
	if s.monitor != nil {
		s.monitor.RecordProcessLatency(time.Since(start).Seconds())
	}

	switch {
	case err == nil:
		s.finish(it.orderID, true)
		s.logger.LogDispatch("completed", it.orderID, attempt, nil)

	case order.IsTransient(err):
		s.retryOrFail(it, err)

	default:
		// 非瞬时错误：订单已由编排器置为终态失败，或订单不存在
		s.finish(it.orderID, false)
		s.logger.LogDispatch("failed", it.orderID, attempt, map[string]interface{}{
			"error": err.Error(),
		})
		if s.alerts != nil {
			_ = s.alerts.OrderFailed(it.orderID, "", err.Error())
		}
	}
	s.publishDepth()
}

// retryOrFail 瞬时失败的退避重试；总尝试次数达到上限则终态失败。
// attempts 记录的是已安排的重试次数，本次失败的尝试要计入总数。
func (s *Scheduler) retryOrFail(it *item, cause error) {
	s.mu.Lock()
	attempt := s.attempts[it.orderID]
	maxAttempts := s.cfg.MaxRetryAttempts
	base := s.cfg.BackoffBase
	if attempt+1 >= maxAttempts {
		s.active--
		s.failed++
		delete(s.inflight, it.orderID)
		delete(s.attempts, it.orderID)
		s.mu.Unlock()

		s.logger.LogDispatch("retries_exhausted", it.orderID, attempt+1, map[string]interface{}{
			"error": cause.Error(),
		})
		if err := s.processor.FailOrder(s.runCtx, it.orderID, "maximum retry attempts exceeded"); err != nil {
			s.logger.LogError(err, map[string]interface{}{"order_id": it.orderID})
		}
		if s.alerts != nil {
			_ = s.alerts.RetriesExhausted(it.orderID, attempt+1)
		}
		return
	}

	delay := base << uint(attempt)
	s.attempts[it.orderID] = attempt + 1
	s.active--
	s.seq++
	next := &item{orderID: it.orderID, priority: it.priority, seq: s.seq, readyAt: time.Now().Add(delay)}
	heap.Push(&s.delayed, next)
	s.mu.Unlock()

	if s.monitor != nil {
		s.monitor.RecordDispatchRetry()
	}
	s.logger.LogDispatch("retry_scheduled", it.orderID, attempt+1, map[string]interface{}{
		"delay_ms": delay.Milliseconds(),
		"reason":   cause.Error(),
	})
	s.wake()
}

// finish 结束一个在途订单并累计计数。
func (s *Scheduler) finish(orderID string, ok bool) {
	s.mu.Lock()
	s.active--
	if ok {
		s.completed++
	} else {
		s.failed++
	}
	delete(s.inflight, orderID)
	delete(s.attempts, orderID)
	s.mu.Unlock()
}

// publishDepth 上报队列深度指标。
func (s *Scheduler) publishDepth() {
	if s.monitor == nil {
		return
	}
	s.mu.Lock()
	waiting, active, delayed := s.waiting.Len(), s.active, s.delayed.Len()
	s.mu.Unlock()
	s.monitor.UpdateQueueDepth(waiting, active, delayed)
}

// readyQueue 就绪堆：优先级降序，同优先级按序号升序。
type readyQueue []*item

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *readyQueue) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}
func (q *readyQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// delayQueue 延迟堆：按就绪时刻升序。
type delayQueue []*item

func (q delayQueue) Len() int { return len(q) }
func (q delayQueue) Less(i, j int) bool {
	return q[i].readyAt.Before(q[j].readyAt)
}
func (q delayQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *delayQueue) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}
func (q *delayQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}
