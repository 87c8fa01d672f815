package scheduler

import (
	"context"
	"sync"
	"time"
)

// MinuteLimiter 滚动一分钟窗口的准入限流。
// 记录最近一分钟内的准入时刻，满了就等到最老的一条滑出窗口。
type MinuteLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	admitted []time.Time
}

// NewMinuteLimiter 创建限流器，limit <= 0 时按 1 处理。
func NewMinuteLimiter(limit int) *MinuteLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &MinuteLimiter{
		limit:  limit,
		window: time.Minute,
	}
}

// SetLimit 动态调整每分钟上限（配置热更新用）。
func (l *MinuteLimiter) SetLimit(limit int) {
	if limit <= 0 {
		return
	}
	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()
}

// Limit 当前每分钟上限。
func (l *MinuteLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Acquire 占用一个准入名额，窗口已满时阻塞等待。
// 返回值标记本次是否等待过，用于指标统计。
func (l *MinuteLimiter) Acquire(ctx context.Context) (waited bool, err error) {
	for {
		l.mu.Lock()
		now := time.Now()
		l.pruneLocked(now)
		if len(l.admitted) < l.limit {
			l.admitted = append(l.admitted, now)
			l.mu.Unlock()
			return waited, nil
		}
		wait := l.admitted[0].Add(l.window).Sub(now) + time.Millisecond
		l.mu.Unlock()

		waited = true
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
		}
	}
}

// pruneLocked 丢掉窗口外的准入记录。
func (l *MinuteLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admitted) && !l.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[i:]...)
	}
}

// InWindow 当前窗口内已准入数量。
func (l *MinuteLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
	return len(l.admitted)
}
