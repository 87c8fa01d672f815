package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersSubmitted *prometheus.CounterVec
	ordersConfirmed prometheus.Counter
	ordersFailed    prometheus.Counter
	processLatency  prometheus.Histogram

	// 调度指标
	dispatchAttempts prometheus.Counter
	dispatchRetries  prometheus.Counter
	queueWaiting     prometheus.Gauge
	queueActive      prometheus.Gauge
	queueDelayed     prometheus.Gauge
	rateLimitWaits   prometheus.Counter

	// DEX 指标
	quoteLatency *prometheus.HistogramVec
	quoteErrors  *prometheus.CounterVec
	swapExecuted *prometheus.CounterVec

	// 推送指标
	wsConnections   prometheus.Counter
	wsDisconnects   prometheus.Counter
	updatesDropped  prometheus.Counter
	updatesDelivery prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "oe",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ordersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_submitted_total",
			Help:      "订单提交总数",
		}, []string{"type"}),
		ordersConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_confirmed_total",
			Help:      "订单成交总数",
		}),
		ordersFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_failed_total",
			Help:      "订单终态失败总数",
		}),
		processLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "process_latency_seconds",
			Help:      "单次编排处理耗时（秒）",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),

		dispatchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dispatch_attempts_total",
			Help:      "调度执行次数",
		}),
		dispatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dispatch_retries_total",
			Help:      "退避重试次数",
		}),
		queueWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "queue_waiting",
			Help:      "等待中的订单数",
		}),
		queueActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "queue_active",
			Help:      "处理中的订单数",
		}),
		queueDelayed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "queue_delayed",
			Help:      "延迟等待的订单数",
		}),
		rateLimitWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rate_limit_waits_total",
			Help:      "因每分钟限流而等待的次数",
		}),

		quoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quote_latency_seconds",
			Help:      "报价耗时（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		quoteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quote_errors_total",
			Help:      "报价失败总数",
		}, []string{"provider"}),
		swapExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "swaps_executed_total",
			Help:      "swap 执行总数",
		}, []string{"provider", "result"}),

		wsConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connections_total",
			Help:      "WebSocket连接次数",
		}),
		wsDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_disconnects_total",
			Help:      "WebSocket断开次数",
		}),
		updatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "updates_dropped_total",
			Help:      "推送失败被丢弃的订阅者数",
		}),
		updatesDelivery: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "updates_delivered_total",
			Help:      "成功推送的状态消息数",
		}),
	}

	return m
}

// 订单相关方法
func (m *Monitor) RecordOrderSubmitted(orderType string) {
	m.ordersSubmitted.WithLabelValues(orderType).Inc()
}

func (m *Monitor) RecordOrderConfirmed() {
	m.ordersConfirmed.Inc()
}

func (m *Monitor) RecordOrderFailed() {
	m.ordersFailed.Inc()
}

func (m *Monitor) RecordProcessLatency(seconds float64) {
	m.processLatency.Observe(seconds)
}

// 调度相关方法
func (m *Monitor) RecordDispatchAttempt() {
	m.dispatchAttempts.Inc()
}

func (m *Monitor) RecordDispatchRetry() {
	m.dispatchRetries.Inc()
}

func (m *Monitor) UpdateQueueDepth(waiting, active, delayed int) {
	m.queueWaiting.Set(float64(waiting))
	m.queueActive.Set(float64(active))
	m.queueDelayed.Set(float64(delayed))
}

func (m *Monitor) RecordRateLimitWait() {
	m.rateLimitWaits.Inc()
}

// DEX 相关方法
func (m *Monitor) RecordQuoteLatency(provider string, seconds float64) {
	m.quoteLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Monitor) RecordQuoteError(provider string) {
	m.quoteErrors.WithLabelValues(provider).Inc()
}

func (m *Monitor) RecordSwap(provider string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.swapExecuted.WithLabelValues(provider, result).Inc()
}

// 推送相关方法
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

func (m *Monitor) RecordUpdateDropped() {
	m.updatesDropped.Inc()
}

func (m *Monitor) RecordUpdateDelivered() {
	m.updatesDelivery.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
