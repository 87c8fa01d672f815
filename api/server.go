package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"order-engine-go/infrastructure/logger"
	"order-engine-go/infrastructure/monitor"
	"order-engine-go/internal/engine"
	"order-engine-go/internal/scheduler"
	"order-engine-go/notify"
)

const version = "1.0.0"

// Server HTTP 入口：下单、查询、队列控制、WebSocket 订阅。
type Server struct {
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	hub       *notify.Hub
	logger    *logger.Logger
	monitor   *monitor.Monitor
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
}

// NewServer 创建 HTTP 服务。monitor 可为 nil。
func NewServer(eng *engine.Engine, sched *scheduler.Scheduler, hub *notify.Hub, log *logger.Logger, mon *monitor.Monitor) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		engine:    eng,
		scheduler: sched,
		hub:       hub,
		logger:    log,
		monitor:   mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 与原服务一致，放开跨域
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router 组装全部路由。
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware, corsMiddleware)

	r.HandleFunc("/api/orders/submit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{orderId}", s.handleGetOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/orders", s.handleListOrders).Methods(http.MethodGet)

	r.HandleFunc("/api/queue/stats", s.handleQueueStats).Methods(http.MethodGet)
	r.HandleFunc("/api/queue/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/api/queue/resume", s.handleResume).Methods(http.MethodPost)

	r.HandleFunc("/ws/orders/{orderId}", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.monitor != nil {
		r.Handle("/metrics", s.monitor.Handler()).Methods(http.MethodGet)
	}

	// 预检请求直接放行
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// Start 监听指定端口，阻塞直到服务退出。
func (s *Server) Start(port int) error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket 长连接不能设写超时
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("http server listening", zap.Int("port", port))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭 HTTP 服务。
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// loggingMiddleware 记录每个请求的方法、路径、耗时。
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// corsMiddleware 与原服务一致的宽松跨域策略。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
