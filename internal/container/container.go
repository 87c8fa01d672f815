package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"order-engine-go/api"
	"order-engine-go/config"
	"order-engine-go/dex"
	"order-engine-go/infrastructure/alert"
	"order-engine-go/infrastructure/logger"
	"order-engine-go/infrastructure/monitor"
	iconfig "order-engine-go/internal/config"
	"order-engine-go/internal/engine"
	"order-engine-go/internal/scheduler"
	"order-engine-go/internal/store"
	"order-engine-go/notify"
	"order-engine-go/order"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 存储与流动性来源
	store  store.Store
	market *dex.Market
	router *dex.Router

	// 核心服务
	hub       *notify.Hub
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	reloader  *iconfig.HotReloader

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle   *LifecycleManager
	driftCancel context.CancelFunc
}

// Options 构建开关。
type Options struct {
	// ForceMemoryStore 忽略数据库配置，强制内存存储（开发模式）
	ForceMemoryStore bool
	// DisableHotReload 不监听配置文件变化
	DisableHotReload bool
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}, nil
}

// Build 构建所有组件
func (c *Container) Build(opts Options) error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildStorage(opts); err != nil {
		return fmt.Errorf("build storage failed: %w", err)
	}

	c.buildDex()
	c.buildCoreServices()

	if !opts.DisableHotReload {
		if err := c.buildHotReloader(); err != nil {
			return fmt.Errorf("build hot reloader failed: %w", err)
		}
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())

	throttle := c.cfg.Alert.ThrottleInterval.Std()
	if throttle <= 0 {
		throttle = 5 * time.Minute
	}
	c.alerts = alert.NewManager([]alert.Channel{
		alert.NewZapChannel("log", c.logger.Logger),
	}, throttle)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildStorage(opts Options) error {
	if opts.ForceMemoryStore || c.cfg.Database.InMemory {
		c.store = store.NewMemoryStore()
		c.logger.Info("using in-memory order store")
		return nil
	}

	pg, err := store.NewPostgresStore(c.cfg.Database.DSN(), c.logger.Logger)
	if err != nil {
		return fmt.Errorf("connect postgres failed: %w", err)
	}
	c.store = pg
	c.logger.Info("using postgres order store")
	return nil
}

func (c *Container) buildDex() {
	seed := c.cfg.Dex.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c.market = dex.NewMarket(c.cfg.Dex.BasePrice, seed)

	sources := []dex.Source{
		dex.NewSimSource(order.ProviderRaydium, dex.RaydiumParams(), c.market),
		dex.NewSimSource(order.ProviderMeteora, dex.MeteoraParams(), c.market),
	}
	c.router = dex.NewRouter(sources, c.logger.Logger)
	c.router.SetMonitor(c.monitor)
	c.logger.Info("dex router built")
}

func (c *Container) buildCoreServices() {
	c.hub = notify.NewHub(c.logger.Logger)
	c.hub.SetMonitor(c.monitor)
	c.engine = engine.New(c.store, c.router, c.hub, c.logger, c.monitor, c.cfg.Dex.SlippageTolerance)

	schedCfg := scheduler.Config{
		MaxConcurrentOrders: c.cfg.Queue.MaxConcurrentOrders,
		OrdersPerMinute:     c.cfg.Queue.OrdersPerMinute,
		MaxRetryAttempts:    c.cfg.Queue.MaxRetryAttempts,
		BackoffBase:         c.cfg.Queue.BackoffBase.Std(),
		SaturationThreshold: c.cfg.Queue.SaturationThreshold,
	}
	c.scheduler = scheduler.New(schedCfg, c.engine, c.logger, c.monitor, c.alerts)

	c.apiServer = api.NewServer(c.engine, c.scheduler, c.hub, c.logger, c.monitor)
	c.logger.Info("core services built")
}

func (c *Container) buildHotReloader() error {
	reloader, err := iconfig.NewHotReloader(c.configPath, iconfig.DefaultHotReloadConfig())
	if err != nil {
		return err
	}
	reloader.RegisterValidator("queue", &iconfig.QueueParameterValidator{})
	reloader.RegisterValidator("dex", &iconfig.DexParameterValidator{})
	reloader.RegisterValidator("alert", &iconfig.AlertParameterValidator{})

	reloader.SetReloadHandler(func(newCfg config.AppConfig) error {
		c.scheduler.SetOrdersPerMinute(newCfg.Queue.OrdersPerMinute)
		c.scheduler.SetRetryPolicy(newCfg.Queue.MaxRetryAttempts, newCfg.Queue.BackoffBase.Std())
		c.engine.SetDefaultSlippage(newCfg.Dex.SlippageTolerance)
		c.logger.Info("runtime config reloaded")
		return nil
	})

	c.reloader = reloader
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.monitor != nil && c.cfg.Server.MetricsPort > 0 {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    fmt.Sprintf(":%d", c.cfg.Server.MetricsPort),
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}

	c.lifecycle.Register(&funcComponent{
		name: "market_drift",
		start: func(ctx context.Context) error {
			if c.cfg.Dex.DriftInterval > 0 {
				driftCtx, cancel := context.WithCancel(context.Background())
				c.driftCancel = cancel
				c.market.StartDrift(driftCtx, c.cfg.Dex.DriftInterval.Std(), c.logger.Logger)
			}
			return nil
		},
		stop: func() error {
			if c.driftCancel != nil {
				c.driftCancel()
			}
			return nil
		},
	})

	c.lifecycle.Register(&funcComponent{
		name: "scheduler",
		start: func(ctx context.Context) error {
			c.scheduler.Start()
			return nil
		},
		stop: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return c.scheduler.Shutdown(ctx)
		},
	})

	if c.reloader != nil {
		c.lifecycle.Register(&funcComponent{
			name:  "config_reloader",
			start: c.reloader.Start,
			stop:  c.reloader.Stop,
		})
	}

	c.lifecycle.Register(&funcComponent{
		name: "api_server",
		start: func(ctx context.Context) error {
			go func() {
				if err := c.apiServer.Start(c.cfg.Server.Port); err != nil {
					c.logger.LogError(err, map[string]interface{}{"component": "api_server"})
				}
			}()
			return nil
		},
		stop: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.apiServer.Shutdown(ctx)
		},
	})
}

// Start 按注册顺序启动所有组件。
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止组件并释放资源。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	c.hub.CloseAll()
	if cerr := c.store.Close(); cerr != nil {
		c.logger.LogError(cerr, map[string]interface{}{"action": "close_store"})
	}

	if c.logger != nil {
		_ = c.logger.Close()
	}
	return err
}

// HealthCheck 检查所有组件健康状态。
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Scheduler 暴露调度器（排空等待等运维操作用）。
func (c *Container) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

// Logger 暴露日志器。
func (c *Container) Logger() *logger.Logger {
	return c.logger
}
