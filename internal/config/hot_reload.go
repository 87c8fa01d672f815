package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appcfg "order-engine-go/config"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled       bool          // 是否启用热更新
	WatchInterval time.Duration // 监听间隔
	CooldownTime  time.Duration // 冷却时间，避免频繁更新
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:       true,
		WatchInterval: 1 * time.Second,
		CooldownTime:  5 * time.Second,
	}
}

// ParameterValidator 参数验证器接口
type ParameterValidator interface {
	Validate(params map[string]interface{}) error
}

// ParameterApplier 参数应用器接口
type ParameterApplier interface {
	ApplyParameters(params map[string]interface{}) error
}

// HotReloader 配置热更新器。文件写入后重新加载并把新配置交给 reloadHandler。
type HotReloader struct {
	config        HotReloadConfig
	configPath    string
	watcher       *fsnotify.Watcher
	validators    map[string]ParameterValidator
	appliers      map[string]ParameterApplier
	lastReload    time.Time
	mu            sync.RWMutex
	stopChan      chan struct{}
	doneChan      chan struct{}
	reloadHandler func(newConfig appcfg.AppConfig) error
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &HotReloader{
		config:     cfg,
		configPath: configPath,
		watcher:    watcher,
		validators: make(map[string]ParameterValidator),
		appliers:   make(map[string]ParameterApplier),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// RegisterValidator 注册参数验证器
func (h *HotReloader) RegisterValidator(name string, validator ParameterValidator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.validators[name] = validator
}

// RegisterApplier 注册参数应用器
func (h *HotReloader) RegisterApplier(name string, applier ParameterApplier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers[name] = applier
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler func(newConfig appcfg.AppConfig) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadHandler = handler
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	if err := h.watcher.Add(h.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go h.watch(ctx)

	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	if !h.config.Enabled {
		if h.watcher != nil {
			return h.watcher.Close()
		}
		return nil
	}

	select {
	case <-h.stopChan:
		// 已经停止
	default:
		close(h.stopChan)
	}

	// 等待 goroutine 结束（带超时）
	select {
	case <-h.doneChan:
	case <-time.After(1 * time.Second):
		// 超时，可能 watch goroutine 没有启动
	}

	if h.watcher != nil {
		return h.watcher.Close()
	}

	return nil
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// 只处理写入和创建事件
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				h.handleConfigChange()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			// 记录错误但继续监听
			fmt.Printf("Watcher error: %v\n", err)
		}
	}
}

// handleConfigChange 处理配置变化
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 检查冷却时间
	if time.Since(h.lastReload) < h.config.CooldownTime {
		return
	}

	if h.reloadHandler != nil {
		newCfg, err := appcfg.LoadWithEnvOverrides(h.configPath)
		if err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}
		if err := appcfg.ValidateParams(newCfg); err != nil {
			fmt.Printf("Rejected config change: %v\n", err)
			return
		}
		if err := h.reloadHandler(newCfg); err != nil {
			fmt.Printf("Failed to apply config: %v\n", err)
			return
		}
	}

	h.lastReload = time.Now()
}

// ValidateParameters 验证参数
func (h *HotReloader) ValidateParameters(category string, params map[string]interface{}) error {
	h.mu.RLock()
	validator, ok := h.validators[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no validator registered for category: %s", category)
	}

	return validator.Validate(params)
}

// ApplyParameters 应用参数
func (h *HotReloader) ApplyParameters(category string, params map[string]interface{}) error {
	if err := h.ValidateParameters(category, params); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	h.mu.RLock()
	applier, ok := h.appliers[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no applier registered for category: %s", category)
	}

	return applier.ApplyParameters(params)
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// QueueParameterValidator 调度参数验证器
type QueueParameterValidator struct{}

func (v *QueueParameterValidator) Validate(params map[string]interface{}) error {
	if opm, ok := params["orders_per_minute"].(int); ok {
		if opm <= 0 || opm > 10000 {
			return fmt.Errorf("orders_per_minute must be between 1 and 10000, got %d", opm)
		}
	}

	if conc, ok := params["max_concurrent_orders"].(int); ok {
		if conc <= 0 || conc > 1000 {
			return fmt.Errorf("max_concurrent_orders must be between 1 and 1000, got %d", conc)
		}
	}

	if attempts, ok := params["max_retry_attempts"].(int); ok {
		if attempts < 0 || attempts > 10 {
			return fmt.Errorf("max_retry_attempts must be between 0 and 10, got %d", attempts)
		}
	}

	if base, ok := params["backoff_base"].(string); ok {
		d, err := time.ParseDuration(base)
		if err != nil {
			return fmt.Errorf("invalid backoff_base: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("backoff_base must be positive, got %s", d)
		}
	}

	return nil
}

// DexParameterValidator 交易所参数验证器
type DexParameterValidator struct{}

func (v *DexParameterValidator) Validate(params map[string]interface{}) error {
	if slippage, ok := params["slippage_tolerance"].(float64); ok {
		if slippage < 0 || slippage >= 1 {
			return fmt.Errorf("slippage_tolerance must be in [0, 1), got %f", slippage)
		}
	}

	if price, ok := params["base_price"].(float64); ok {
		if price <= 0 {
			return fmt.Errorf("base_price must be positive, got %f", price)
		}
	}

	return nil
}

// AlertParameterValidator 告警参数验证器
type AlertParameterValidator struct{}

func (v *AlertParameterValidator) Validate(params map[string]interface{}) error {
	if interval, ok := params["throttle_interval"].(string); ok {
		if _, err := time.ParseDuration(interval); err != nil {
			return fmt.Errorf("invalid throttle_interval: %w", err)
		}
	}

	return nil
}
