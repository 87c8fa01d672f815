package config

// ValidateParams 额外验证热更新场景下允许动态调整的关键参数。
func ValidateParams(cfg AppConfig) error {
	if cfg.Queue.OrdersPerMinute <= 0 {
		return ErrInvalid("queue.ordersPerMinute must be > 0")
	}
	if cfg.Queue.MaxConcurrentOrders <= 0 {
		return ErrInvalid("queue.maxConcurrentOrders must be > 0")
	}
	if cfg.Queue.BackoffBase <= 0 {
		return ErrInvalid("queue.backoffBase must be > 0")
	}
	if cfg.Dex.SlippageTolerance < 0 || cfg.Dex.SlippageTolerance >= 1 {
		return ErrInvalid("dex.slippageTolerance must be in [0, 1)")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
