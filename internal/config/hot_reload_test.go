package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// MockParameterApplier 模拟参数应用器
type MockParameterApplier struct {
	applied map[string]interface{}
}

func NewMockParameterApplier() *MockParameterApplier {
	return &MockParameterApplier{
		applied: make(map[string]interface{}),
	}
}

func (m *MockParameterApplier) ApplyParameters(params map[string]interface{}) error {
	for k, v := range params {
		m.applied[k] = v
	}
	return nil
}

func (m *MockParameterApplier) GetApplied(key string) interface{} {
	return m.applied[key]
}

func writeTempConfig(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("env: dev\n"), 0644); err != nil {
		t.Fatalf("Failed to create temp config: %v", err)
	}
	return configPath
}

func TestHotReloader_New(t *testing.T) {
	configPath := writeTempConfig(t)

	cfg := DefaultHotReloadConfig()
	reloader, err := NewHotReloader(configPath, cfg)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	defer reloader.Stop()

	if reloader.configPath != configPath {
		t.Errorf("Expected config path %s, got %s", configPath, reloader.configPath)
	}
}

func TestHotReloader_RegisterValidator(t *testing.T) {
	reloader, _ := NewHotReloader(writeTempConfig(t), DefaultHotReloadConfig())
	defer reloader.Stop()

	reloader.RegisterValidator("queue", &QueueParameterValidator{})

	if len(reloader.validators) != 1 {
		t.Errorf("Expected 1 validator, got %d", len(reloader.validators))
	}
}

func TestHotReloader_RegisterApplier(t *testing.T) {
	reloader, _ := NewHotReloader(writeTempConfig(t), DefaultHotReloadConfig())
	defer reloader.Stop()

	reloader.RegisterApplier("queue", NewMockParameterApplier())

	if len(reloader.appliers) != 1 {
		t.Errorf("Expected 1 applier, got %d", len(reloader.appliers))
	}
}

func TestHotReloader_ValidateAndApply(t *testing.T) {
	reloader, _ := NewHotReloader(writeTempConfig(t), DefaultHotReloadConfig())
	defer reloader.Stop()

	applier := NewMockParameterApplier()
	reloader.RegisterValidator("queue", &QueueParameterValidator{})
	reloader.RegisterApplier("queue", applier)

	validParams := map[string]interface{}{
		"orders_per_minute":     120,
		"max_concurrent_orders": 20,
		"max_retry_attempts":    3,
		"backoff_base":          "1s",
	}

	if err := reloader.ApplyParameters("queue", validParams); err != nil {
		t.Errorf("Failed to apply valid parameters: %v", err)
	}

	if applier.GetApplied("orders_per_minute") != 120 {
		t.Error("Parameters not applied correctly")
	}
}

func TestHotReloader_ApplyRejectsInvalid(t *testing.T) {
	reloader, _ := NewHotReloader(writeTempConfig(t), DefaultHotReloadConfig())
	defer reloader.Stop()

	applier := NewMockParameterApplier()
	reloader.RegisterValidator("queue", &QueueParameterValidator{})
	reloader.RegisterApplier("queue", applier)

	err := reloader.ApplyParameters("queue", map[string]interface{}{
		"orders_per_minute": 0,
	})
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if applier.GetApplied("orders_per_minute") != nil {
		t.Error("Invalid parameters must not reach the applier")
	}
}

func TestHotReloader_StartStop(t *testing.T) {
	reloader, _ := NewHotReloader(writeTempConfig(t), DefaultHotReloadConfig())

	ctx := context.Background()

	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := reloader.Stop(); err != nil {
		t.Errorf("Failed to stop reloader: %v", err)
	}
}

func TestQueueParameterValidator_Valid(t *testing.T) {
	validator := &QueueParameterValidator{}

	testCases := []struct {
		name   string
		params map[string]interface{}
	}{
		{
			name: "Typical values",
			params: map[string]interface{}{
				"orders_per_minute":     100,
				"max_concurrent_orders": 10,
				"max_retry_attempts":    3,
				"backoff_base":          "1s",
			},
		},
		{
			name: "Minimum values",
			params: map[string]interface{}{
				"orders_per_minute":     1,
				"max_concurrent_orders": 1,
				"max_retry_attempts":    0,
				"backoff_base":          "1ms",
			},
		},
		{
			name: "Maximum values",
			params: map[string]interface{}{
				"orders_per_minute":     10000,
				"max_concurrent_orders": 1000,
				"max_retry_attempts":    10,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validator.Validate(tc.params); err != nil {
				t.Errorf("Expected valid parameters but got error: %v", err)
			}
		})
	}
}

func TestQueueParameterValidator_Invalid(t *testing.T) {
	validator := &QueueParameterValidator{}

	testCases := []struct {
		name   string
		params map[string]interface{}
	}{
		{
			name:   "Invalid orders_per_minute (zero)",
			params: map[string]interface{}{"orders_per_minute": 0},
		},
		{
			name:   "Invalid orders_per_minute (too large)",
			params: map[string]interface{}{"orders_per_minute": 100000},
		},
		{
			name:   "Invalid max_concurrent_orders (negative)",
			params: map[string]interface{}{"max_concurrent_orders": -1},
		},
		{
			name:   "Invalid max_retry_attempts (too large)",
			params: map[string]interface{}{"max_retry_attempts": 50},
		},
		{
			name:   "Invalid backoff_base (unparseable)",
			params: map[string]interface{}{"backoff_base": "soon"},
		},
		{
			name:   "Invalid backoff_base (negative)",
			params: map[string]interface{}{"backoff_base": "-1s"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validator.Validate(tc.params); err == nil {
				t.Error("Expected validation error but got none")
			}
		})
	}
}

func TestDexParameterValidator_Valid(t *testing.T) {
	validator := &DexParameterValidator{}

	validParams := map[string]interface{}{
		"slippage_tolerance": 0.02,
		"base_price":         150.0,
	}

	if err := validator.Validate(validParams); err != nil {
		t.Errorf("Expected valid parameters but got error: %v", err)
	}
}

func TestDexParameterValidator_Invalid(t *testing.T) {
	validator := &DexParameterValidator{}

	testCases := []struct {
		name   string
		params map[string]interface{}
	}{
		{
			name:   "Invalid slippage_tolerance (too large)",
			params: map[string]interface{}{"slippage_tolerance": 1.5},
		},
		{
			name:   "Invalid slippage_tolerance (negative)",
			params: map[string]interface{}{"slippage_tolerance": -0.1},
		},
		{
			name:   "Invalid base_price (zero)",
			params: map[string]interface{}{"base_price": 0.0},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validator.Validate(tc.params); err == nil {
				t.Error("Expected validation error but got none")
			}
		})
	}
}

func TestAlertParameterValidator_Valid(t *testing.T) {
	validator := &AlertParameterValidator{}

	if err := validator.Validate(map[string]interface{}{"throttle_interval": "5m"}); err != nil {
		t.Errorf("Expected valid parameters but got error: %v", err)
	}
}

func TestAlertParameterValidator_Invalid(t *testing.T) {
	validator := &AlertParameterValidator{}

	if err := validator.Validate(map[string]interface{}{"throttle_interval": "invalid"}); err == nil {
		t.Error("Expected validation error but got none")
	}
}

func TestHotReloader_GetLastReloadTime(t *testing.T) {
	reloader, _ := NewHotReloader(writeTempConfig(t), DefaultHotReloadConfig())
	defer reloader.Stop()

	if !reloader.GetLastReloadTime().IsZero() {
		t.Error("Expected zero time for last reload")
	}
}
