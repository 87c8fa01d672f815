package order

import "time"

// Type represents how an order is triggered.
type Type string

const (
	TypeMarket Type = "market" // 立即执行
	TypeLimit  Type = "limit"  // 达到目标价后执行
	TypeSniper Type = "sniper" // 达到指定时间后执行
)

// Status represents order lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Provider 流动性来源标识。
type Provider string

const (
	ProviderRaydium Provider = "raydium"
	ProviderMeteora Provider = "meteora"
)

// Order 订单主实体。Id 在提交时生成，之后不可变；
// 终态（confirmed/failed）之后记录不再修改。
type Order struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	TokenIn     string    `json:"tokenIn"`
	TokenOut    string    `json:"tokenOut"`
	AmountIn    float64   `json:"amountIn"`
	AmountOut   float64   `json:"amountOut,omitempty"`   // limit 单期望的输出量
	TargetPrice float64   `json:"targetPrice,omitempty"` // limit 单触发价
	LaunchTime  time.Time `json:"launchTime,omitempty"`  // sniper 单触发时间
	Slippage    float64   `json:"slippage"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UserID      string    `json:"userId,omitempty"`

	// 成交结果（仅 confirmed 后填充）
	TxHash        string   `json:"txHash,omitempty"`
	ExecutedPrice float64  `json:"executedPrice,omitempty"`
	DexProvider   Provider `json:"dexProvider,omitempty"`

	// 失败原因（仅 failed 后填充）
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Terminal 是否已到终态。
func (o *Order) Terminal() bool {
	return o.Status == StatusConfirmed || o.Status == StatusFailed
}

// Quote 单个流动性来源的报价，仅在生成瞬间有效，不落库。
// AmountOut 已扣除手续费与价格冲击。
type Quote struct {
	Provider    Provider  `json:"provider"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
	AmountOut   float64   `json:"amountOut"`
	PriceImpact float64   `json:"priceImpact"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExecutionResult swap 执行结果。
type ExecutionResult struct {
	Success       bool
	TxHash        string
	ExecutedPrice float64
	AmountOut     float64
	Err           string
}

// Update 推送给订阅者的状态变更消息，对应每次状态转换。
type Update struct {
	OrderID   string     `json:"orderId"`
	Status    Status     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Data      UpdateData `json:"data,omitempty"`
}

// UpdateData 附带的增量结果字段。
type UpdateData struct {
	TxHash        string   `json:"txHash,omitempty"`
	ExecutedPrice float64  `json:"executedPrice,omitempty"`
	AmountOut     float64  `json:"amountOut,omitempty"`
	Error         string   `json:"error,omitempty"`
	DexProvider   Provider `json:"dexProvider,omitempty"`
	Quotes        []Quote  `json:"quotes,omitempty"`
}

// Submission 提交请求的订单参数（已通过 api 层校验）。
type Submission struct {
	Type        Type      `json:"type"`
	TokenIn     string    `json:"tokenIn"`
	TokenOut    string    `json:"tokenOut"`
	AmountIn    float64   `json:"amountIn"`
	AmountOut   float64   `json:"amountOut,omitempty"`
	TargetPrice float64   `json:"targetPrice,omitempty"`
	LaunchTime  time.Time `json:"launchTime,omitempty"`
	Slippage    float64   `json:"slippage,omitempty"`
	UserID      string    `json:"userId,omitempty"`
}

// Priority 按订单类型推导调度优先级：sniper 最高，limit 次之，market 默认。
func (t Type) Priority() int {
	switch t {
	case TypeSniper:
		return 10
	case TypeLimit:
		return 5
	default:
		return 0
	}
}
