package api

import (
	"fmt"
	"time"

	"order-engine-go/order"
)

// SubmitOrderRequest 下单请求体。launchTime 用 ISO8601 字符串。
type SubmitOrderRequest struct {
	Type        string  `json:"type"`
	TokenIn     string  `json:"tokenIn"`
	TokenOut    string  `json:"tokenOut"`
	AmountIn    float64 `json:"amountIn"`
	AmountOut   float64 `json:"amountOut,omitempty"`
	TargetPrice float64 `json:"targetPrice,omitempty"`
	LaunchTime  string  `json:"launchTime,omitempty"`
	Slippage    float64 `json:"slippage,omitempty"`
	UserID      string  `json:"userId,omitempty"`
}

// Validate 请求体校验，返回全部问题（空切片表示通过）。
func (r SubmitOrderRequest) Validate() []string {
	var details []string

	switch order.Type(r.Type) {
	case order.TypeMarket, order.TypeLimit, order.TypeSniper:
	default:
		details = append(details, fmt.Sprintf("type must be one of market, limit, sniper, got %q", r.Type))
	}
	if r.TokenIn == "" || len(r.TokenIn) > 100 {
		details = append(details, "tokenIn must be 1-100 characters")
	}
	if r.TokenOut == "" || len(r.TokenOut) > 100 {
		details = append(details, "tokenOut must be 1-100 characters")
	}
	if r.AmountIn <= 0 {
		details = append(details, "amountIn must be positive")
	}
	if r.Slippage < 0 || r.Slippage > 1 {
		details = append(details, "slippage must be between 0 and 1")
	}

	if order.Type(r.Type) == order.TypeLimit {
		if r.TargetPrice <= 0 {
			details = append(details, "targetPrice is required for limit orders")
		}
		if r.AmountOut <= 0 {
			details = append(details, "amountOut is required for limit orders")
		}
	}
	if order.Type(r.Type) == order.TypeSniper {
		if r.LaunchTime == "" {
			details = append(details, "launchTime is required for sniper orders")
		} else if _, err := time.Parse(time.RFC3339, r.LaunchTime); err != nil {
			details = append(details, "launchTime must be an ISO8601 timestamp")
		}
	}

	return details
}

// Submission 转换为引擎提交参数。调用方需先通过 Validate。
func (r SubmitOrderRequest) Submission() order.Submission {
	var launch time.Time
	if r.LaunchTime != "" {
		launch, _ = time.Parse(time.RFC3339, r.LaunchTime)
	}
	return order.Submission{
		Type:        order.Type(r.Type),
		TokenIn:     r.TokenIn,
		TokenOut:    r.TokenOut,
		AmountIn:    r.AmountIn,
		AmountOut:   r.AmountOut,
		TargetPrice: r.TargetPrice,
		LaunchTime:  launch,
		Slippage:    r.Slippage,
		UserID:      r.UserID,
	}
}

// submitResponse POST /api/orders/submit 响应。
type submitResponse struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// executeResponse POST /api/orders/execute 响应，附带推送地址。
type executeResponse struct {
	OrderID      string `json:"orderId"`
	Message      string `json:"message"`
	WebsocketURL string `json:"websocketUrl"`
	Status       string `json:"status"`
}

// errorResponse 统一错误响应。
type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

// queueStatsResponse GET /api/queue/stats 响应。
type queueStatsResponse struct {
	Queue      interface{}    `json:"queue"`
	Websockets websocketStats `json:"websockets"`
}

type websocketStats struct {
	TotalConnections int `json:"totalConnections"`
}

// healthResponse GET /health 响应。
type healthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Queue      interface{} `json:"queue"`
	Websockets struct {
		Connections int `json:"connections"`
	} `json:"websockets"`
}
