package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// 压测工具：按给定速率向订单接口提交随机订单，周期性打印队列状态。

type submitRequest struct {
	Type        string  `json:"type"`
	TokenIn     string  `json:"tokenIn"`
	TokenOut    string  `json:"tokenOut"`
	AmountIn    float64 `json:"amountIn"`
	TargetPrice float64 `json:"targetPrice,omitempty"`
	AmountOut   float64 `json:"amountOut,omitempty"`
	LaunchTime  string  `json:"launchTime,omitempty"`
	Slippage    float64 `json:"slippage,omitempty"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "订单服务地址")
	total := flag.Int("n", 100, "提交订单总数")
	rate := flag.Float64("rate", 5, "每秒提交速率")
	seed := flag.Int64("seed", 0, "随机种子，0 表示按时间取")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	interval := time.Duration(float64(time.Second) / *rate)
	client := &http.Client{Timeout: 10 * time.Second}

	log.Printf("loadgen start: url=%s n=%d rate=%.1f/s seed=%d", *baseURL, *total, *rate, *seed)

	submitted, failed := 0, 0
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()
	submitTicker := time.NewTicker(interval)
	defer submitTicker.Stop()

	for submitted+failed < *total {
		select {
		case <-statsTicker.C:
			printStats(client, *baseURL)
		case <-submitTicker.C:
			if err := submitOne(client, *baseURL, randomOrder(rng)); err != nil {
				failed++
				log.Printf("submit failed: %v", err)
			} else {
				submitted++
			}
		}
	}

	log.Printf("loadgen done: submitted=%d failed=%d", submitted, failed)
	printStats(client, *baseURL)
}

// randomOrder 随机生成市价/限价/狙击单，比例约 6:3:1。
func randomOrder(rng *rand.Rand) submitRequest {
	req := submitRequest{
		TokenIn:  "SOL",
		TokenOut: "USDC",
		AmountIn: 1 + rng.Float64()*99,
		Slippage: 0.01,
	}
	switch r := rng.Float64(); {
	case r < 0.6:
		req.Type = "market"
	case r < 0.9:
		req.Type = "limit"
		// 目标价在基准价附近浮动，部分订单会等待触发
		req.TargetPrice = 90 + rng.Float64()*20
	default:
		req.Type = "sniper"
		req.LaunchTime = time.Now().Add(time.Duration(rng.Intn(30)) * time.Second).UTC().Format(time.RFC3339)
	}
	return req
}

func submitOne(client *http.Client, baseURL string, req submitRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := client.Post(baseURL+"/api/orders/submit", "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func printStats(client *http.Client, baseURL string) {
	resp, err := client.Get(baseURL + "/api/queue/stats")
	if err != nil {
		log.Printf("stats error: %v", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	log.Printf("queue stats: %s", body)
}
