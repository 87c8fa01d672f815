package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"order-engine-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	memStore := flag.Bool("memstore", false, "强制使用内存存储（忽略数据库配置）")
	noReload := flag.Bool("noreload", false, "关闭配置热更新")
	flag.Parse()

	// .env 不存在时静默跳过
	_ = godotenv.Load()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化容器失败: %v", err)
	}

	if err := c.Build(container.Options{
		ForceMemoryStore: *memStore,
		DisableHotReload: *noReload,
	}); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		_ = c.Stop()
		log.Fatalf("启动失败: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	c.Logger().Info("shutdown signal received")
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停止时出现错误: %v", err)
	}
}
