package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/daoreader/internal/config"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/reader"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（为空时使用默认配置）")
	logLevel := flag.String("log-level", "", "覆盖配置中的日志级别")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := logger.Init(cfg.Log.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] daoreader 启动中 (remote=%s, local=%s)", cfg.Speech.Remote.Provider, cfg.Speech.Local.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	app, err := reader.New(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建阅读器失败: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "阅读器运行出错: %v\n", err)
		os.Exit(1)
	}

	logger.Info("[main] daoreader 已停止")
}
