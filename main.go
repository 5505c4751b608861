package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/logger"
	"github.com/life2you_mini/riskgate/internal/services"
)

var (
	configFile = flag.String("config", "config/config.yaml", "配置文件路径")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	bootCfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logger.NewLogger(bootCfg.System.LogDir, bootCfg.System.LogLevel)
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("加载配置成功", zap.String("配置文件", *configFile))

	// 启动配置服务并监听文件变更
	cfgService, err := config.NewService(*configFile, log.Logger)
	if err != nil {
		log.Fatal("创建配置服务失败", zap.Error(err))
	}
	cfgService.Watch()
	cfg := cfgService.Get()

	// 创建上下文，用于处理信号
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// 创建服务
	service, err := services.NewRiskService(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("创建风控服务失败", zap.Error(err))
	}

	// 启动服务
	if err := service.Start(); err != nil {
		log.Fatal("启动风控服务失败", zap.Error(err))
	}
	log.Info("风控服务已启动", zap.String("account_id", cfg.Risk.AccountID))

	// 等待终止信号
	sig := <-signalChan
	log.Info("接收到信号，准备关闭服务", zap.String("signal", sig.String()))

	// 停止服务
	if err := service.Stop(); err != nil {
		log.Error("服务关闭失败", zap.Error(err))
		os.Exit(1)
	}

	log.Info("服务已优雅关闭")
}
