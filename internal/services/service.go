package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/capital"
	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/exchange"
	"github.com/life2you_mini/riskgate/internal/ledger"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/risk"
	"github.com/life2you_mini/riskgate/internal/storage"
)

// 队列任务处理超时时间
const outcomeProcessTimeout = 30 * time.Second

// RiskService 风控服务
// 持有所有风控组件，消费交易结果队列并对外提供仓位计算入口
type RiskService struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         *zap.Logger
	cfg            *config.Config
	store          storage.StateStore
	queue          *storage.QueueService
	capitalLedger  *ledger.RedisLedger
	drawdown       *risk.DrawdownBreaker
	lossStreak     *risk.LossStreakManager
	sizer          *risk.PositionSizer
	capitalMonitor *capital.Monitor
	wg             sync.WaitGroup
	isRunning      bool
	mutex          sync.Mutex
}

// NewRiskService 创建风控服务
func NewRiskService(
	parentCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) (*RiskService, error) {
	ctx, cancel := context.WithCancel(parentCtx)

	// 初始化Redis客户端
	redisClient, err := storage.NewRedisClient(cfg.Redis)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化Redis客户端失败: %w", err)
	}

	store := storage.NewRedisStateStore(redisClient, cfg.Redis.KeyPrefix, logger)
	queue := storage.NewQueueService(redisClient, cfg.Redis.KeyPrefix)
	capitalLedger := ledger.NewRedisLedger(redisClient, cfg.Redis.KeyPrefix, logger)

	// 组装风控组件
	drawdown := risk.NewDrawdownBreaker(cfg.Risk.Drawdown, cfg.Risk.AccountID, store, logger)
	lossStreak := risk.NewLossStreakManager(cfg.Risk.ConsecutiveLoss, cfg.Risk.AccountID, store, logger)
	daily := risk.NewDailyLossTracker(cfg.Risk.DailyLoss, store, capitalLedger, logger)
	concentration := risk.NewConcentrationChecker(cfg.Risk.Concentration, capitalLedger, logger)
	sizer := risk.NewPositionSizer(cfg.Risk, drawdown, lossStreak, daily, concentration, store, logger)

	// 资金监控依赖交易所权益数据源，未启用时跳过
	var capitalMonitor *capital.Monitor
	if cfg.Exchanges.Binance.Enabled {
		source := exchange.NewBinanceClient(cfg.Exchanges.Binance.APIKey, cfg.Exchanges.Binance.APISecret, logger)
		capitalMonitor = capital.NewMonitor(cfg.Capital, source, capitalLedger, drawdown, logger)
	} else {
		logger.Warn("未启用任何交易所，资金监控不会运行")
	}

	return &RiskService{
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger.With(zap.String("component", "risk_service")),
		cfg:            cfg,
		store:          store,
		queue:          queue,
		capitalLedger:  capitalLedger,
		drawdown:       drawdown,
		lossStreak:     lossStreak,
		sizer:          sizer,
		capitalMonitor: capitalMonitor,
	}, nil
}

// Start 启动风控服务
func (s *RiskService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("风控服务已在运行")
	}

	s.logger.Info("启动风控服务", zap.String("account_id", s.cfg.Risk.AccountID))
	s.isRunning = true

	// 启动资金监控
	if s.capitalMonitor != nil {
		go func() {
			if err := s.capitalMonitor.Start(s.ctx); err != nil && err != context.Canceled {
				s.logger.Error("资金监控运行结束", zap.Error(err))
			}
		}()
	}

	// 启动交易结果处理协程
	s.wg.Add(1)
	go s.processTradeOutcomes()

	return nil
}

// Stop 停止风控服务
func (s *RiskService) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return nil
	}

	s.logger.Info("停止风控服务")
	s.cancel()

	// 等待所有协程结束
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	// 等待最多5秒钟
	select {
	case <-done:
		s.logger.Info("风控服务已停止")
	case <-time.After(5 * time.Second):
		s.logger.Warn("风控服务停止超时")
	}

	if err := s.store.Close(context.Background()); err != nil {
		s.logger.Error("关闭Redis连接失败", zap.Error(err))
	}

	s.isRunning = false
	return nil
}

// processTradeOutcomes 处理交易结果队列
// 单协程消费保证连败状态串行更新
func (s *RiskService) processTradeOutcomes() {
	defer s.wg.Done()

	s.logger.Info("开始处理交易结果队列")

	for {
		// 检查上下文是否已取消
		select {
		case <-s.ctx.Done():
			s.logger.Info("结束交易结果处理")
			return
		default:
			// 继续处理
		}

		// 从队列获取交易结果
		result, err := s.queue.PopTradeResult(s.ctx, 5*time.Second)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("从交易结果队列获取任务失败", zap.Error(err))
			time.Sleep(1 * time.Second)
			continue
		}

		// 队列为空，继续下一轮
		if result == nil {
			continue
		}

		// 创建处理上下文
		processCtx, cancel := context.WithTimeout(s.ctx, outcomeProcessTimeout)

		s.logger.Info("处理交易结果",
			zap.String("trade_id", result.TradeID),
			zap.String("outcome", string(result.Outcome)),
			zap.String("realized_pnl", result.RealizedPnLSOL.String()))

		if _, err := s.lossStreak.RecordTradeOutcome(processCtx, result); err != nil {
			s.logger.Error("处理交易结果失败",
				zap.String("trade_id", result.TradeID),
				zap.Error(err))
		}

		cancel()
	}
}

// CalculatePositionSize 计算一笔信号的仓位
func (s *RiskService) CalculatePositionSize(ctx context.Context, req *models.PositionSizeRequest) (*models.SizingResult, error) {
	return s.sizer.CalculatePositionSize(ctx, req)
}

// ResetDrawdown 操作员复位回撤熔断
func (s *RiskService) ResetDrawdown(ctx context.Context, operator string) error {
	return s.drawdown.Reset(ctx, operator)
}

// ResetConsecutiveLoss 操作员复位连败状态
func (s *RiskService) ResetConsecutiveLoss(ctx context.Context, operator string) error {
	return s.lossStreak.Reset(ctx, operator)
}

// GetSystemStatus 获取当前系统状态
func (s *RiskService) GetSystemStatus(ctx context.Context) (models.SystemStatus, error) {
	return s.store.GetSystemStatus(ctx)
}

// Health 检查服务依赖健康状态
func (s *RiskService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
