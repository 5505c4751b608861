package capital

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/exchange"
	"github.com/life2you_mini/riskgate/internal/ledger"
	"github.com/life2you_mini/riskgate/internal/risk"
)

// DefaultPollInterval 默认资金轮询间隔
const DefaultPollInterval = 30 * time.Second

// Monitor 资金监控组件
// 周期性读取账户权益，写入账本并驱动回撤熔断器
type Monitor struct {
	source       exchange.EquitySource
	ledger       ledger.CapitalLedgerWriter
	drawdown     *risk.DrawdownBreaker
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewMonitor 创建资金监控组件
func NewMonitor(
	cfg config.CapitalConfig,
	source exchange.EquitySource,
	ledgerWriter ledger.CapitalLedgerWriter,
	drawdown *risk.DrawdownBreaker,
	logger *zap.Logger,
) *Monitor {
	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Monitor{
		source:       source,
		ledger:       ledgerWriter,
		drawdown:     drawdown,
		logger:       logger.With(zap.String("component", "capital_monitor")),
		pollInterval: interval,
	}
}

// Start 启动资金监控，阻塞直到上下文取消
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("启动资金监控器",
		zap.String("source", m.source.GetName()),
		zap.Duration("poll_interval", m.pollInterval))

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// 立即执行一次检查
	if err := m.Poll(ctx); err != nil {
		m.logger.Error("首次资金检查失败", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil {
				m.logger.Error("资金检查失败", zap.Error(err))
			}
		}
	}
}

// Poll 执行一次资金检查
// 权益写入账本后交给回撤熔断器评估
func (m *Monitor) Poll(ctx context.Context) error {
	equity, err := m.source.GetTotalEquity(ctx)
	if err != nil {
		return err
	}

	if equity.LessThan(decimal.Zero) {
		m.logger.Warn("账户权益为负，按0处理", zap.String("equity", equity.String()))
		equity = decimal.Zero
	}

	if err := m.ledger.SetCurrentCapital(ctx, equity); err != nil {
		return err
	}

	checkResult, err := m.drawdown.ObserveCapital(ctx, equity)
	if err != nil {
		return err
	}

	if checkResult.IsBreached {
		m.logger.Warn("回撤超过熔断阈值",
			zap.Float64("drawdown_pct", checkResult.Snapshot.DrawdownPercent),
			zap.Float64("threshold_pct", checkResult.ThresholdPercent))
	} else {
		m.logger.Debug("资金检查完成",
			zap.String("capital", checkResult.Snapshot.Capital.String()),
			zap.String("peak", checkResult.Snapshot.PeakCapital.String()),
			zap.Float64("drawdown_pct", checkResult.Snapshot.DrawdownPercent))
	}

	return nil
}
