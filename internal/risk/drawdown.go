package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/storage"
)

// DrawdownBreaker 回撤熔断器
// 跟踪资金峰值并在回撤越过阈值时熔断开仓
// 峰值读改写由互斥锁串行化，复位和资金观测不会相互覆盖
type DrawdownBreaker struct {
	cfg       config.DrawdownConfig
	accountID string
	store     storage.StateStore
	logger    *zap.Logger
	mutex     sync.Mutex
}

// NewDrawdownBreaker 创建回撤熔断器
func NewDrawdownBreaker(cfg config.DrawdownConfig, accountID string, store storage.StateStore, logger *zap.Logger) *DrawdownBreaker {
	return &DrawdownBreaker{
		cfg:       cfg,
		accountID: accountID,
		store:     store,
		logger:    logger.With(zap.String("component", "drawdown_breaker")),
	}
}

// ObserveCapital 记录一次资金观测并检查回撤
// 峰值资金单调不减，只有显式复位才会重置
func (b *DrawdownBreaker) ObserveCapital(ctx context.Context, capital decimal.Decimal) (*models.DrawdownCheckResult, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	// 1. 获取上一次快照，确定峰值
	peak := capital
	latest, err := b.store.GetLatestCapitalSnapshot(ctx)
	if err != nil {
		if err != storage.ErrNotFound {
			return nil, fmt.Errorf("获取资金快照失败: %w", err)
		}
	} else if latest.PeakCapital.GreaterThan(peak) {
		peak = latest.PeakCapital
	}

	// 2. 计算回撤
	drawdownPct := CalculateDrawdownPercent(capital, peak)
	drawdownAmount := peak.Sub(capital)
	if drawdownAmount.LessThan(decimal.Zero) {
		drawdownAmount = decimal.Zero
	}

	snapshot := &models.CapitalSnapshot{
		Timestamp:       time.Now().UTC(),
		Capital:         capital,
		PeakCapital:     peak,
		DrawdownAmount:  drawdownAmount,
		DrawdownPercent: drawdownPct,
	}

	// 3. 持久化快照
	if err := b.store.SaveCapitalSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("保存资金快照失败: %w", err)
	}

	result := &models.DrawdownCheckResult{
		Snapshot:         snapshot,
		ThresholdPercent: b.cfg.ThresholdPercent,
	}

	if !b.cfg.Enabled {
		return result, nil
	}

	// 4. 检查是否越过熔断阈值
	if drawdownPct < b.cfg.ThresholdPercent {
		return result, nil
	}

	result.IsBreached = true

	// 越界判定以计算结果为准，存储失败只记日志不撤销判定
	existing, err := b.store.GetActiveTrigger(ctx, b.accountID, models.BreakerDrawdown)
	if err == nil {
		result.Trigger = existing
		return result, nil
	}
	if err != storage.ErrNotFound {
		b.logger.Error("获取熔断触发记录失败", zap.Error(err))
	}

	// 5. 创建触发记录并暂停系统
	trigger := &models.CircuitBreakerTrigger{
		ID:                   newID("trigger"),
		AccountID:            b.accountID,
		BreakerType:          models.BreakerDrawdown,
		TriggeredAt:          time.Now().UTC(),
		ThresholdValue:       b.cfg.ThresholdPercent,
		ActualValue:          drawdownPct,
		CapitalAtTrigger:     capital,
		PeakCapitalAtTrigger: peak,
	}

	if err := b.store.SaveTrigger(ctx, trigger); err != nil {
		b.logger.Error("保存熔断触发记录失败", zap.Error(err))
	}

	if err := b.store.SetSystemStatus(ctx, models.StatusPausedDrawdown); err != nil {
		b.logger.Error("设置系统状态失败", zap.Error(err))
	}

	b.logger.Warn("回撤熔断触发",
		zap.String("account_id", b.accountID),
		zap.Float64("drawdown_percent", drawdownPct),
		zap.Float64("threshold_percent", b.cfg.ThresholdPercent),
		zap.String("capital", capital.String()),
		zap.String("peak_capital", peak.String()))

	result.Trigger = trigger
	return result, nil
}

// Evaluate 查询当前回撤状态，供仓位计算使用
// 返回当前回撤百分比、适用的降仓比例以及生效中的触发记录
func (b *DrawdownBreaker) Evaluate(ctx context.Context) (float64, float64, *models.CircuitBreakerTrigger, error) {
	if !b.cfg.Enabled {
		return 0, 0, nil, nil
	}

	// 生效中的触发记录优先
	trigger, err := b.store.GetActiveTrigger(ctx, b.accountID, models.BreakerDrawdown)
	if err == nil {
		return trigger.ActualValue, 100, trigger, nil
	}
	if err != storage.ErrNotFound {
		return 0, 0, nil, fmt.Errorf("获取熔断触发记录失败: %w", err)
	}

	// 从最新快照读取当前回撤
	latest, err := b.store.GetLatestCapitalSnapshot(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			return 0, 0, nil, nil
		}
		return 0, 0, nil, fmt.Errorf("获取资金快照失败: %w", err)
	}

	drawdownPct := latest.DrawdownPercent

	// 快照已越过熔断阈值时按熔断处理，不依赖触发记录是否落库成功
	if drawdownPct >= b.cfg.ThresholdPercent {
		return drawdownPct, 100, nil, nil
	}

	tier, found := SelectReductionTier(b.cfg.ReductionTiers, drawdownPct)
	if !found {
		return drawdownPct, 0, nil, nil
	}

	return drawdownPct, tier.SizeReductionPct, nil, nil
}

// Reset 操作员复位回撤熔断
// 复位同时将当前资金设为新的峰值基准
func (b *DrawdownBreaker) Reset(ctx context.Context, operator string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	trigger, err := b.store.GetActiveTrigger(ctx, b.accountID, models.BreakerDrawdown)
	if err != nil {
		if err == storage.ErrNotFound {
			return fmt.Errorf("没有生效中的回撤熔断")
		}
		return fmt.Errorf("获取熔断触发记录失败: %w", err)
	}

	now := time.Now().UTC()
	trigger.ResetAt = &now
	trigger.ResetBy = operator

	if err := b.store.ResetTrigger(ctx, trigger); err != nil {
		return fmt.Errorf("复位熔断触发记录失败: %w", err)
	}

	// 峰值基准重置为当前资金，避免复位后立即再次触发
	if latest, err := b.store.GetLatestCapitalSnapshot(ctx); err == nil {
		snapshot := &models.CapitalSnapshot{
			Timestamp:       now,
			Capital:         latest.Capital,
			PeakCapital:     latest.Capital,
			DrawdownAmount:  decimal.Zero,
			DrawdownPercent: 0,
		}
		if err := b.store.SaveCapitalSnapshot(ctx, snapshot); err != nil {
			b.logger.Error("复位后保存资金快照失败", zap.Error(err))
		}
	}

	// 连败熔断仍在暂停时保持对应状态
	status := models.StatusRunning
	if state, err := b.store.GetConsecutiveLossState(ctx, b.accountID); err == nil && !state.CanTrade() {
		status = models.StatusPausedConsecutiveLoss
	}
	if err := b.store.SetSystemStatus(ctx, status); err != nil {
		b.logger.Error("设置系统状态失败", zap.Error(err))
	}

	b.logger.Info("回撤熔断已复位",
		zap.String("account_id", b.accountID),
		zap.String("operator", operator),
		zap.String("trigger_id", trigger.ID))

	return nil
}
