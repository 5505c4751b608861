package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/ledger"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/storage"
)

// dayFormat 当日起始资金键的日期格式（UTC）
const dayFormat = "2006-01-02"

// DailyLossTracker 当日亏损跟踪器
// 指标每次请求由账本现算，账本不可用时调用方必须保守拦截
type DailyLossTracker struct {
	cfg    config.DailyLossConfig
	store  storage.StateStore
	ledger ledger.CapitalLedger
	logger *zap.Logger
}

// NewDailyLossTracker 创建当日亏损跟踪器
func NewDailyLossTracker(cfg config.DailyLossConfig, store storage.StateStore, capitalLedger ledger.CapitalLedger, logger *zap.Logger) *DailyLossTracker {
	return &DailyLossTracker{
		cfg:    cfg,
		store:  store,
		ledger: capitalLedger,
		logger: logger.With(zap.String("component", "daily_loss_tracker")),
	}
}

// Check 计算当日亏损指标
func (t *DailyLossTracker) Check(ctx context.Context) (*models.DailyLossMetrics, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// 1. 获取当日起始资金，首次检查时从账本捕获
	baseCapital, err := t.dayStartCapital(ctx, now.Format(dayFormat))
	if err != nil {
		return nil, err
	}

	// 2. 汇总当日已实现盈亏
	closed, err := t.ledger.GetClosedPositionsSince(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("获取当日已平仓持仓失败: %w", err)
	}

	realized := decimal.Zero
	for _, position := range closed {
		realized = realized.Add(position.RealizedPnLSOL)
	}

	// 3. 汇总未实现盈亏
	open, err := t.ledger.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取未平仓持仓失败: %w", err)
	}

	unrealized := decimal.Zero
	for _, position := range open {
		unrealized = unrealized.Add(position.UnrealizedPnLSOL)
	}

	total := realized.Add(unrealized)
	pnlPct := CalculatePnLPercent(total, baseCapital)

	metrics := &models.DailyLossMetrics{
		RealizedPnL:       realized,
		UnrealizedPnL:     unrealized,
		TotalPnL:          total,
		PnLPct:            pnlPct,
		DailyLimitPct:     t.cfg.DailyLimitPct,
		LimitRemainingPct: t.cfg.DailyLimitPct,
	}

	// 4. 起始资金为0时视为冷启动，不触发限制
	if baseCapital.LessThanOrEqual(decimal.Zero) {
		return metrics, nil
	}

	lossPct := -pnlPct
	if lossPct > 0 {
		metrics.LimitUsagePct = lossPct / t.cfg.DailyLimitPct * 100
		if metrics.LimitUsagePct > 100 {
			metrics.LimitUsagePct = 100
		}
		metrics.LimitRemainingPct = t.cfg.DailyLimitPct - lossPct
		if metrics.LimitRemainingPct < 0 {
			metrics.LimitRemainingPct = 0
		}
	}

	metrics.IsLimitHit = lossPct >= t.cfg.DailyLimitPct
	metrics.IsWarningZone = !metrics.IsLimitHit && metrics.LimitUsagePct >= t.cfg.WarningThresholdPct*100

	if metrics.IsWarningZone {
		t.logger.Warn("当日亏损接近上限",
			zap.Float64("pnl_pct", pnlPct),
			zap.Float64("daily_limit_pct", t.cfg.DailyLimitPct),
			zap.Float64("limit_usage_pct", metrics.LimitUsagePct))
	}

	return metrics, nil
}

// dayStartCapital 获取当日起始资金
// 不存在时从账本捕获当前资金作为基准，仅首次写入生效
func (t *DailyLossTracker) dayStartCapital(ctx context.Context, day string) (decimal.Decimal, error) {
	capital, err := t.store.GetDayStartCapital(ctx, day)
	if err == nil {
		return capital, nil
	}
	if err != storage.ErrNotFound {
		return decimal.Zero, err
	}

	current, err := t.ledger.GetCurrentCapital(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			// 账本尚无资金记录，冷启动
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("获取当前资金失败: %w", err)
	}

	ok, err := t.store.SetDayStartCapital(ctx, day, current)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		// 并发写入时以先写入的为准
		return t.store.GetDayStartCapital(ctx, day)
	}

	t.logger.Info("捕获当日起始资金",
		zap.String("day", day),
		zap.String("capital", current.String()))

	return current, nil
}
