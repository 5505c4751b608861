package risk

import (
	"github.com/shopspring/decimal"

	"github.com/life2you_mini/riskgate/internal/config"
)

// CalculateDrawdownPercent 计算回撤百分比
// 根据公式: Drawdown% = (Peak - Capital) / Peak * 100
// 峰值小于等于0时回撤视为0，避免除零和负基数
func CalculateDrawdownPercent(capital, peak decimal.Decimal) float64 {
	if peak.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	drawdown := peak.Sub(capital).Div(peak).InexactFloat64() * 100
	if drawdown < 0 {
		return 0
	}

	return drawdown
}

// SelectReductionTier 选取适用的回撤降仓档位
// 档位按阈值升序配置，返回阈值不超过当前回撤的最高档位
func SelectReductionTier(tiers []config.DrawdownTier, drawdownPct float64) (config.DrawdownTier, bool) {
	var selected config.DrawdownTier
	found := false

	for _, tier := range tiers {
		if drawdownPct >= tier.ThresholdPct {
			selected = tier
			found = true
		}
	}

	return selected, found
}

// ApplyReductionPct 按降仓比例缩减仓位
func ApplyReductionPct(size decimal.Decimal, reductionPct float64) decimal.Decimal {
	if reductionPct <= 0 {
		return size
	}
	if reductionPct >= 100 {
		return decimal.Zero
	}

	factor := decimal.NewFromFloat(1 - reductionPct/100)
	return size.Mul(factor)
}

// ApplySizeFactor 按连败降级系数缩减仓位
func ApplySizeFactor(size decimal.Decimal, factor float64) decimal.Decimal {
	return size.Mul(decimal.NewFromFloat(factor))
}

// CalculateRemainingCapacity 计算集中度上限下的剩余可用额度
// 返回值不会为负
func CalculateRemainingCapacity(portfolioValue decimal.Decimal, limitPct float64, currentValue decimal.Decimal) decimal.Decimal {
	limit := portfolioValue.Mul(decimal.NewFromFloat(limitPct / 100))
	capacity := limit.Sub(currentValue)
	if capacity.LessThan(decimal.Zero) {
		return decimal.Zero
	}

	return capacity
}

// CalculatePnLPercent 计算盈亏相对基准资金的百分比
// 基准小于等于0时视为0
func CalculatePnLPercent(pnl, base decimal.Decimal) float64 {
	if base.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	return pnl.Div(base).InexactFloat64() * 100
}

// DecimalMin 返回两个decimal中较小的一个
func DecimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
