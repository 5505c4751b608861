package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/ledger"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/storage"
)

// ConcentrationChecker 持仓集中度检查器
// 每次请求基于账本现算，不维护任何缓存状态
type ConcentrationChecker struct {
	cfg    config.ConcentrationConfig
	ledger ledger.CapitalLedger
	logger *zap.Logger
}

// NewConcentrationChecker 创建集中度检查器
func NewConcentrationChecker(cfg config.ConcentrationConfig, capitalLedger ledger.CapitalLedger, logger *zap.Logger) *ConcentrationChecker {
	return &ConcentrationChecker{
		cfg:    cfg,
		ledger: capitalLedger,
		logger: logger.With(zap.String("component", "concentration_checker")),
	}
}

// Check 检查指定币种和集群的集中度，返回允许的最大仓位
func (c *ConcentrationChecker) Check(ctx context.Context, tokenAddress, clusterID string, requestedSize decimal.Decimal) (*models.ConcentrationMetrics, error) {
	metrics := &models.ConcentrationMetrics{
		TokenAddress:  tokenAddress,
		ClusterID:     clusterID,
		MaxAllowedSOL: requestedSize,
		Allowed:       true,
	}

	// 1. 获取组合价值基准
	portfolioValue, err := c.ledger.GetCurrentCapital(ctx)
	if err != nil {
		if err != storage.ErrNotFound {
			return nil, fmt.Errorf("获取当前资金失败: %w", err)
		}
		portfolioValue = decimal.Zero
	}
	metrics.PortfolioValue = portfolioValue

	// 组合价值为0时视为冷启动，放行全部请求仓位
	if portfolioValue.LessThanOrEqual(decimal.Zero) {
		return metrics, nil
	}

	// 2. 汇总现有持仓的币种和集群敞口
	positions, err := c.ledger.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取未平仓持仓失败: %w", err)
	}

	tokenValue := decimal.Zero
	clusterValue := decimal.Zero
	positionsInCluster := 0
	hasTokenPosition := false

	for _, position := range positions {
		value := position.CurrentValue()
		if position.TokenAddress == tokenAddress {
			tokenValue = tokenValue.Add(value)
			hasTokenPosition = true
		}
		if clusterID != "" && position.ClusterID == clusterID {
			clusterValue = clusterValue.Add(value)
			positionsInCluster++
		}
	}

	metrics.TokenCurrentValue = tokenValue
	metrics.TokenCurrentPct = CalculatePnLPercent(tokenValue, portfolioValue)
	metrics.ClusterCurrentValue = clusterValue
	metrics.ClusterCurrentPct = CalculatePnLPercent(clusterValue, portfolioValue)
	metrics.PositionsInCluster = positionsInCluster

	// 3. 重复开仓检查
	if c.cfg.BlockDuplicate && hasTokenPosition {
		metrics.Allowed = false
		metrics.IsDuplicate = true
		metrics.MaxAllowedSOL = decimal.Zero
		metrics.BlockReason = fmt.Sprintf("币种%s已有未平仓持仓", tokenAddress)
		return metrics, nil
	}

	// 4. 集群持仓数上限检查
	if clusterID != "" && positionsInCluster >= c.cfg.MaxPositionsPerCluster {
		metrics.Allowed = false
		metrics.IsClusterMaxPositions = true
		metrics.MaxAllowedSOL = decimal.Zero
		metrics.BlockReason = fmt.Sprintf("集群%s持仓数已达上限%d", clusterID, c.cfg.MaxPositionsPerCluster)
		return metrics, nil
	}

	// 5. 剩余额度计算，记录实际起约束作用的限制
	tokenCapacity := CalculateRemainingCapacity(portfolioValue, c.cfg.MaxTokenPct, tokenValue)
	metrics.TokenRemainingCapacity = tokenCapacity

	maxAllowed := DecimalMin(requestedSize, tokenCapacity)
	bindingLimit := fmt.Sprintf("币种%s已达单币种上限%.1f%%", tokenAddress, c.cfg.MaxTokenPct)

	if clusterID != "" {
		clusterCapacity := CalculateRemainingCapacity(portfolioValue, c.cfg.MaxClusterPct, clusterValue)
		metrics.ClusterRemainingCapacity = clusterCapacity
		if clusterCapacity.LessThan(maxAllowed) {
			bindingLimit = fmt.Sprintf("集群%s已达集群上限%.1f%%", clusterID, c.cfg.MaxClusterPct)
		}
		maxAllowed = DecimalMin(maxAllowed, clusterCapacity)
	}

	if maxAllowed.LessThanOrEqual(decimal.Zero) {
		metrics.Allowed = false
		metrics.MaxAllowedSOL = decimal.Zero
		metrics.BlockReason = bindingLimit
		return metrics, nil
	}

	metrics.MaxAllowedSOL = maxAllowed
	if maxAllowed.LessThan(requestedSize) {
		metrics.WasAdjusted = true
		c.logger.Info("集中度限制下调仓位",
			zap.String("token_address", tokenAddress),
			zap.String("requested", requestedSize.String()),
			zap.String("max_allowed", maxAllowed.String()))
	}

	return metrics, nil
}
