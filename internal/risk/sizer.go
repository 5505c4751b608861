package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/storage"
)

// PositionSizer 仓位计算器
// 按固定顺序执行各风控闸门：当日亏损、持仓数、回撤、连败、集中度
// 闸门内部错误不向上抛出，除集中度外一律保守拦截
type PositionSizer struct {
	cfg           config.SizingConfig
	dailyCfg      config.DailyLossConfig
	accountID     string
	drawdown      *DrawdownBreaker
	lossStreak    *LossStreakManager
	daily         *DailyLossTracker
	concentration *ConcentrationChecker
	store         storage.StateStore
	logger        *zap.Logger
}

// NewPositionSizer 创建仓位计算器
func NewPositionSizer(
	riskCfg config.RiskConfig,
	drawdown *DrawdownBreaker,
	lossStreak *LossStreakManager,
	daily *DailyLossTracker,
	concentration *ConcentrationChecker,
	store storage.StateStore,
	logger *zap.Logger,
) *PositionSizer {
	return &PositionSizer{
		cfg:           riskCfg.Sizing,
		dailyCfg:      riskCfg.DailyLoss,
		accountID:     riskCfg.AccountID,
		drawdown:      drawdown,
		lossStreak:    lossStreak,
		daily:         daily,
		concentration: concentration,
		store:         store,
		logger:        logger.With(zap.String("component", "position_sizer")),
	}
}

// CalculatePositionSize 计算一笔信号的最终仓位
// 只有参数校验失败会返回错误，闸门拦截通过结果的Decision表达
func (s *PositionSizer) CalculatePositionSize(ctx context.Context, req *models.PositionSizeRequest) (*models.SizingResult, error) {
	result := &models.SizingResult{
		Decision:  models.DecisionApproved,
		Timestamp: time.Now().UTC(),
	}

	// 1. 参数校验
	if err := validateRequest(req); err != nil {
		result.Decision = models.DecisionRejected
		result.Reason = err.Error()
		return result, err
	}

	// 2. 按信号信心计算基础仓位
	size := decimal.NewFromFloat(s.cfg.BaseSizeSOL)
	if req.SignalScore >= s.cfg.HighConvictionThreshold {
		size = size.Mul(decimal.NewFromFloat(s.cfg.HighConvictionMultiplier))
		s.appendAudit(result, req, "高信心信号，基础仓位乘以%.2f", s.cfg.HighConvictionMultiplier)
	}
	if size.GreaterThan(req.AvailableBalanceSOL) {
		size = req.AvailableBalanceSOL
		s.appendAudit(result, req, "基础仓位受可用余额限制")
	}
	result.OriginalSize = size
	result.PreDrawdownSize = size

	// 3. 当日亏损闸门（优先于其他闸门，失败时保守拦截）
	if s.dailyCfg.Enabled {
		metrics, err := s.daily.Check(ctx)
		if err != nil {
			s.logger.Error("当日亏损检查失败，保守拦截", zap.Error(err), zap.String("signal_id", req.SignalID))
			return s.block(ctx, result, req, models.DecisionBlockedDailyLoss, "无法获取当日亏损指标，保守拦截", nil), nil
		}
		result.DailyMetrics = metrics
		if metrics.IsLimitHit {
			reason := fmt.Sprintf("当日亏损%.2f%%已达上限%.2f%%", -metrics.PnLPct, metrics.DailyLimitPct)
			result.DailyLossBlocked = true
			return s.block(ctx, result, req, models.DecisionBlockedDailyLoss, reason, nil), nil
		}
	}

	// 4. 最大持仓数闸门
	if req.CurrentPositionCount >= s.cfg.MaxOpenPositions {
		reason := fmt.Sprintf("持仓数%d已达上限%d", req.CurrentPositionCount, s.cfg.MaxOpenPositions)
		return s.block(ctx, result, req, models.DecisionBlockedMaxPositions, reason, nil), nil
	}

	// 5. 回撤闸门（失败时保守拦截）
	drawdownPct, reductionPct, trigger, err := s.drawdown.Evaluate(ctx)
	if err != nil {
		s.logger.Error("回撤状态评估失败，保守拦截", zap.Error(err), zap.String("signal_id", req.SignalID))
		return s.block(ctx, result, req, models.DecisionBlockedDrawdown, "无法评估回撤状态，保守拦截", nil), nil
	}
	result.DrawdownPct = drawdownPct
	result.DrawdownReductionPct = reductionPct

	if trigger != nil {
		reason := fmt.Sprintf("回撤%.2f%%已触发熔断（阈值%.2f%%）", trigger.ActualValue, trigger.ThresholdValue)
		return s.block(ctx, result, req, models.DecisionBlockedDrawdown, reason, trigger), nil
	}
	if reductionPct >= 100 {
		reason := fmt.Sprintf("回撤%.2f%%对应降仓比例100%%", drawdownPct)
		return s.block(ctx, result, req, models.DecisionBlockedDrawdown, reason, nil), nil
	}
	if reductionPct > 0 {
		size = ApplyReductionPct(size, reductionPct)
		s.appendAudit(result, req, "回撤%.2f%%，仓位缩减%.0f%%", drawdownPct, reductionPct)
	}

	// 6. 连败闸门（失败时保守拦截）
	adjustment, err := s.lossStreak.CalculateAdjustedSize(ctx, size)
	if err != nil {
		s.logger.Error("连败状态读取失败，保守拦截", zap.Error(err), zap.String("signal_id", req.SignalID))
		return s.block(ctx, result, req, models.DecisionBlockedConsecutiveLoss, "无法读取连败状态，保守拦截", nil), nil
	}
	result.ConsecutiveLosses = adjustment.LossCount
	result.SizingMode = adjustment.SizingMode

	if adjustment.SizingMode == models.SizingModePaused {
		return s.block(ctx, result, req, models.DecisionBlockedConsecutiveLoss, adjustment.Reason, nil), nil
	}
	if adjustment.SizeFactor < 1.0 {
		size = adjustment.AdjustedSize
		s.appendAudit(result, req, "连败%d次，仓位系数%.2f", adjustment.LossCount, adjustment.SizeFactor)
	}

	// 7. 集中度闸门（失败时放行，不拦截）
	if req.TokenAddress != "" {
		metrics, err := s.concentration.Check(ctx, req.TokenAddress, req.ClusterID, size)
		if err != nil {
			s.logger.Warn("集中度检查失败，按原仓位放行", zap.Error(err), zap.String("signal_id", req.SignalID))
			s.appendAudit(result, req, "集中度检查失败，未调整仓位")
		} else {
			result.Concentration = metrics
			if !metrics.Allowed {
				return s.block(ctx, result, req, models.DecisionBlockedConcentration, metrics.BlockReason, nil), nil
			}
			if metrics.WasAdjusted {
				size = metrics.MaxAllowedSOL
				s.appendAudit(result, req, "集中度限制，仓位下调至%s", size.String())
			}
		}
	}

	// 8. 最终决策
	result.FinalSize = size
	result.ShouldTrade = size.GreaterThan(decimal.Zero)
	if size.LessThan(result.OriginalSize) {
		result.Decision = models.DecisionReduced
		result.Reason = "仓位经风控调整后放行"
	} else {
		result.Decision = models.DecisionApproved
		result.Reason = "仓位全额放行"
	}

	s.logger.Info("仓位计算完成",
		zap.String("signal_id", req.SignalID),
		zap.String("decision", string(result.Decision)),
		zap.String("original_size", result.OriginalSize.String()),
		zap.String("final_size", result.FinalSize.String()))

	return result, nil
}

// block 构造拦截结果并按需落库审计记录
func (s *PositionSizer) block(ctx context.Context, result *models.SizingResult, req *models.PositionSizeRequest, decision models.Decision, reason string, trigger *models.CircuitBreakerTrigger) *models.SizingResult {
	result.Decision = decision
	result.ShouldTrade = false
	result.FinalSize = decimal.Zero
	result.Reason = reason

	s.logger.Warn("信号被风控拦截",
		zap.String("signal_id", req.SignalID),
		zap.String("decision", string(decision)),
		zap.String("reason", reason))

	// 熔断类拦截在审计模式下落库被拦截信号
	if req.Audit {
		var breakerType models.BreakerType
		switch decision {
		case models.DecisionBlockedDrawdown:
			breakerType = models.BreakerDrawdown
		case models.DecisionBlockedConsecutiveLoss:
			breakerType = models.BreakerConsecutiveLoss
		default:
			return result
		}

		signal := &models.BlockedSignal{
			ID:          newID("blocked"),
			AccountID:   s.accountID,
			SignalID:    req.SignalID,
			BreakerType: breakerType,
			Payload: fmt.Sprintf("score=%.2f balance=%s positions=%d token=%s reason=%s",
				req.SignalScore, req.AvailableBalanceSOL.String(), req.CurrentPositionCount, req.TokenAddress, reason),
			BlockedAt: time.Now().UTC(),
		}
		if trigger != nil {
			signal.TriggerID = trigger.ID
			signal.ThresholdValue = trigger.ThresholdValue
		}

		if err := s.store.AppendBlockedSignal(ctx, signal); err != nil {
			s.logger.Error("保存被拦截信号失败", zap.Error(err), zap.String("signal_id", req.SignalID))
		}
	}

	return result
}

// appendAudit 审计模式下追加计算过程说明
func (s *PositionSizer) appendAudit(result *models.SizingResult, req *models.PositionSizeRequest, format string, args ...interface{}) {
	if !req.Audit {
		return
	}
	result.AuditTrail = append(result.AuditTrail, fmt.Sprintf(format, args...))
}

// validateRequest 校验仓位计算请求参数
func validateRequest(req *models.PositionSizeRequest) error {
	if req.SignalID == "" {
		return &models.ValidationError{Field: "signal_id", Message: "不能为空"}
	}
	if req.SignalScore < 0 || req.SignalScore > 1 {
		return &models.ValidationError{Field: "signal_score", Message: fmt.Sprintf("必须在0到1之间，当前为%v", req.SignalScore)}
	}
	if req.AvailableBalanceSOL.LessThan(decimal.Zero) {
		return &models.ValidationError{Field: "available_balance_sol", Message: "不能为负数"}
	}
	if req.CurrentPositionCount < 0 {
		return &models.ValidationError{Field: "current_position_count", Message: "不能为负数"}
	}
	return nil
}
