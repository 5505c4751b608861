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

// LossStreakManager 连败熔断管理器
// 交易结果必须按平仓顺序逐笔记录，状态变更由互斥锁串行化
type LossStreakManager struct {
	cfg       config.ConsecutiveLossConfig
	accountID string
	store     storage.StateStore
	logger    *zap.Logger
	mutex     sync.Mutex
}

// NewLossStreakManager 创建连败熔断管理器
func NewLossStreakManager(cfg config.ConsecutiveLossConfig, accountID string, store storage.StateStore, logger *zap.Logger) *LossStreakManager {
	return &LossStreakManager{
		cfg:       cfg,
		accountID: accountID,
		store:     store,
		logger:    logger.With(zap.String("component", "loss_streak_manager")),
	}
}

// RecordTradeOutcome 记录一笔交易结果并推进状态机
// 盈利无条件重置连败计数，保本不改变计数和模式
func (m *LossStreakManager) RecordTradeOutcome(ctx context.Context, result *models.TradeResult) (*models.ConsecutiveLossState, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// 1. 获取当前状态
	state, err := m.store.GetConsecutiveLossState(ctx, m.accountID)
	if err != nil {
		if err != storage.ErrNotFound {
			return nil, fmt.Errorf("获取连败状态失败: %w", err)
		}
		state = models.NewConsecutiveLossState(m.accountID)
	}

	oldMode := state.SizingMode
	oldFactor := state.CurrentSizeFactor

	// 2. 按交易结果推进状态机
	switch result.Outcome {
	case models.OutcomeWin:
		state.ConsecutiveLossCount = 0
		state.SizingMode = models.SizingModeNormal
		state.CurrentSizeFactor = 1.0
		state.StreakStartedAt = nil

	case models.OutcomeLoss:
		state.ConsecutiveLossCount++
		if state.ConsecutiveLossCount == 1 {
			startedAt := result.ClosedAt
			state.StreakStartedAt = &startedAt
		}
		m.applyLossThresholds(state)

	case models.OutcomeBreakeven:
		// 保本不影响计数和模式

	default:
		return nil, fmt.Errorf("未知的交易结果类型: %s", result.Outcome)
	}

	state.LastTradeOutcome = result.Outcome
	state.LastUpdated = time.Now().UTC()

	// 3. 模式变化时生成切换事件，与状态在同一事务中落库
	var event *models.LossStreakEvent
	if state.SizingMode != oldMode {
		event = &models.LossStreakEvent{
			ID:        newID("streak_event"),
			AccountID: m.accountID,
			OldMode:   oldMode,
			NewMode:   state.SizingMode,
			OldFactor: oldFactor,
			NewFactor: state.CurrentSizeFactor,
			LossCount: state.ConsecutiveLossCount,
			Timestamp: state.LastUpdated,
		}
	}

	if err := m.store.SaveConsecutiveLossState(ctx, state, event); err != nil {
		return nil, fmt.Errorf("保存连败状态失败: %w", err)
	}

	if event != nil {
		m.logger.Warn("仓位模式切换",
			zap.String("account_id", m.accountID),
			zap.String("old_mode", string(event.OldMode)),
			zap.String("new_mode", string(event.NewMode)),
			zap.Int("loss_count", event.LossCount),
			zap.Float64("new_factor", event.NewFactor))

		// 进入或离开暂停状态时同步触发记录和系统状态
		if state.SizingMode == models.SizingModePaused {
			trigger := &models.CircuitBreakerTrigger{
				ID:             newID("trigger"),
				AccountID:      m.accountID,
				BreakerType:    models.BreakerConsecutiveLoss,
				TriggeredAt:    state.LastUpdated,
				ThresholdValue: float64(m.cfg.CriticalThreshold),
				ActualValue:    float64(state.ConsecutiveLossCount),
			}
			if err := m.store.SaveTrigger(ctx, trigger); err != nil {
				m.logger.Error("保存熔断触发记录失败", zap.Error(err))
			}
			if err := m.store.SetSystemStatus(ctx, models.StatusPausedConsecutiveLoss); err != nil {
				m.logger.Error("设置系统状态失败", zap.Error(err))
			}
		} else if oldMode == models.SizingModePaused {
			m.resetActiveTrigger(ctx, "auto_win_reset")
			m.restoreSystemStatus(ctx)
		}
	}

	return state, nil
}

// applyLossThresholds 按连败次数确定模式和系数
func (m *LossStreakManager) applyLossThresholds(state *models.ConsecutiveLossState) {
	count := state.ConsecutiveLossCount

	if count >= m.cfg.CriticalThreshold {
		if m.cfg.CriticalAction == config.CriticalActionFurtherReduce {
			state.SizingMode = models.SizingModeCritical
			state.CurrentSizeFactor = m.cfg.FurtherReductionFactor
		} else {
			state.SizingMode = models.SizingModePaused
			state.CurrentSizeFactor = 0
		}
		return
	}

	if count >= m.cfg.ReductionThreshold {
		state.SizingMode = models.SizingModeReduced
		state.CurrentSizeFactor = m.cfg.ReductionFactor
		return
	}

	state.SizingMode = models.SizingModeNormal
	state.CurrentSizeFactor = 1.0
}

// CurrentState 获取当前连败状态，不存在时返回初始状态
func (m *LossStreakManager) CurrentState(ctx context.Context) (*models.ConsecutiveLossState, error) {
	state, err := m.store.GetConsecutiveLossState(ctx, m.accountID)
	if err != nil {
		if err == storage.ErrNotFound {
			return models.NewConsecutiveLossState(m.accountID), nil
		}
		return nil, fmt.Errorf("获取连败状态失败: %w", err)
	}

	return state, nil
}

// CalculateAdjustedSize 按当前连败系数调整仓位
// 纯读操作，可重复调用且不改变状态
func (m *LossStreakManager) CalculateAdjustedSize(ctx context.Context, baseSize decimal.Decimal) (*models.SizeAdjustmentResult, error) {
	state, err := m.CurrentState(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.SizeAdjustmentResult{
		BaseSize:   baseSize,
		SizeFactor: state.CurrentSizeFactor,
		SizingMode: state.SizingMode,
		LossCount:  state.ConsecutiveLossCount,
	}

	switch state.SizingMode {
	case models.SizingModePaused:
		result.AdjustedSize = decimal.Zero
		result.Reason = fmt.Sprintf("连败%d次，交易已暂停", state.ConsecutiveLossCount)
	case models.SizingModeNormal:
		result.AdjustedSize = baseSize
		result.Reason = "正常仓位"
	default:
		result.AdjustedSize = ApplySizeFactor(baseSize, state.CurrentSizeFactor)
		result.Reason = fmt.Sprintf("连败%d次，仓位系数%.2f", state.ConsecutiveLossCount, state.CurrentSizeFactor)
	}

	return result, nil
}

// Reset 操作员复位连败状态
func (m *LossStreakManager) Reset(ctx context.Context, operator string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	state, err := m.store.GetConsecutiveLossState(ctx, m.accountID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil // 没有状态无需复位
		}
		return fmt.Errorf("获取连败状态失败: %w", err)
	}

	oldMode := state.SizingMode
	oldFactor := state.CurrentSizeFactor

	state.ConsecutiveLossCount = 0
	state.SizingMode = models.SizingModeNormal
	state.CurrentSizeFactor = 1.0
	state.StreakStartedAt = nil
	state.LastUpdated = time.Now().UTC()

	var event *models.LossStreakEvent
	if oldMode != models.SizingModeNormal {
		event = &models.LossStreakEvent{
			ID:        newID("streak_event"),
			AccountID: m.accountID,
			OldMode:   oldMode,
			NewMode:   models.SizingModeNormal,
			OldFactor: oldFactor,
			NewFactor: 1.0,
			LossCount: 0,
			Timestamp: state.LastUpdated,
		}
	}

	if err := m.store.SaveConsecutiveLossState(ctx, state, event); err != nil {
		return fmt.Errorf("保存连败状态失败: %w", err)
	}

	if oldMode == models.SizingModePaused {
		m.resetActiveTrigger(ctx, operator)
		m.restoreSystemStatus(ctx)
	}

	m.logger.Info("连败状态已复位",
		zap.String("account_id", m.accountID),
		zap.String("operator", operator),
		zap.String("old_mode", string(oldMode)))

	return nil
}

// resetActiveTrigger 复位生效中的连败触发记录
func (m *LossStreakManager) resetActiveTrigger(ctx context.Context, resetBy string) {
	trigger, err := m.store.GetActiveTrigger(ctx, m.accountID, models.BreakerConsecutiveLoss)
	if err != nil {
		if err != storage.ErrNotFound {
			m.logger.Error("获取熔断触发记录失败", zap.Error(err))
		}
		return
	}

	now := time.Now().UTC()
	trigger.ResetAt = &now
	trigger.ResetBy = resetBy

	if err := m.store.ResetTrigger(ctx, trigger); err != nil {
		m.logger.Error("复位熔断触发记录失败", zap.Error(err))
	}
}

// restoreSystemStatus 离开暂停状态时恢复系统状态
// 回撤熔断仍在生效时保持对应的暂停状态
func (m *LossStreakManager) restoreSystemStatus(ctx context.Context) {
	status := models.StatusRunning
	if _, err := m.store.GetActiveTrigger(ctx, m.accountID, models.BreakerDrawdown); err == nil {
		status = models.StatusPausedDrawdown
	}
	if err := m.store.SetSystemStatus(ctx, status); err != nil {
		m.logger.Error("设置系统状态失败", zap.Error(err))
	}
}
