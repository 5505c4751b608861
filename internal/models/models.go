package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SizingMode 连败降级状态机的仓位模式
type SizingMode string

const (
	SizingModeNormal   SizingMode = "NORMAL"   // 正常仓位
	SizingModeReduced  SizingMode = "REDUCED"  // 降低仓位
	SizingModeCritical SizingMode = "CRITICAL" // 进一步降低仓位
	SizingModePaused   SizingMode = "PAUSED"   // 暂停交易
)

// TradeOutcome 单笔交易结果分类
type TradeOutcome string

const (
	OutcomeWin       TradeOutcome = "WIN"
	OutcomeLoss      TradeOutcome = "LOSS"
	OutcomeBreakeven TradeOutcome = "BREAKEVEN"
)

// BreakerType 熔断器类型
type BreakerType string

const (
	BreakerDrawdown        BreakerType = "DRAWDOWN"
	BreakerConsecutiveLoss BreakerType = "CONSECUTIVE_LOSS"
)

// SystemStatus 风控系统运行状态
type SystemStatus string

const (
	StatusRunning               SystemStatus = "RUNNING"
	StatusPausedDrawdown        SystemStatus = "PAUSED_DRAWDOWN"
	StatusPausedConsecutiveLoss SystemStatus = "PAUSED_CONSECUTIVE_LOSS"
)

// Decision 仓位决策结果类型
type Decision string

const (
	DecisionApproved               Decision = "APPROVED"
	DecisionReduced                Decision = "REDUCED"
	DecisionBlockedDailyLoss       Decision = "BLOCKED_DAILY_LOSS"
	DecisionBlockedMaxPositions    Decision = "BLOCKED_MAX_POSITIONS"
	DecisionBlockedDrawdown        Decision = "BLOCKED_DRAWDOWN"
	DecisionBlockedConsecutiveLoss Decision = "BLOCKED_CONSECUTIVE_LOSS"
	DecisionBlockedConcentration   Decision = "BLOCKED_CONCENTRATION"
	DecisionRejected               Decision = "REJECTED"
)

// 持仓状态常量
const (
	PositionStatusOpen    = "OPEN"
	PositionStatusPartial = "PARTIAL"
	PositionStatusClosed  = "CLOSED"
)

// CapitalSnapshot 资金快照，每次资金观测时创建
// 峰值资金单调不减，峰值小于等于0时回撤按0处理
type CapitalSnapshot struct {
	Timestamp       time.Time       `json:"timestamp"`
	Capital         decimal.Decimal `json:"capital"`
	PeakCapital     decimal.Decimal `json:"peak_capital"`
	DrawdownAmount  decimal.Decimal `json:"drawdown_amount"`
	DrawdownPercent float64         `json:"drawdown_percent"`
}

// CircuitBreakerTrigger 熔断触发审计记录
// 创建后不可变，只有复位字段（ResetAt/ResetBy）可以被填写
type CircuitBreakerTrigger struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"account_id"`
	BreakerType          BreakerType     `json:"breaker_type"`
	TriggeredAt          time.Time       `json:"triggered_at"`
	ThresholdValue       float64         `json:"threshold_value"`
	ActualValue          float64         `json:"actual_value"`
	CapitalAtTrigger     decimal.Decimal `json:"capital_at_trigger"`
	PeakCapitalAtTrigger decimal.Decimal `json:"peak_capital_at_trigger"`
	ResetAt              *time.Time      `json:"reset_at,omitempty"`
	ResetBy              string          `json:"reset_by,omitempty"`
}

// IsActive 触发记录是否仍然生效（尚未复位）
func (t *CircuitBreakerTrigger) IsActive() bool {
	return t.ResetAt == nil
}

// ConsecutiveLossState 连败状态，每个账户一条，每次记录交易结果后持久化
type ConsecutiveLossState struct {
	AccountID            string       `json:"account_id"`
	ConsecutiveLossCount int          `json:"consecutive_loss_count"`
	SizingMode           SizingMode   `json:"sizing_mode"`
	CurrentSizeFactor    float64      `json:"current_size_factor"`
	LastTradeOutcome     TradeOutcome `json:"last_trade_outcome,omitempty"`
	StreakStartedAt      *time.Time   `json:"streak_started_at,omitempty"`
	LastUpdated          time.Time    `json:"last_updated"`
}

// NewConsecutiveLossState 创建初始连败状态
func NewConsecutiveLossState(accountID string) *ConsecutiveLossState {
	return &ConsecutiveLossState{
		AccountID:         accountID,
		SizingMode:        SizingModeNormal,
		CurrentSizeFactor: 1.0,
		LastUpdated:       time.Now().UTC(),
	}
}

// CanTrade 当前模式是否允许开仓
func (s *ConsecutiveLossState) CanTrade() bool {
	return s.SizingMode != SizingModePaused
}

// LossStreakEvent 仓位模式切换事件（追加写审计表）
type LossStreakEvent struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	OldMode   SizingMode `json:"old_mode"`
	NewMode   SizingMode `json:"new_mode"`
	OldFactor float64    `json:"old_factor"`
	NewFactor float64    `json:"new_factor"`
	LossCount int        `json:"loss_count"`
	Timestamp time.Time  `json:"timestamp"`
}

// BlockedSignal 被熔断器拦截的信号审计记录
type BlockedSignal struct {
	ID             string      `json:"id"`
	AccountID      string      `json:"account_id"`
	SignalID       string      `json:"signal_id"`
	BreakerType    BreakerType `json:"breaker_type"`
	TriggerID      string      `json:"trigger_id,omitempty"`
	ThresholdValue float64     `json:"threshold_value"`
	Payload        string      `json:"payload,omitempty"`
	BlockedAt      time.Time   `json:"blocked_at"`
}

// DailyLossMetrics 当日亏损指标，每次请求由账本现算，不持久化
type DailyLossMetrics struct {
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
	PnLPct            float64         `json:"pnl_pct"`
	DailyLimitPct     float64         `json:"daily_limit_pct"`
	LimitUsagePct     float64         `json:"limit_usage_pct"`
	LimitRemainingPct float64         `json:"limit_remaining_pct"`
	IsLimitHit        bool            `json:"is_limit_hit"`
	IsWarningZone     bool            `json:"is_warning_zone"`
}

// ConcentrationMetrics 集中度检查结果，每次请求现算
type ConcentrationMetrics struct {
	TokenAddress             string          `json:"token_address"`
	ClusterID                string          `json:"cluster_id,omitempty"`
	PortfolioValue           decimal.Decimal `json:"portfolio_value"`
	TokenCurrentValue        decimal.Decimal `json:"token_current_value"`
	TokenCurrentPct          float64         `json:"token_current_pct"`
	TokenRemainingCapacity   decimal.Decimal `json:"token_remaining_capacity"`
	ClusterCurrentValue      decimal.Decimal `json:"cluster_current_value"`
	ClusterCurrentPct        float64         `json:"cluster_current_pct"`
	ClusterRemainingCapacity decimal.Decimal `json:"cluster_remaining_capacity"`
	PositionsInCluster       int             `json:"positions_in_cluster"`
	MaxAllowedSOL            decimal.Decimal `json:"max_allowed_sol"`
	Allowed                  bool            `json:"allowed"`
	IsDuplicate              bool            `json:"is_duplicate"`
	IsClusterMaxPositions    bool            `json:"is_cluster_max_positions"`
	WasAdjusted              bool            `json:"was_adjusted"`
	BlockReason              string          `json:"block_reason,omitempty"`
}

// Position 账本中的持仓记录
type Position struct {
	ID               string          `json:"id"`
	TokenAddress     string          `json:"token_address"`
	ClusterID        string          `json:"cluster_id,omitempty"`
	Status           string          `json:"status"`
	EntryAmountSOL   decimal.Decimal `json:"entry_amount_sol"`
	UnrealizedPnLSOL decimal.Decimal `json:"unrealized_pnl_sol"`
	RealizedPnLSOL   decimal.Decimal `json:"realized_pnl_sol"`
	OpenedAt         time.Time       `json:"opened_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
}

// CurrentValue 持仓当前价值（入场金额加未实现盈亏）
func (p *Position) CurrentValue() decimal.Decimal {
	return p.EntryAmountSOL.Add(p.UnrealizedPnLSOL)
}

// TradeResult 结算流程回报的已平仓交易结果
type TradeResult struct {
	TradeID        string          `json:"trade_id"`
	AccountID      string          `json:"account_id"`
	TokenAddress   string          `json:"token_address,omitempty"`
	Outcome        TradeOutcome    `json:"outcome"`
	RealizedPnLSOL decimal.Decimal `json:"realized_pnl_sol"`
	ClosedAt       time.Time       `json:"closed_at"`
}

// PositionSizeRequest 仓位计算请求
type PositionSizeRequest struct {
	SignalID             string          `json:"signal_id"`
	SignalScore          float64         `json:"signal_score"`
	AvailableBalanceSOL  decimal.Decimal `json:"available_balance_sol"`
	CurrentPositionCount int             `json:"current_position_count"`
	TokenAddress         string          `json:"token_address,omitempty"`
	ClusterID            string          `json:"cluster_id,omitempty"`
	Audit                bool            `json:"audit"`
}

// SizingResult 仓位计算结果，保留各阶段中间值供审计
type SizingResult struct {
	Decision             Decision              `json:"decision"`
	ShouldTrade          bool                  `json:"should_trade"`
	OriginalSize         decimal.Decimal       `json:"original_size"`
	PreDrawdownSize      decimal.Decimal       `json:"pre_drawdown_size"`
	FinalSize            decimal.Decimal       `json:"final_size"`
	DrawdownPct          float64               `json:"drawdown_pct"`
	DrawdownReductionPct float64               `json:"drawdown_reduction_pct"`
	ConsecutiveLosses    int                   `json:"consecutive_losses"`
	SizingMode           SizingMode            `json:"sizing_mode,omitempty"`
	DailyLossBlocked     bool                  `json:"daily_loss_blocked"`
	DailyMetrics         *DailyLossMetrics     `json:"daily_metrics,omitempty"`
	Concentration        *ConcentrationMetrics `json:"concentration,omitempty"`
	Reason               string                `json:"reason"`
	AuditTrail           []string              `json:"audit_trail,omitempty"`
	Timestamp            time.Time             `json:"timestamp"`
}

// SizeAdjustmentResult 连败降级后的仓位调整结果
type SizeAdjustmentResult struct {
	BaseSize     decimal.Decimal `json:"base_size"`
	AdjustedSize decimal.Decimal `json:"adjusted_size"`
	SizeFactor   float64         `json:"size_factor"`
	SizingMode   SizingMode      `json:"sizing_mode"`
	LossCount    int             `json:"loss_count"`
	Reason       string          `json:"reason"`
}

// DrawdownCheckResult 回撤检查结果
type DrawdownCheckResult struct {
	Snapshot         *CapitalSnapshot       `json:"snapshot"`
	ThresholdPercent float64                `json:"threshold_percent"`
	IsBreached       bool                   `json:"is_breached"`
	Trigger          *CircuitBreakerTrigger `json:"trigger,omitempty"`
}

// ValidationError 请求参数违反不变量时返回的校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: %s: %s", e.Field, e.Message)
}
