package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/riskgate/internal/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// StateStore 风控状态存储接口
// 连败状态与模式切换事件必须在同一事务中写入
type StateStore interface {
	// 连败状态
	GetConsecutiveLossState(ctx context.Context, accountID string) (*models.ConsecutiveLossState, error)
	SaveConsecutiveLossState(ctx context.Context, state *models.ConsecutiveLossState, event *models.LossStreakEvent) error
	GetLossStreakEvents(ctx context.Context, accountID string, limit int) ([]*models.LossStreakEvent, error)

	// 资金快照
	SaveCapitalSnapshot(ctx context.Context, snapshot *models.CapitalSnapshot) error
	GetLatestCapitalSnapshot(ctx context.Context) (*models.CapitalSnapshot, error)
	GetCapitalHistory(ctx context.Context, start, end time.Time) ([]*models.CapitalSnapshot, error)

	// 当日起始资金，仅首次写入生效
	SetDayStartCapital(ctx context.Context, day string, capital decimal.Decimal) (bool, error)
	GetDayStartCapital(ctx context.Context, day string) (decimal.Decimal, error)

	// 熔断触发记录
	SaveTrigger(ctx context.Context, trigger *models.CircuitBreakerTrigger) error
	GetActiveTrigger(ctx context.Context, accountID string, breakerType models.BreakerType) (*models.CircuitBreakerTrigger, error)
	ResetTrigger(ctx context.Context, trigger *models.CircuitBreakerTrigger) error

	// 被拦截信号审计
	AppendBlockedSignal(ctx context.Context, signal *models.BlockedSignal) error
	GetBlockedSignals(ctx context.Context, limit int) ([]*models.BlockedSignal, error)

	// 系统状态
	SetSystemStatus(ctx context.Context, status models.SystemStatus) error
	GetSystemStatus(ctx context.Context) (models.SystemStatus, error)

	// 健康检查
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}
