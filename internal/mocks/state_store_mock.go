package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/riskgate/internal/models"
)

// MockStateStore 状态存储的模拟实现
type MockStateStore struct {
	mock.Mock
}

// GetConsecutiveLossState 获取连败状态的模拟实现
func (m *MockStateStore) GetConsecutiveLossState(ctx context.Context, accountID string) (*models.ConsecutiveLossState, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsecutiveLossState), args.Error(1)
}

// SaveConsecutiveLossState 保存连败状态的模拟实现
func (m *MockStateStore) SaveConsecutiveLossState(ctx context.Context, state *models.ConsecutiveLossState, event *models.LossStreakEvent) error {
	args := m.Called(ctx, state, event)
	return args.Error(0)
}

// GetLossStreakEvents 获取模式切换事件的模拟实现
func (m *MockStateStore) GetLossStreakEvents(ctx context.Context, accountID string, limit int) ([]*models.LossStreakEvent, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LossStreakEvent), args.Error(1)
}

// SaveCapitalSnapshot 保存资金快照的模拟实现
func (m *MockStateStore) SaveCapitalSnapshot(ctx context.Context, snapshot *models.CapitalSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

// GetLatestCapitalSnapshot 获取最新资金快照的模拟实现
func (m *MockStateStore) GetLatestCapitalSnapshot(ctx context.Context) (*models.CapitalSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CapitalSnapshot), args.Error(1)
}

// GetCapitalHistory 获取资金快照历史的模拟实现
func (m *MockStateStore) GetCapitalHistory(ctx context.Context, start, end time.Time) ([]*models.CapitalSnapshot, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CapitalSnapshot), args.Error(1)
}

// SetDayStartCapital 写入当日起始资金的模拟实现
func (m *MockStateStore) SetDayStartCapital(ctx context.Context, day string, capital decimal.Decimal) (bool, error) {
	args := m.Called(ctx, day, capital)
	return args.Bool(0), args.Error(1)
}

// GetDayStartCapital 获取当日起始资金的模拟实现
func (m *MockStateStore) GetDayStartCapital(ctx context.Context, day string) (decimal.Decimal, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// SaveTrigger 保存熔断触发记录的模拟实现
func (m *MockStateStore) SaveTrigger(ctx context.Context, trigger *models.CircuitBreakerTrigger) error {
	args := m.Called(ctx, trigger)
	return args.Error(0)
}

// GetActiveTrigger 获取生效触发记录的模拟实现
func (m *MockStateStore) GetActiveTrigger(ctx context.Context, accountID string, breakerType models.BreakerType) (*models.CircuitBreakerTrigger, error) {
	args := m.Called(ctx, accountID, breakerType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CircuitBreakerTrigger), args.Error(1)
}

// ResetTrigger 复位触发记录的模拟实现
func (m *MockStateStore) ResetTrigger(ctx context.Context, trigger *models.CircuitBreakerTrigger) error {
	args := m.Called(ctx, trigger)
	return args.Error(0)
}

// AppendBlockedSignal 追加被拦截信号的模拟实现
func (m *MockStateStore) AppendBlockedSignal(ctx context.Context, signal *models.BlockedSignal) error {
	args := m.Called(ctx, signal)
	return args.Error(0)
}

// GetBlockedSignals 获取被拦截信号的模拟实现
func (m *MockStateStore) GetBlockedSignals(ctx context.Context, limit int) ([]*models.BlockedSignal, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BlockedSignal), args.Error(1)
}

// SetSystemStatus 设置系统状态的模拟实现
func (m *MockStateStore) SetSystemStatus(ctx context.Context, status models.SystemStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

// GetSystemStatus 获取系统状态的模拟实现
func (m *MockStateStore) GetSystemStatus(ctx context.Context) (models.SystemStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.SystemStatus), args.Error(1)
}

// Health 健康检查的模拟实现
func (m *MockStateStore) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close 关闭连接的模拟实现
func (m *MockStateStore) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
