package mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/riskgate/internal/models"
)

// MockCapitalLedger 资金账本的模拟实现
type MockCapitalLedger struct {
	mock.Mock
}

// GetCurrentCapital 获取当前资金的模拟实现
func (m *MockCapitalLedger) GetCurrentCapital(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// GetOpenPositions 获取未平仓持仓的模拟实现
func (m *MockCapitalLedger) GetOpenPositions(ctx context.Context) ([]*models.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Position), args.Error(1)
}

// GetClosedPositionsSince 获取已平仓持仓的模拟实现
func (m *MockCapitalLedger) GetClosedPositionsSince(ctx context.Context, since time.Time) ([]*models.Position, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Position), args.Error(1)
}

// SavePosition 保存持仓的模拟实现
func (m *MockCapitalLedger) SavePosition(ctx context.Context, position *models.Position) error {
	args := m.Called(ctx, position)
	return args.Error(0)
}

// SetCurrentCapital 更新当前资金的模拟实现
func (m *MockCapitalLedger) SetCurrentCapital(ctx context.Context, capital decimal.Decimal) error {
	args := m.Called(ctx, capital)
	return args.Error(0)
}
