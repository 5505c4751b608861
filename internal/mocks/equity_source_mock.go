package mocks

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockEquitySource 交易所权益数据源的模拟实现
type MockEquitySource struct {
	mock.Mock
}

// GetName 获取交易所名称的模拟实现
func (m *MockEquitySource) GetName() string {
	args := m.Called()
	return args.String(0)
}

// GetTotalEquity 获取账户总权益的模拟实现
func (m *MockEquitySource) GetTotalEquity(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}
