package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/mocks"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/storage"
)

func testDailyLossConfig() config.DailyLossConfig {
	return config.DailyLossConfig{
		Enabled:             true,
		DailyLimitPct:       5.0,
		WarningThresholdPct: 0.8,
	}
}

func newTestDailyTracker(t *testing.T, store *mocks.MockStateStore, capitalLedger *mocks.MockCapitalLedger) *DailyLossTracker {
	return NewDailyLossTracker(testDailyLossConfig(), store, capitalLedger, zaptest.NewLogger(t))
}

func closedPosition(realizedPnL string) *models.Position {
	closedAt := time.Now().UTC()
	return &models.Position{
		ID:             "pos-1",
		TokenAddress:   "token-a",
		Status:         models.PositionStatusClosed,
		RealizedPnLSOL: decimal.RequireFromString(realizedPnL),
		ClosedAt:       &closedAt,
	}
}

func TestDailyLossTracker_LimitHit(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.NewFromInt(100), nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{closedPosition("-5")}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.True(t, metrics.IsLimitHit)
	assert.InDelta(t, -5.0, metrics.PnLPct, 0.001)
	assert.InDelta(t, 100.0, metrics.LimitUsagePct, 0.001)
	assert.Equal(t, 0.0, metrics.LimitRemainingPct)
}

func TestDailyLossTracker_UsageCapsAtFullLimit(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	// 亏损达到上限的两倍，使用率封顶100%
	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.NewFromInt(100), nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{closedPosition("-10")}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.True(t, metrics.IsLimitHit)
	assert.InDelta(t, -10.0, metrics.PnLPct, 0.001)
	assert.InDelta(t, 100.0, metrics.LimitUsagePct, 0.001)
	assert.Equal(t, 0.0, metrics.LimitRemainingPct)
}

func TestDailyLossTracker_WarningZone(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.NewFromInt(100), nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{closedPosition("-3")}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{
		{
			ID:               "pos-2",
			TokenAddress:     "token-b",
			Status:           models.PositionStatusOpen,
			UnrealizedPnLSOL: decimal.RequireFromString("-1.2"),
		},
	}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.False(t, metrics.IsLimitHit)
	assert.True(t, metrics.IsWarningZone)
	assert.InDelta(t, -4.2, metrics.PnLPct, 0.001)
	assert.InDelta(t, 84.0, metrics.LimitUsagePct, 0.001)
}

func TestDailyLossTracker_UnrealizedCountsTowardLimit(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.NewFromInt(100), nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{
		{
			ID:               "pos-3",
			TokenAddress:     "token-c",
			Status:           models.PositionStatusOpen,
			UnrealizedPnLSOL: decimal.RequireFromString("-6"),
		},
	}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.True(t, metrics.IsLimitHit)
	assert.InDelta(t, -6.0, metrics.PnLPct, 0.001)
}

func TestDailyLossTracker_ProfitDay(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.NewFromInt(100), nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{closedPosition("3")}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.False(t, metrics.IsLimitHit)
	assert.False(t, metrics.IsWarningZone)
	assert.Equal(t, 0.0, metrics.LimitUsagePct)
	assert.Equal(t, 5.0, metrics.LimitRemainingPct)
}

func TestDailyLossTracker_CapturesDayStartOnFirstCheck(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.Zero, storage.ErrNotFound).Once()
	capitalLedger.On("GetCurrentCapital", mock.Anything).Return(decimal.NewFromInt(200), nil)
	store.On("SetDayStartCapital", mock.Anything, mock.AnythingOfType("string"), decimal.NewFromInt(200)).Return(true, nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.False(t, metrics.IsLimitHit)
	store.AssertExpectations(t)
}

func TestDailyLossTracker_BootstrapNeverHitsLimit(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	// 账本尚无资金记录，起始资金为0，不触发限制
	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.Zero, storage.ErrNotFound)
	capitalLedger.On("GetCurrentCapital", mock.Anything).Return(decimal.Zero, storage.ErrNotFound)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Position{closedPosition("-5")}, nil)
	capitalLedger.On("GetOpenPositions", mock.Anything).Return([]*models.Position{}, nil)

	metrics, err := tracker.Check(context.Background())

	assert.NoError(t, err)
	assert.False(t, metrics.IsLimitHit)
	assert.Equal(t, 0.0, metrics.PnLPct)
}

func TestDailyLossTracker_LedgerErrorPropagates(t *testing.T) {
	store := new(mocks.MockStateStore)
	capitalLedger := new(mocks.MockCapitalLedger)
	tracker := newTestDailyTracker(t, store, capitalLedger)

	store.On("GetDayStartCapital", mock.Anything, mock.AnythingOfType("string")).Return(decimal.NewFromInt(100), nil)
	capitalLedger.On("GetClosedPositionsSince", mock.Anything, mock.AnythingOfType("time.Time")).Return(nil, assert.AnError)

	_, err := tracker.Check(context.Background())

	assert.Error(t, err)
}
