package capital

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/riskgate/internal/config"
	"github.com/life2you_mini/riskgate/internal/mocks"
	"github.com/life2you_mini/riskgate/internal/models"
	"github.com/life2you_mini/riskgate/internal/risk"
	"github.com/life2you_mini/riskgate/internal/storage"
)

func newTestMonitor(t *testing.T, source *mocks.MockEquitySource, capitalLedger *mocks.MockCapitalLedger, store *mocks.MockStateStore) *Monitor {
	logger := zaptest.NewLogger(t)
	drawdownCfg := config.DrawdownConfig{
		Enabled:          true,
		ThresholdPercent: 50.0,
	}
	drawdown := risk.NewDrawdownBreaker(drawdownCfg, "test-account", store, logger)
	return NewMonitor(config.CapitalConfig{PollIntervalSeconds: 30}, source, capitalLedger, drawdown, logger)
}

func TestMonitor_PollWritesLedgerAndSnapshot(t *testing.T) {
	source := new(mocks.MockEquitySource)
	capitalLedger := new(mocks.MockCapitalLedger)
	store := new(mocks.MockStateStore)
	monitor := newTestMonitor(t, source, capitalLedger, store)

	source.On("GetTotalEquity", mock.Anything).Return(decimal.NewFromInt(95), nil)
	capitalLedger.On("SetCurrentCapital", mock.Anything, decimal.NewFromInt(95)).Return(nil)
	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(&models.CapitalSnapshot{
		Capital:     decimal.NewFromInt(100),
		PeakCapital: decimal.NewFromInt(100),
	}, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.MatchedBy(func(snapshot *models.CapitalSnapshot) bool {
		return snapshot.Capital.Equal(decimal.NewFromInt(95)) &&
			snapshot.PeakCapital.Equal(decimal.NewFromInt(100))
	})).Return(nil)

	err := monitor.Poll(context.Background())

	assert.NoError(t, err)
	source.AssertExpectations(t)
	capitalLedger.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestMonitor_PollSourceErrorPropagates(t *testing.T) {
	source := new(mocks.MockEquitySource)
	capitalLedger := new(mocks.MockCapitalLedger)
	store := new(mocks.MockStateStore)
	monitor := newTestMonitor(t, source, capitalLedger, store)

	source.On("GetTotalEquity", mock.Anything).Return(decimal.Zero, assert.AnError)

	err := monitor.Poll(context.Background())

	assert.Error(t, err)
	capitalLedger.AssertNotCalled(t, "SetCurrentCapital", mock.Anything, mock.Anything)
}

func TestMonitor_PollNegativeEquityClampsToZero(t *testing.T) {
	source := new(mocks.MockEquitySource)
	capitalLedger := new(mocks.MockCapitalLedger)
	store := new(mocks.MockStateStore)
	monitor := newTestMonitor(t, source, capitalLedger, store)

	source.On("GetTotalEquity", mock.Anything).Return(decimal.NewFromInt(-3), nil)
	capitalLedger.On("SetCurrentCapital", mock.Anything, decimal.Zero).Return(nil)
	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(nil, storage.ErrNotFound)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)

	err := monitor.Poll(context.Background())

	assert.NoError(t, err)
	capitalLedger.AssertExpectations(t)
}
