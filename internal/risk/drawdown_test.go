package risk

import (
	"context"
	"sync"
	"sync/atomic"
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

func testDrawdownConfig() config.DrawdownConfig {
	return config.DrawdownConfig{
		Enabled:          true,
		ThresholdPercent: 50.0,
		ReductionTiers: []config.DrawdownTier{
			{ThresholdPct: 10.0, SizeReductionPct: 25.0},
			{ThresholdPct: 20.0, SizeReductionPct: 50.0},
			{ThresholdPct: 30.0, SizeReductionPct: 75.0},
			{ThresholdPct: 40.0, SizeReductionPct: 100.0},
		},
	}
}

func newTestDrawdownBreaker(t *testing.T, store *mocks.MockStateStore) *DrawdownBreaker {
	return NewDrawdownBreaker(testDrawdownConfig(), testAccountID, store, zaptest.NewLogger(t))
}

func TestDrawdownBreaker_PeakIsMonotonic(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	previous := &models.CapitalSnapshot{
		Timestamp:   time.Now().UTC(),
		Capital:     decimal.NewFromInt(95),
		PeakCapital: decimal.NewFromInt(100),
	}

	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(previous, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)

	// 资金回落到88，峰值保持100不变
	result, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(88))

	assert.NoError(t, err)
	assert.True(t, result.Snapshot.PeakCapital.Equal(decimal.NewFromInt(100)))
	assert.InDelta(t, 12.0, result.Snapshot.DrawdownPercent, 0.001)
	assert.False(t, result.IsBreached)
	store.AssertExpectations(t)
}

func TestDrawdownBreaker_NewHighRaisesPeak(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	previous := &models.CapitalSnapshot{
		Timestamp:   time.Now().UTC(),
		Capital:     decimal.NewFromInt(95),
		PeakCapital: decimal.NewFromInt(100),
	}

	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(previous, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)

	result, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(120))

	assert.NoError(t, err)
	assert.True(t, result.Snapshot.PeakCapital.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, 0.0, result.Snapshot.DrawdownPercent)
	store.AssertExpectations(t)
}

func TestDrawdownBreaker_FirstObservationSetsPeak(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(nil, storage.ErrNotFound)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)

	result, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(100))

	assert.NoError(t, err)
	assert.True(t, result.Snapshot.PeakCapital.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 0.0, result.Snapshot.DrawdownPercent)
}

func TestDrawdownBreaker_BreachCreatesTrigger(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	previous := &models.CapitalSnapshot{
		Timestamp:   time.Now().UTC(),
		Capital:     decimal.NewFromInt(60),
		PeakCapital: decimal.NewFromInt(100),
	}

	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(previous, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)
	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(nil, storage.ErrNotFound)
	store.On("SaveTrigger", mock.Anything, mock.AnythingOfType("*models.CircuitBreakerTrigger")).Return(nil)
	store.On("SetSystemStatus", mock.Anything, models.StatusPausedDrawdown).Return(nil)

	// 资金跌到45，回撤55%越过50%阈值
	result, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(45))

	assert.NoError(t, err)
	assert.True(t, result.IsBreached)
	assert.NotNil(t, result.Trigger)
	assert.Equal(t, models.BreakerDrawdown, result.Trigger.BreakerType)
	assert.InDelta(t, 55.0, result.Trigger.ActualValue, 0.001)
	assert.True(t, result.Trigger.IsActive())
	store.AssertExpectations(t)
}

func TestDrawdownBreaker_BreachDoesNotDuplicateTrigger(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	previous := &models.CapitalSnapshot{
		Timestamp:   time.Now().UTC(),
		Capital:     decimal.NewFromInt(45),
		PeakCapital: decimal.NewFromInt(100),
	}

	existing := &models.CircuitBreakerTrigger{
		ID:          "trigger_1",
		AccountID:   testAccountID,
		BreakerType: models.BreakerDrawdown,
		TriggeredAt: time.Now().UTC(),
	}

	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(previous, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)
	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(existing, nil)

	result, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(40))

	assert.NoError(t, err)
	assert.True(t, result.IsBreached)
	assert.Equal(t, "trigger_1", result.Trigger.ID)
	store.AssertNotCalled(t, "SaveTrigger", mock.Anything, mock.Anything)
}

func TestDrawdownBreaker_SaveTriggerFailureStillBreaches(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	previous := &models.CapitalSnapshot{
		Timestamp:   time.Now().UTC(),
		Capital:     decimal.NewFromInt(60),
		PeakCapital: decimal.NewFromInt(100),
	}

	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(previous, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)
	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(nil, storage.ErrNotFound)
	store.On("SaveTrigger", mock.Anything, mock.AnythingOfType("*models.CircuitBreakerTrigger")).Return(assert.AnError)
	store.On("SetSystemStatus", mock.Anything, models.StatusPausedDrawdown).Return(nil)

	// 触发记录落库失败不能撤销越界判定
	result, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(45))

	assert.NoError(t, err)
	assert.True(t, result.IsBreached)
	assert.NotNil(t, result.Trigger)
	assert.InDelta(t, 55.0, result.Trigger.ActualValue, 0.001)
}

func TestDrawdownBreaker_EvaluateBlocksOnBreachedSnapshot(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	// 快照回撤55%超过50%阈值，但没有落库成功的触发记录
	latest := &models.CapitalSnapshot{
		Timestamp:       time.Now().UTC(),
		Capital:         decimal.NewFromInt(45),
		PeakCapital:     decimal.NewFromInt(100),
		DrawdownPercent: 55.0,
	}

	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(nil, storage.ErrNotFound)
	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(latest, nil)

	drawdownPct, reductionPct, trigger, err := breaker.Evaluate(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, trigger)
	assert.InDelta(t, 55.0, drawdownPct, 0.001)
	assert.Equal(t, 100.0, reductionPct)
}

func TestDrawdownBreaker_ObserveCapitalIsSerialized(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	var inflight int32
	var overlapped int32

	store.On("GetLatestCapitalSnapshot", mock.Anything).Run(func(args mock.Arguments) {
		if atomic.AddInt32(&inflight, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
	}).Return(nil, storage.ErrNotFound)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.AnythingOfType("*models.CapitalSnapshot")).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := breaker.ObserveCapital(context.Background(), decimal.NewFromInt(100))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 峰值读改写必须串行执行
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapped))
}

func TestDrawdownBreaker_EvaluateSelectsTier(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	latest := &models.CapitalSnapshot{
		Timestamp:       time.Now().UTC(),
		Capital:         decimal.NewFromInt(88),
		PeakCapital:     decimal.NewFromInt(100),
		DrawdownPercent: 12.0,
	}

	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(nil, storage.ErrNotFound)
	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(latest, nil)

	drawdownPct, reductionPct, trigger, err := breaker.Evaluate(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, trigger)
	assert.InDelta(t, 12.0, drawdownPct, 0.001)
	assert.Equal(t, 25.0, reductionPct)
}

func TestDrawdownBreaker_EvaluateActiveTriggerBlocks(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	existing := &models.CircuitBreakerTrigger{
		ID:             "trigger_1",
		AccountID:      testAccountID,
		BreakerType:    models.BreakerDrawdown,
		ThresholdValue: 50.0,
		ActualValue:    55.0,
	}

	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(existing, nil)

	_, reductionPct, trigger, err := breaker.Evaluate(context.Background())

	assert.NoError(t, err)
	assert.NotNil(t, trigger)
	assert.Equal(t, 100.0, reductionPct)
}

func TestDrawdownBreaker_Reset(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	existing := &models.CircuitBreakerTrigger{
		ID:          "trigger_1",
		AccountID:   testAccountID,
		BreakerType: models.BreakerDrawdown,
		TriggeredAt: time.Now().UTC(),
	}

	latest := &models.CapitalSnapshot{
		Timestamp:   time.Now().UTC(),
		Capital:     decimal.NewFromInt(45),
		PeakCapital: decimal.NewFromInt(100),
	}

	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(existing, nil)
	store.On("ResetTrigger", mock.Anything, mock.MatchedBy(func(trigger *models.CircuitBreakerTrigger) bool {
		return trigger.ResetAt != nil && trigger.ResetBy == "operator-1"
	})).Return(nil)
	store.On("GetLatestCapitalSnapshot", mock.Anything).Return(latest, nil)
	store.On("SaveCapitalSnapshot", mock.Anything, mock.MatchedBy(func(snapshot *models.CapitalSnapshot) bool {
		// 复位后峰值基准重置为当前资金
		return snapshot.PeakCapital.Equal(latest.Capital)
	})).Return(nil)
	store.On("GetConsecutiveLossState", mock.Anything, testAccountID).Return(nil, storage.ErrNotFound)
	store.On("SetSystemStatus", mock.Anything, models.StatusRunning).Return(nil)

	err := breaker.Reset(context.Background(), "operator-1")

	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDrawdownBreaker_ResetWithoutActiveTrigger(t *testing.T) {
	store := new(mocks.MockStateStore)
	breaker := newTestDrawdownBreaker(t, store)

	store.On("GetActiveTrigger", mock.Anything, testAccountID, models.BreakerDrawdown).Return(nil, storage.ErrNotFound)

	err := breaker.Reset(context.Background(), "operator-1")

	assert.Error(t, err)
}
