package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskgate/internal/models"
)

// Redis 键常量
const (
	// 连败状态相关
	keyLossStatePrefix  = "risk:loss_state:"
	keyLossEventsPrefix = "risk:loss_events:"

	// 资金快照相关
	keyCapitalLatest   = "risk:capital:latest"
	keyCapitalHistory  = "risk:capital:history"
	keyDayStartPrefix  = "risk:capital:day_start:"

	// 熔断触发相关
	keyTriggerActivePrefix = "risk:trigger:active:"
	keyTriggerHistory      = "risk:trigger:history"

	// 审计相关
	keyBlockedSignals = "risk:blocked_signals"

	// 系统状态
	keySystemStatus = "risk:status"

	// 过期时间（秒）
	expiryDayStart = 86400 * 7   // 7天
	expiryHistory  = 86400 * 180 // 180天
	expiryAudit    = 86400 * 365 // 365天
)

// RedisStateStore Redis状态存储实现
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStateStore 创建Redis状态存储
func NewRedisStateStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStateStore {
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "state_store")),
	}
}

// key 拼接键前缀
func (s *RedisStateStore) key(k string) string {
	return s.keyPrefix + k
}

// Health 检查Redis健康状态
func (s *RedisStateStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (s *RedisStateStore) Close(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("关闭Redis连接失败", zap.Error(err))
		return fmt.Errorf("关闭Redis连接失败: %w", err)
	}

	s.logger.Info("Redis连接已关闭")
	return nil
}

// GetConsecutiveLossState 获取账户连败状态
func (s *RedisStateStore) GetConsecutiveLossState(ctx context.Context, accountID string) (*models.ConsecutiveLossState, error) {
	key := s.key(keyLossStatePrefix + accountID)

	jsonData, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取连败状态失败: %w", err)
	}

	var state models.ConsecutiveLossState
	if err := json.Unmarshal([]byte(jsonData), &state); err != nil {
		return nil, fmt.Errorf("解析连败状态失败: %w", err)
	}

	return &state, nil
}

// SaveConsecutiveLossState 保存连败状态
// event非空时状态与事件在同一事务中写入，两者要么都落库要么都不落库
func (s *RedisStateStore) SaveConsecutiveLossState(ctx context.Context, state *models.ConsecutiveLossState, event *models.LossStreakEvent) error {
	stateData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("序列化连败状态失败: %w", err)
	}

	stateKey := s.key(keyLossStatePrefix + state.AccountID)

	// 使用事务Pipeline保证原子性
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stateKey, stateData, 0)

	if event != nil {
		eventData, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("序列化模式切换事件失败: %w", err)
		}

		eventsKey := s.key(keyLossEventsPrefix + state.AccountID)
		pipe.ZAdd(ctx, eventsKey, redis.Z{
			Score:  float64(event.Timestamp.Unix()),
			Member: eventData,
		})
		pipe.Expire(ctx, eventsKey, time.Duration(expiryAudit)*time.Second)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存连败状态失败: %w", err)
	}

	return nil
}

// GetLossStreakEvents 获取最近的模式切换事件
func (s *RedisStateStore) GetLossStreakEvents(ctx context.Context, accountID string, limit int) ([]*models.LossStreakEvent, error) {
	eventsKey := s.key(keyLossEventsPrefix + accountID)

	results, err := s.client.ZRevRange(ctx, eventsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取模式切换事件失败: %w", err)
	}

	events := make([]*models.LossStreakEvent, 0, len(results))
	for _, jsonData := range results {
		var event models.LossStreakEvent
		if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
			s.logger.Warn("解析模式切换事件失败", zap.Error(err), zap.String("data", jsonData))
			continue
		}

		events = append(events, &event)
	}

	return events, nil
}

// SaveCapitalSnapshot 保存资金快照
func (s *RedisStateStore) SaveCapitalSnapshot(ctx context.Context, snapshot *models.CapitalSnapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("序列化资金快照失败: %w", err)
	}

	latestKey := s.key(keyCapitalLatest)
	historyKey := s.key(keyCapitalHistory)

	// 使用Pipeline批量执行
	pipe := s.client.Pipeline()

	// 存储最新快照
	pipe.Set(ctx, latestKey, jsonData, 0)

	// 存储历史快照（使用有序集合，按时间戳排序）
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(snapshot.Timestamp.Unix()),
		Member: jsonData,
	})
	pipe.Expire(ctx, historyKey, time.Duration(expiryHistory)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存资金快照失败: %w", err)
	}

	return nil
}

// GetLatestCapitalSnapshot 获取最新资金快照
func (s *RedisStateStore) GetLatestCapitalSnapshot(ctx context.Context) (*models.CapitalSnapshot, error) {
	latestKey := s.key(keyCapitalLatest)

	jsonData, err := s.client.Get(ctx, latestKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取最新资金快照失败: %w", err)
	}

	var snapshot models.CapitalSnapshot
	if err := json.Unmarshal([]byte(jsonData), &snapshot); err != nil {
		return nil, fmt.Errorf("解析资金快照失败: %w", err)
	}

	return &snapshot, nil
}

// GetCapitalHistory 获取指定时间范围内的资金快照
func (s *RedisStateStore) GetCapitalHistory(ctx context.Context, start, end time.Time) ([]*models.CapitalSnapshot, error) {
	historyKey := s.key(keyCapitalHistory)

	results, err := s.client.ZRangeByScore(ctx, historyKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(start.Unix(), 10),
		Max: strconv.FormatInt(end.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("获取资金快照历史失败: %w", err)
	}

	snapshots := make([]*models.CapitalSnapshot, 0, len(results))
	for _, jsonData := range results {
		var snapshot models.CapitalSnapshot
		if err := json.Unmarshal([]byte(jsonData), &snapshot); err != nil {
			s.logger.Warn("解析资金快照失败", zap.Error(err), zap.String("data", jsonData))
			continue
		}

		snapshots = append(snapshots, &snapshot)
	}

	return snapshots, nil
}

// SetDayStartCapital 写入当日起始资金，仅当天首次写入生效
// 返回true表示本次写入成功，false表示当天已有起始资金
func (s *RedisStateStore) SetDayStartCapital(ctx context.Context, day string, capital decimal.Decimal) (bool, error) {
	key := s.key(keyDayStartPrefix + day)

	ok, err := s.client.SetNX(ctx, key, capital.String(), time.Duration(expiryDayStart)*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("写入当日起始资金失败: %w", err)
	}

	return ok, nil
}

// GetDayStartCapital 获取当日起始资金
func (s *RedisStateStore) GetDayStartCapital(ctx context.Context, day string) (decimal.Decimal, error) {
	key := s.key(keyDayStartPrefix + day)

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("获取当日起始资金失败: %w", err)
	}

	capital, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析当日起始资金失败: %w", err)
	}

	return capital, nil
}

// SaveTrigger 保存熔断触发记录
func (s *RedisStateStore) SaveTrigger(ctx context.Context, trigger *models.CircuitBreakerTrigger) error {
	jsonData, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("序列化熔断触发记录失败: %w", err)
	}

	activeKey := s.key(keyTriggerActivePrefix + trigger.AccountID + ":" + string(trigger.BreakerType))
	historyKey := s.key(keyTriggerHistory)

	// 使用事务Pipeline保证原子性
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, activeKey, jsonData, 0)
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(trigger.TriggeredAt.Unix()),
		Member: jsonData,
	})
	pipe.Expire(ctx, historyKey, time.Duration(expiryAudit)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存熔断触发记录失败: %w", err)
	}

	return nil
}

// GetActiveTrigger 获取生效中的熔断触发记录
func (s *RedisStateStore) GetActiveTrigger(ctx context.Context, accountID string, breakerType models.BreakerType) (*models.CircuitBreakerTrigger, error) {
	activeKey := s.key(keyTriggerActivePrefix + accountID + ":" + string(breakerType))

	jsonData, err := s.client.Get(ctx, activeKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("获取熔断触发记录失败: %w", err)
	}

	var trigger models.CircuitBreakerTrigger
	if err := json.Unmarshal([]byte(jsonData), &trigger); err != nil {
		return nil, fmt.Errorf("解析熔断触发记录失败: %w", err)
	}

	return &trigger, nil
}

// ResetTrigger 复位熔断触发记录
// 删除生效键并将带复位信息的记录追加到历史中
func (s *RedisStateStore) ResetTrigger(ctx context.Context, trigger *models.CircuitBreakerTrigger) error {
	jsonData, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("序列化熔断触发记录失败: %w", err)
	}

	activeKey := s.key(keyTriggerActivePrefix + trigger.AccountID + ":" + string(trigger.BreakerType))
	historyKey := s.key(keyTriggerHistory)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, activeKey)
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(trigger.TriggeredAt.Unix()),
		Member: jsonData,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("复位熔断触发记录失败: %w", err)
	}

	return nil
}

// AppendBlockedSignal 追加被拦截信号审计记录
func (s *RedisStateStore) AppendBlockedSignal(ctx context.Context, signal *models.BlockedSignal) error {
	jsonData, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("序列化被拦截信号失败: %w", err)
	}

	key := s.key(keyBlockedSignals)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(signal.BlockedAt.Unix()),
		Member: jsonData,
	})
	pipe.Expire(ctx, key, time.Duration(expiryAudit)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存被拦截信号失败: %w", err)
	}

	return nil
}

// GetBlockedSignals 获取最近的被拦截信号
func (s *RedisStateStore) GetBlockedSignals(ctx context.Context, limit int) ([]*models.BlockedSignal, error) {
	key := s.key(keyBlockedSignals)

	results, err := s.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取被拦截信号失败: %w", err)
	}

	signals := make([]*models.BlockedSignal, 0, len(results))
	for _, jsonData := range results {
		var signal models.BlockedSignal
		if err := json.Unmarshal([]byte(jsonData), &signal); err != nil {
			s.logger.Warn("解析被拦截信号失败", zap.Error(err), zap.String("data", jsonData))
			continue
		}

		signals = append(signals, &signal)
	}

	return signals, nil
}

// SetSystemStatus 设置系统运行状态
func (s *RedisStateStore) SetSystemStatus(ctx context.Context, status models.SystemStatus) error {
	if err := s.client.Set(ctx, s.key(keySystemStatus), string(status), 0).Err(); err != nil {
		return fmt.Errorf("设置系统状态失败: %w", err)
	}
	return nil
}

// GetSystemStatus 获取系统运行状态
// 未设置时默认为运行中
func (s *RedisStateStore) GetSystemStatus(ctx context.Context) (models.SystemStatus, error) {
	value, err := s.client.Get(ctx, s.key(keySystemStatus)).Result()
	if err != nil {
		if err == redis.Nil {
			return models.StatusRunning, nil
		}
		return "", fmt.Errorf("获取系统状态失败: %w", err)
	}

	return models.SystemStatus(value), nil
}
