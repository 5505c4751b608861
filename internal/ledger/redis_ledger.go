package ledger

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
	"github.com/life2you_mini/riskgate/internal/storage"
)

// Redis 键常量
const (
	keyPositionPrefix  = "ledger:position:"
	keyOpenPositions   = "ledger:positions:open"
	keyClosedPositions = "ledger:positions:closed"
	keyCurrentCapital  = "ledger:capital:current"

	// 过期时间（秒）
	expiryPosition = 86400 * 180 // 180天
)

// RedisLedger Redis账本实现
type RedisLedger struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisLedger 创建Redis账本
func NewRedisLedger(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "capital_ledger")),
	}
}

// key 拼接键前缀
func (l *RedisLedger) key(k string) string {
	return l.keyPrefix + k
}

// GetCurrentCapital 获取当前总资金
func (l *RedisLedger) GetCurrentCapital(ctx context.Context) (decimal.Decimal, error) {
	value, err := l.client.Get(ctx, l.key(keyCurrentCapital)).Result()
	if err != nil {
		if err == redis.Nil {
			return decimal.Zero, storage.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("获取当前资金失败: %w", err)
	}

	capital, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析当前资金失败: %w", err)
	}

	return capital, nil
}

// SetCurrentCapital 更新当前总资金
func (l *RedisLedger) SetCurrentCapital(ctx context.Context, capital decimal.Decimal) error {
	if err := l.client.Set(ctx, l.key(keyCurrentCapital), capital.String(), 0).Err(); err != nil {
		return fmt.Errorf("更新当前资金失败: %w", err)
	}
	return nil
}

// GetOpenPositions 获取所有未平仓持仓
func (l *RedisLedger) GetOpenPositions(ctx context.Context) ([]*models.Position, error) {
	ids, err := l.client.SMembers(ctx, l.key(keyOpenPositions)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取未平仓持仓ID列表失败: %w", err)
	}

	if len(ids) == 0 {
		return []*models.Position{}, nil
	}

	positions := make([]*models.Position, 0, len(ids))
	for _, id := range ids {
		position, err := l.getPositionByID(ctx, id)
		if err != nil {
			l.logger.Warn("获取持仓数据失败", zap.Error(err), zap.String("position_id", id))
			continue
		}

		positions = append(positions, position)
	}

	return positions, nil
}

// GetClosedPositionsSince 获取指定时间之后平仓的持仓
func (l *RedisLedger) GetClosedPositionsSince(ctx context.Context, since time.Time) ([]*models.Position, error) {
	ids, err := l.client.ZRangeByScore(ctx, l.key(keyClosedPositions), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("获取已平仓持仓ID列表失败: %w", err)
	}

	if len(ids) == 0 {
		return []*models.Position{}, nil
	}

	positions := make([]*models.Position, 0, len(ids))
	for _, id := range ids {
		position, err := l.getPositionByID(ctx, id)
		if err != nil {
			l.logger.Warn("获取持仓数据失败", zap.Error(err), zap.String("position_id", id))
			continue
		}

		positions = append(positions, position)
	}

	return positions, nil
}

// getPositionByID 根据ID获取持仓
func (l *RedisLedger) getPositionByID(ctx context.Context, positionID string) (*models.Position, error) {
	jsonData, err := l.client.Get(ctx, l.key(keyPositionPrefix+positionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("持仓不存在: %s", positionID)
		}
		return nil, fmt.Errorf("获取持仓数据失败: %w", err)
	}

	var position models.Position
	if err := json.Unmarshal([]byte(jsonData), &position); err != nil {
		return nil, fmt.Errorf("解析持仓数据失败: %w", err)
	}

	return &position, nil
}

// SavePosition 保存或更新持仓，同时维护未平仓与已平仓索引
func (l *RedisLedger) SavePosition(ctx context.Context, position *models.Position) error {
	jsonData, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("序列化持仓数据失败: %w", err)
	}

	// 使用Pipeline批量执行
	pipe := l.client.Pipeline()

	pipe.Set(ctx, l.key(keyPositionPrefix+position.ID), jsonData, time.Duration(expiryPosition)*time.Second)

	if position.Status == models.PositionStatusClosed {
		pipe.SRem(ctx, l.key(keyOpenPositions), position.ID)
		closedAt := position.OpenedAt
		if position.ClosedAt != nil {
			closedAt = *position.ClosedAt
		}
		pipe.ZAdd(ctx, l.key(keyClosedPositions), redis.Z{
			Score:  float64(closedAt.Unix()),
			Member: position.ID,
		})
		pipe.Expire(ctx, l.key(keyClosedPositions), time.Duration(expiryPosition)*time.Second)
	} else {
		pipe.SAdd(ctx, l.key(keyOpenPositions), position.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存持仓数据失败: %w", err)
	}

	return nil
}
