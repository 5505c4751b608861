package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/life2you_mini/riskgate/internal/models"
)

// 队列常量
const (
	QueueTradeOutcomes = "trade_outcomes"
)

// QueueService Redis队列服务
type QueueService struct {
	client    *redis.Client
	keyPrefix string
}

// NewQueueService 创建新的队列服务
func NewQueueService(client *redis.Client, keyPrefix string) *QueueService {
	return &QueueService{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// 获取完整的队列名称
func (q *QueueService) getQueueKey(queue string) string {
	return fmt.Sprintf("%s%s", q.keyPrefix, queue)
}

// PushTradeResult 将交易结果推送到结算队列
func (q *QueueService) PushTradeResult(ctx context.Context, result *models.TradeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化交易结果失败: %w", err)
	}

	queueKey := q.getQueueKey(QueueTradeOutcomes)
	return q.client.LPush(ctx, queueKey, data).Err()
}

// PopTradeResult 从结算队列弹出交易结果（阻塞方式）
// 超时返回nil而非错误
func (q *QueueService) PopTradeResult(ctx context.Context, timeout time.Duration) (*models.TradeResult, error) {
	queueKey := q.getQueueKey(QueueTradeOutcomes)
	result, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时
		}
		return nil, err
	}

	// BRPop返回一个包含两个元素的数组：[queueName, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("从队列获取的数据结构不正确")
	}

	var trade models.TradeResult
	if err := json.Unmarshal([]byte(result[1]), &trade); err != nil {
		return nil, fmt.Errorf("解析交易结果失败: %w", err)
	}

	return &trade, nil
}

// GetQueueLength 获取队列长度
func (q *QueueService) GetQueueLength(ctx context.Context) (int64, error) {
	queueKey := q.getQueueKey(QueueTradeOutcomes)
	return q.client.LLen(ctx, queueKey).Result()
}
