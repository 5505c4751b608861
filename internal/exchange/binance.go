package exchange

import (
	"context"
	"fmt"
	"strconv"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// equityAsset 权益计价资产
const equityAsset = "SOL"

// BinanceClient 币安账户权益数据源
type BinanceClient struct {
	exchange *ccxt.Binance
	logger   *zap.Logger
}

// NewBinanceClient 创建新的币安客户端
func NewBinanceClient(apiKey, apiSecret string, logger *zap.Logger) *BinanceClient {
	// 创建CCXT的Binance实例
	binanceInstance := ccxt.NewBinance(map[string]interface{}{
		"apiKey":          apiKey,
		"secret":          apiSecret,
		"enableRateLimit": true,
	})

	// 加载市场信息
	go func() {
		<-binanceInstance.LoadMarkets()
		logger.Info("Binance市场数据加载完成")
	}()

	return &BinanceClient{
		exchange: binanceInstance,
		logger:   logger.With(zap.String("component", "binance_equity")),
	}
}

// GetName 获取数据源名称
func (b *BinanceClient) GetName() string {
	return "Binance"
}

// GetTotalEquity 获取账户SOL总权益
// 取余额中SOL资产的total字段（可用加冻结）
func (b *BinanceClient) GetTotalEquity(ctx context.Context) (decimal.Decimal, error) {
	balance, err := b.exchange.FetchBalance()
	if err != nil {
		b.logger.Error("获取币安账户余额失败", zap.Error(err))
		return decimal.Zero, fmt.Errorf("获取币安账户余额失败: %w", err)
	}

	// 解析total字段下的SOL余额
	totals, ok := (*balance)["total"].(map[string]interface{})
	if !ok {
		return decimal.Zero, fmt.Errorf("余额数据格式错误")
	}

	raw, ok := totals[equityAsset]
	if !ok {
		// 账户没有SOL资产，权益视为0
		b.logger.Warn("账户余额中不含权益资产", zap.String("asset", equityAsset))
		return decimal.Zero, nil
	}

	amount, err := strconv.ParseFloat(fmt.Sprintf("%v", raw), 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析SOL余额失败: %w", err)
	}

	return decimal.NewFromFloat(amount), nil
}
