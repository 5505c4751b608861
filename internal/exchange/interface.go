package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// EquitySource 账户权益数据源
// 资金监控按固定周期从这里读取账户总权益（SOL计价）
type EquitySource interface {
	GetName() string
	GetTotalEquity(ctx context.Context) (decimal.Decimal, error)
}
