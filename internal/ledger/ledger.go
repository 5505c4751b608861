package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/life2you_mini/riskgate/internal/models"
)

// CapitalLedger 资金与持仓账本接口
// 风控侧只读，结算侧负责写入
type CapitalLedger interface {
	// GetCurrentCapital 获取当前总资金
	GetCurrentCapital(ctx context.Context) (decimal.Decimal, error)

	// GetOpenPositions 获取所有未平仓持仓（含部分平仓）
	GetOpenPositions(ctx context.Context) ([]*models.Position, error)

	// GetClosedPositionsSince 获取指定时间之后平仓的持仓
	GetClosedPositionsSince(ctx context.Context, since time.Time) ([]*models.Position, error)
}

// CapitalLedgerWriter 账本写入接口，供结算流程使用
type CapitalLedgerWriter interface {
	CapitalLedger

	// SavePosition 保存或更新持仓
	SavePosition(ctx context.Context, position *models.Position) error

	// SetCurrentCapital 更新当前总资金
	SetCurrentCapital(ctx context.Context, capital decimal.Decimal) error
}
