package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"
)

const (
	PositionStatusOpen       = "OPEN"
	PositionStatusClosing    = "CLOSING"
	PositionStatusClosed     = "CLOSED"
	PositionStatusLiquidated = "LIQUIDATED"
)

// Position is the rolling aggregate of the open exposure one broker account holds in a symbol.
// It is mutated in place by the ledger; nothing replays executions to rebuild it.
type Position struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	PositionRef     string `gorm:"size:64;not null" json:"position_ref"`
	BrokerAccountID string `gorm:"size:50;not null;index" json:"broker_account_id"`
	Symbol          string `gorm:"size:50;not null;index" json:"symbol"`
	PositionSide    string `gorm:"size:10;not null" json:"position_side"` // LONG | SHORT

	Quantity          decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	AvailableQuantity decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"available_quantity"`
	MaxQuantity       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"max_quantity"`

	AverageCost    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"average_cost"`
	TotalCost      decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"total_cost"` // includes entry fees
	CommissionPaid decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"commission_paid"`

	CurrentPrice    decimal.Decimal `gorm:"type:numeric(30,10)" json:"current_price"`
	LastPriceUpdate *time.Time      `json:"last_price_update,omitempty"`

	UnrealizedPnl        decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"unrealized_pnl"`
	UnrealizedPnlPercent decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"unrealized_pnl_percent"`
	RealizedPnl          decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"realized_pnl"`
	DailyPnl             decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"daily_pnl"`
	DailyPnlPercent      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"daily_pnl_percent"`

	PreviousClosePrice decimal.NullDecimal `gorm:"type:numeric(30,10)" json:"previous_close_price"`
	StopLossPrice      decimal.NullDecimal `gorm:"type:numeric(30,10)" json:"stop_loss_price"`
	TakeProfitPrice    decimal.NullDecimal `gorm:"type:numeric(30,10)" json:"take_profit_price"`

	MaxProfit decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"max_profit"`
	MaxLoss   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"max_loss"`

	PositionStatus string     `gorm:"size:20;not null;default:OPEN;index" json:"position_status"`
	OpenedAt       time.Time  `gorm:"not null" json:"opened_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	DaysHeld       int        `gorm:"not null;default:0" json:"days_held"`
	ExitReason     string     `gorm:"size:50" json:"exit_reason,omitempty"` // last close or liquidation reason

	// Version is bumped on every save and checked on update.
	Version int64 `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for positions.
func (Position) TableName() string {
	return "positions"
}

func (p *Position) IsLong() bool { return p.PositionSide == PositionSideLong }

// IsActive reports whether the position still carries quantity (OPEN or CLOSING).
func (p *Position) IsActive() bool {
	return p.PositionStatus == PositionStatusOpen || p.PositionStatus == PositionStatusClosing
}

func (p *Position) IsTerminal() bool {
	return p.PositionStatus == PositionStatusClosed || p.PositionStatus == PositionStatusLiquidated
}

// MarketValue is quantity marked at the current price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// TotalPnl is realized plus unrealized. It is never stored on its own.
func (p *Position) TotalPnl() decimal.Decimal {
	return p.RealizedPnl.Add(p.UnrealizedPnl)
}

// BlockedQuantity is the part of the position reserved by working orders.
func (p *Position) BlockedQuantity() decimal.Decimal {
	return p.Quantity.Sub(p.AvailableQuantity)
}

// MarshalJSON adds the derived values to the stored fields.
func (p Position) MarshalJSON() ([]byte, error) {
	type stored Position
	return json.Marshal(struct {
		stored
		MarketValue     decimal.Decimal `json:"market_value"`
		TotalPnl        decimal.Decimal `json:"total_pnl"`
		BlockedQuantity decimal.Decimal `json:"blocked_quantity"`
	}{
		stored:          stored(p),
		MarketValue:     p.MarketValue(),
		TotalPnl:        p.TotalPnl(),
		BlockedQuantity: p.BlockedQuantity(),
	})
}

// PortfolioSummary is the read only rollup of the active positions of one account.
type PortfolioSummary struct {
	BrokerAccountID string          `json:"broker_account_id"`
	OpenPositions   int             `json:"open_positions"`
	MarketValue     decimal.Decimal `json:"market_value"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	UnrealizedPnl   decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl"`
	TotalPnl        decimal.Decimal `json:"total_pnl"`
	TotalPnlPercent decimal.Decimal `json:"total_pnl_percent"`
	DailyPnl        decimal.Decimal `json:"daily_pnl"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
