package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TriggerStopLoss   = "STOP_LOSS"
	TriggerTakeProfit = "TAKE_PROFIT"
	TriggerMarginCall = "MARGIN_CALL"
)

// TriggerSignal tells the order submission side that a position must be closed.
// It is written in the same transaction that moves the position to CLOSING.
type TriggerSignal struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	PositionID      uint            `gorm:"not null;index" json:"position_id"`
	PositionRef     string          `gorm:"size:64;not null" json:"position_ref"`
	BrokerAccountID string          `gorm:"size:50;not null;index" json:"broker_account_id"`
	Symbol          string          `gorm:"size:50;not null" json:"symbol"`
	PositionSide    string          `gorm:"size:10;not null" json:"position_side"`
	Reason          string          `gorm:"size:20;not null" json:"reason"`
	TriggerPrice    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"trigger_price"`
	Threshold       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"threshold"`
	Quantity        decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName allows you to control the exact table name for signals.
func (TriggerSignal) TableName() string {
	return "position_signals"
}
