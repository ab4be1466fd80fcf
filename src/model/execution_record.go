package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

const (
	LiquidityMaker   = "MAKER"
	LiquidityTaker   = "TAKER"
	LiquidityUnknown = "UNKNOWN"
)

const (
	SettlementPending = "PENDING"
	SettlementSettled = "SETTLED"
	SettlementFailed  = "FAILED"
)

// ExecutionRecord is one fill reported by the broker for an order.
// Rows are append only; a correction is a new compensating record. PositionID is the one
// column set after insert, when a fill recorded on its own is later applied.
type ExecutionRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrderID     string  `gorm:"size:100;not null;index;uniqueIndex:idx_execution_order_sequence,priority:1" json:"order_id"`
	ExecutionID *string `gorm:"size:100;uniqueIndex" json:"execution_id,omitempty"` // broker assigned, optional

	BrokerAccountID string `gorm:"size:50;not null;index" json:"broker_account_id"`
	Symbol          string `gorm:"size:50;not null;index" json:"symbol"`
	Side            string `gorm:"size:10;not null" json:"side"` // BUY | SELL

	ExecutedQuantity decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"executed_quantity"`
	ExecutionPrice   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"execution_price"`
	ExecutionTime    time.Time       `gorm:"not null;index" json:"execution_time"`
	FillSequence     int             `gorm:"not null;uniqueIndex:idx_execution_order_sequence,priority:2" json:"fill_sequence"`

	Commission  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"commission"`
	ExchangeFee decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"exchange_fee"`
	ClearingFee decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"clearing_fee"`
	OtherFees   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"other_fees"`

	LiquidityFlag    string `gorm:"size:10;not null;default:UNKNOWN" json:"liquidity_flag"`
	SettlementStatus string `gorm:"size:10;not null;default:PENDING" json:"settlement_status"`

	// Position the fill was applied to, zero until the aggregator has run.
	PositionID uint `gorm:"index" json:"position_id"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for executions.
func (ExecutionRecord) TableName() string {
	return "execution_records"
}

// ExecutionValue is quantity times price.
func (e ExecutionRecord) ExecutionValue() decimal.Decimal {
	return e.ExecutedQuantity.Mul(e.ExecutionPrice)
}

// TotalFees sums every fee component of the fill.
func (e ExecutionRecord) TotalFees() decimal.Decimal {
	return e.Commission.Add(e.ExchangeFee).Add(e.ClearingFee).Add(e.OtherFees)
}

// NetAmount is the execution value after fees.
func (e ExecutionRecord) NetAmount() decimal.Decimal {
	return e.ExecutionValue().Sub(e.TotalFees())
}

// PerUnitFee spreads the total fees over the executed quantity, 6 places.
func (e ExecutionRecord) PerUnitFee() decimal.Decimal {
	if e.ExecutedQuantity.IsZero() {
		return decimal.Zero
	}
	return e.TotalFees().DivRound(e.ExecutedQuantity, 6)
}

// EffectivePrice folds the per unit fee into the price: buys pay more, sells receive less.
func (e ExecutionRecord) EffectivePrice() decimal.Decimal {
	if e.Side == OrderSideSell {
		return e.ExecutionPrice.Sub(e.PerUnitFee())
	}
	return e.ExecutionPrice.Add(e.PerUnitFee())
}

// MarshalJSON adds the derived amounts to the stored fields.
func (e ExecutionRecord) MarshalJSON() ([]byte, error) {
	type stored ExecutionRecord
	return json.Marshal(struct {
		stored
		ExecutionValue decimal.Decimal `json:"execution_value"`
		TotalFees      decimal.Decimal `json:"total_fees"`
		NetAmount      decimal.Decimal `json:"net_amount"`
		EffectivePrice decimal.Decimal `json:"effective_price"`
	}{
		stored:         stored(e),
		ExecutionValue: e.ExecutionValue(),
		TotalFees:      e.TotalFees(),
		NetAmount:      e.NetAmount(),
		EffectivePrice: e.EffectivePrice(),
	})
}
