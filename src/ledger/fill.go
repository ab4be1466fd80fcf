package ledger

import (
	"strings"
	"time"

	"positionledger/src/model"

	"github.com/shopspring/decimal"
)

// Fill is a broker execution as it enters the ledger.
type Fill struct {
	OrderID         string          `json:"order_id"`
	ExecutionID     string          `json:"execution_id,omitempty"`
	PositionRef     string          `json:"position_ref,omitempty"`
	BrokerAccountID string          `json:"broker_account_id"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Commission      decimal.Decimal `json:"commission"`
	ExchangeFee     decimal.Decimal `json:"exchange_fee"`
	ClearingFee     decimal.Decimal `json:"clearing_fee"`
	OtherFees       decimal.Decimal `json:"other_fees"`
	LiquidityFlag   string          `json:"liquidity_flag,omitempty"`
	ExecutionTime   time.Time       `json:"execution_time"`
}

// FillResult is what ApplyFill leaves behind. On a redelivered execution Duplicate is set
// and Execution/Position are the stored rows from the first delivery.
type FillResult struct {
	Execution *model.ExecutionRecord `json:"execution"`
	Position  *model.Position        `json:"position"`
	Signal    *model.TriggerSignal   `json:"signal,omitempty"`
	Duplicate bool                   `json:"duplicate"`
}

func (f *Fill) normalize() {
	f.OrderID = strings.TrimSpace(f.OrderID)
	f.ExecutionID = strings.TrimSpace(f.ExecutionID)
	f.BrokerAccountID = strings.TrimSpace(f.BrokerAccountID)
	f.Symbol = strings.ToUpper(strings.TrimSpace(f.Symbol))
	f.Side = strings.ToUpper(strings.TrimSpace(f.Side))
	f.LiquidityFlag = strings.ToUpper(strings.TrimSpace(f.LiquidityFlag))
	if f.LiquidityFlag == "" {
		f.LiquidityFlag = model.LiquidityUnknown
	}
}

func (f Fill) validate() error {
	switch {
	case f.OrderID == "":
		return validationf("order id is required")
	case f.BrokerAccountID == "":
		return validationf("broker account id is required")
	case f.Symbol == "":
		return validationf("symbol is required")
	case f.Side != model.OrderSideBuy && f.Side != model.OrderSideSell:
		return validationf("side must be BUY or SELL, got %q", f.Side)
	case !f.Quantity.IsPositive():
		return validationf("executed quantity must be positive, got %s", f.Quantity)
	case !f.Price.IsPositive():
		return validationf("execution price must be positive, got %s", f.Price)
	case f.Commission.IsNegative(), f.ExchangeFee.IsNegative(), f.ClearingFee.IsNegative(), f.OtherFees.IsNegative():
		return validationf("fees must not be negative")
	}

	switch f.LiquidityFlag {
	case model.LiquidityMaker, model.LiquidityTaker, model.LiquidityUnknown:
	default:
		return validationf("unknown liquidity flag %q", f.LiquidityFlag)
	}
	return nil
}

// record builds the row to append. FillSequence and PositionID are filled in by the caller.
func (f Fill) record(now time.Time) *model.ExecutionRecord {
	rec := &model.ExecutionRecord{
		OrderID:          f.OrderID,
		BrokerAccountID:  f.BrokerAccountID,
		Symbol:           f.Symbol,
		Side:             f.Side,
		ExecutedQuantity: f.Quantity,
		ExecutionPrice:   f.Price,
		ExecutionTime:    f.ExecutionTime,
		Commission:       f.Commission,
		ExchangeFee:      f.ExchangeFee,
		ClearingFee:      f.ClearingFee,
		OtherFees:        f.OtherFees,
		LiquidityFlag:    f.LiquidityFlag,
		SettlementStatus: model.SettlementPending,
	}
	if f.ExecutionID != "" {
		id := f.ExecutionID
		rec.ExecutionID = &id
	}
	if rec.ExecutionTime.IsZero() {
		rec.ExecutionTime = now
	}
	return rec
}

// matches reports whether a stored execution describes the same fill.
func (f Fill) matches(rec *model.ExecutionRecord) bool {
	return rec.OrderID == f.OrderID &&
		rec.BrokerAccountID == f.BrokerAccountID &&
		rec.Symbol == f.Symbol &&
		rec.Side == f.Side &&
		rec.ExecutedQuantity.Equal(f.Quantity) &&
		rec.ExecutionPrice.Equal(f.Price)
}

// positionSide maps the order side to the exposure it builds.
func positionSide(orderSide string) string {
	if orderSide == model.OrderSideSell {
		return model.PositionSideShort
	}
	return model.PositionSideLong
}

func (f Fill) fields() map[string]interface{} {
	return map[string]interface{}{
		"component":    "ledger",
		"order_id":     f.OrderID,
		"execution_id": f.ExecutionID,
		"account":      f.BrokerAccountID,
		"symbol":       f.Symbol,
		"side":         f.Side,
		"qty":          f.Quantity.String(),
		"price":        f.Price.String(),
	}
}
