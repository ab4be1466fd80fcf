package risk

import (
	"time"

	"positionledger/src/model"

	"github.com/shopspring/decimal"
)

// Evaluate checks the freshly recomputed position against its exit thresholds.
//
// Long:
// - stop loss:   price <= stopLoss
// - take profit: price >= takeProfit
//
// Short:
// - stop loss:   price >= stopLoss
// - take profit: price <= takeProfit
//
// Margin call (both sides): unrealized % <= -cfg.MarginCallPercent.
//
// On a hit the position moves to CLOSING and a signal is returned. Only OPEN positions are
// evaluated, so a CLOSING position never fires twice.
func Evaluate(p model.Position, cfg Config, now time.Time) (model.Position, *model.TriggerSignal) {
	if p.PositionStatus != model.PositionStatusOpen {
		return p, nil
	}

	reason, threshold, hit := detect(p, cfg)
	if !hit {
		return p, nil
	}

	p.PositionStatus = model.PositionStatusClosing

	return p, &model.TriggerSignal{
		PositionID:      p.ID,
		PositionRef:     p.PositionRef,
		BrokerAccountID: p.BrokerAccountID,
		Symbol:          p.Symbol,
		PositionSide:    p.PositionSide,
		Reason:          reason,
		TriggerPrice:    p.CurrentPrice,
		Threshold:       threshold,
		Quantity:        p.Quantity,
		CreatedAt:       now,
	}
}

func detect(p model.Position, cfg Config) (string, decimal.Decimal, bool) {
	price := p.CurrentPrice

	switch p.PositionSide {
	case model.PositionSideLong:
		if p.StopLossPrice.Valid && price.LessThanOrEqual(p.StopLossPrice.Decimal) {
			return model.TriggerStopLoss, p.StopLossPrice.Decimal, true
		}
		if p.TakeProfitPrice.Valid && price.GreaterThanOrEqual(p.TakeProfitPrice.Decimal) {
			return model.TriggerTakeProfit, p.TakeProfitPrice.Decimal, true
		}

	case model.PositionSideShort:
		if p.StopLossPrice.Valid && price.GreaterThanOrEqual(p.StopLossPrice.Decimal) {
			return model.TriggerStopLoss, p.StopLossPrice.Decimal, true
		}
		if p.TakeProfitPrice.Valid && price.LessThanOrEqual(p.TakeProfitPrice.Decimal) {
			return model.TriggerTakeProfit, p.TakeProfitPrice.Decimal, true
		}
	}

	if cfg.MarginCallPercent.IsPositive() && p.UnrealizedPnlPercent.LessThanOrEqual(cfg.MarginCallPercent.Neg()) {
		return model.TriggerMarginCall, cfg.MarginCallPercent.Neg(), true
	}

	return "", decimal.Zero, false
}
