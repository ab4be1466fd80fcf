package ledger

import (
	"fmt"
	"time"

	"positionledger/src/model"
	"positionledger/src/pnl"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The functions below are the position state transitions. They work on values and never
// touch storage; the service decides when the result is saved.

func openPosition(f Fill, fees decimal.Decimal, now time.Time) model.Position {
	ref := f.PositionRef
	if ref == "" {
		ref = uuid.NewString()
	}

	p := model.Position{
		PositionRef:       ref,
		BrokerAccountID:   f.BrokerAccountID,
		Symbol:            f.Symbol,
		PositionSide:      positionSide(f.Side),
		Quantity:          f.Quantity,
		AvailableQuantity: f.Quantity,
		MaxQuantity:       f.Quantity,
		AverageCost:       f.Price,
		TotalCost:         f.Quantity.Mul(f.Price).Add(fees),
		CommissionPaid:    fees,
		MaxProfit:         decimal.Zero,
		MaxLoss:           decimal.Zero,
		PositionStatus:    model.PositionStatusOpen,
		OpenedAt:          now,
	}
	return pnl.Recompute(p, f.Price, now)
}

// addToPosition blends a same direction fill into the cost basis.
func addToPosition(p model.Position, qty, price, fees decimal.Decimal) model.Position {
	total := p.Quantity.Add(qty)

	p.AverageCost = p.AverageCost.Mul(p.Quantity).Add(price.Mul(qty)).DivRound(total, pnl.MoneyPlaces)
	p.TotalCost = p.TotalCost.Add(qty.Mul(price)).Add(fees)
	p.CommissionPaid = p.CommissionPaid.Add(fees)
	p.Quantity = total
	p.AvailableQuantity = p.AvailableQuantity.Add(qty)
	p.MaxQuantity = decimal.Max(p.MaxQuantity, total)

	return p
}

// reducePosition closes qty at price. Closing the whole quantity flattens the position;
// anything less keeps averageCost and scales totalCost down to the remaining quantity.
// Derived P&L of a partial close is left to the caller's recompute.
func reducePosition(p model.Position, qty, price, commission decimal.Decimal, now time.Time) (model.Position, error) {
	if !p.IsActive() {
		return p, invalidStatef("position %d is %s", p.ID, p.PositionStatus)
	}
	if qty.GreaterThan(p.Quantity) {
		return p, fmt.Errorf("%w: closing %s of %s %s on position %d",
			ErrOverClose, qty, p.Quantity, p.Symbol, p.ID)
	}

	p.RealizedPnl = p.RealizedPnl.Add(pnl.RealizedOnClose(p, qty, price, commission))
	p.CommissionPaid = p.CommissionPaid.Add(commission)

	if qty.Equal(p.Quantity) {
		return flatten(p, price, model.PositionStatusClosed, now), nil
	}

	remaining := p.Quantity.Sub(qty)
	p.TotalCost = p.TotalCost.Mul(remaining).DivRound(p.Quantity, pnl.MoneyPlaces)
	p.Quantity = remaining
	p.AvailableQuantity = decimal.Max(decimal.Zero, p.AvailableQuantity.Sub(qty))

	return p, nil
}

// flatten zeroes the exposure and moves the position into a terminal status.
func flatten(p model.Position, price decimal.Decimal, status string, now time.Time) model.Position {
	ts := now

	p.Quantity = decimal.Zero
	p.AvailableQuantity = decimal.Zero
	p.TotalCost = decimal.Zero
	p.UnrealizedPnl = decimal.Zero
	p.UnrealizedPnlPercent = decimal.Zero
	p.DailyPnl = decimal.Zero
	p.DailyPnlPercent = decimal.Zero
	p.CurrentPrice = price
	p.LastPriceUpdate = &ts
	p.ClosedAt = &ts
	p.DaysHeld = pnl.DaysHeld(p.OpenedAt, now)
	p.PositionStatus = status

	return p
}

// markPrice is the price to recompute against: the last mark when there is one.
func markPrice(p model.Position, fallback decimal.Decimal) decimal.Decimal {
	if p.CurrentPrice.IsPositive() {
		return p.CurrentPrice
	}
	return fallback
}
