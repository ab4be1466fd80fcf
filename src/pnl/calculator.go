package pnl

import (
	"time"

	"positionledger/src/model"

	"github.com/shopspring/decimal"
)

const (
	// PercentPlaces is the scale used for every percentage the calculator produces.
	PercentPlaces = 4
	// MoneyPlaces matches the numeric(30,10) columns amounts are stored in.
	MoneyPlaces = 10
)

var hundred = decimal.NewFromInt(100)

// Recompute marks the position to price and returns the refreshed copy.
//
// Derived fields:
// - marketValue  = quantity * price
// - unrealized   = LONG: marketValue - totalCost, SHORT: totalCost - marketValue
// - unrealized % = unrealized / |totalCost| * 100 (0 when totalCost is 0)
// - daily        = quantity * (price - previousClose), sign flipped for SHORT, 0 without previousClose
//
// maxProfit and maxLoss only move outward; lastPriceUpdate and daysHeld follow now.
func Recompute(p model.Position, price decimal.Decimal, now time.Time) model.Position {
	p.CurrentPrice = price
	ts := now
	p.LastPriceUpdate = &ts

	marketValue := p.Quantity.Mul(price)
	if p.IsLong() {
		p.UnrealizedPnl = marketValue.Sub(p.TotalCost)
	} else {
		p.UnrealizedPnl = p.TotalCost.Sub(marketValue)
	}

	if p.TotalCost.IsZero() {
		p.UnrealizedPnlPercent = decimal.Zero
	} else {
		p.UnrealizedPnlPercent = p.UnrealizedPnl.Div(p.TotalCost.Abs()).Mul(hundred).Round(PercentPlaces)
	}

	p.DailyPnl, p.DailyPnlPercent = Daily(p, price)

	p.MaxProfit = decimal.Max(p.MaxProfit, p.UnrealizedPnl)
	p.MaxLoss = decimal.Min(p.MaxLoss, p.UnrealizedPnl)

	p.DaysHeld = DaysHeld(p.OpenedAt, now)

	return p
}

// Daily returns the P&L and percent move against the previous close, or zeros when no
// previous close is known.
func Daily(p model.Position, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if !p.PreviousClosePrice.Valid || p.PreviousClosePrice.Decimal.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	prev := p.PreviousClosePrice.Decimal
	move := price.Sub(prev)
	amount := p.Quantity.Mul(move)
	percent := move.Div(prev).Mul(hundred).Round(PercentPlaces)
	if !p.IsLong() {
		return amount.Neg(), percent.Neg()
	}
	return amount, percent
}

// RealizedOnClose is the P&L locked in by closing qty at price, paying commission:
//
//	proceeds = qty * price - commission
//	LONG:  proceeds - averageCost * qty
//	SHORT: averageCost * qty - proceeds
func RealizedOnClose(p model.Position, qty, price, commission decimal.Decimal) decimal.Decimal {
	proceeds := qty.Mul(price).Sub(commission)
	basis := p.AverageCost.Mul(qty)
	if p.IsLong() {
		return proceeds.Sub(basis)
	}
	return basis.Sub(proceeds)
}

// DaysHeld counts whole days between openedAt and now, never negative.
func DaysHeld(openedAt, now time.Time) int {
	if openedAt.IsZero() || now.Before(openedAt) {
		return 0
	}
	return int(now.Sub(openedAt) / (24 * time.Hour))
}
