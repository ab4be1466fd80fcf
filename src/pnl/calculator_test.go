package pnl

import (
	"testing"
	"time"

	"positionledger/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func longPosition(opened time.Time) model.Position {
	return model.Position{
		PositionSide:      model.PositionSideLong,
		Quantity:          d("1000"),
		AvailableQuantity: d("1000"),
		AverageCost:       d("15.50"),
		TotalCost:         d("15500"),
		PositionStatus:    model.PositionStatusOpen,
		OpenedAt:          opened,
	}
}

func TestRecompute_LongPriceTick(t *testing.T) {
	opened := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	now := opened.Add(50 * time.Hour)

	got := Recompute(longPosition(opened), d("15.75"), now)

	require.True(t, got.UnrealizedPnl.Equal(d("250")), "unrealized=%s", got.UnrealizedPnl)
	require.True(t, got.UnrealizedPnlPercent.Equal(d("1.6129")), "percent=%s", got.UnrealizedPnlPercent)
	require.True(t, got.MarketValue().Equal(d("15750")))
	require.True(t, got.TotalPnl().Equal(d("250")))
	require.True(t, got.MaxProfit.Equal(d("250")))
	require.True(t, got.MaxLoss.Equal(decimal.Zero))
	require.Equal(t, 2, got.DaysHeld)
	require.NotNil(t, got.LastPriceUpdate)
	require.Equal(t, now, *got.LastPriceUpdate)
	require.True(t, got.DailyPnl.IsZero())
	require.True(t, got.DailyPnlPercent.IsZero())
}

func TestRecompute_ShortUsesInvertedSign(t *testing.T) {
	p := longPosition(time.Now())
	p.PositionSide = model.PositionSideShort

	got := Recompute(p, d("15.00"), time.Now())

	require.True(t, got.UnrealizedPnl.Equal(d("500")), "unrealized=%s", got.UnrealizedPnl)
	require.True(t, got.UnrealizedPnlPercent.Equal(d("3.2258")), "percent=%s", got.UnrealizedPnlPercent)
}

func TestRecompute_DailyPnl(t *testing.T) {
	tests := []struct {
		name        string
		side        string
		price       string
		wantAmount  string
		wantPercent string
	}{
		{name: "long gains when price rises", side: model.PositionSideLong, price: "16.00", wantAmount: "500", wantPercent: "3.2258"},
		{name: "long loses when price falls", side: model.PositionSideLong, price: "15.00", wantAmount: "-500", wantPercent: "-3.2258"},
		{name: "short gains when price falls", side: model.PositionSideShort, price: "15.00", wantAmount: "500", wantPercent: "3.2258"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := longPosition(time.Now())
			p.PositionSide = tt.side
			p.PreviousClosePrice = decimal.NewNullDecimal(d("15.50"))

			got := Recompute(p, d(tt.price), time.Now())

			require.True(t, got.DailyPnl.Equal(d(tt.wantAmount)), "daily=%s", got.DailyPnl)
			require.True(t, got.DailyPnlPercent.Equal(d(tt.wantPercent)), "daily%%=%s", got.DailyPnlPercent)
		})
	}
}

func TestRecompute_HighWaterMarksOnlyMoveOutward(t *testing.T) {
	now := time.Now()
	p := longPosition(now)

	prices := []string{"15.75", "15.20", "15.60", "16.10", "15.00", "15.55"}
	prevMaxProfit, prevMaxLoss := p.MaxProfit, p.MaxLoss
	for _, price := range prices {
		p = Recompute(p, d(price), now)

		require.True(t, p.MaxProfit.GreaterThanOrEqual(prevMaxProfit))
		require.True(t, p.MaxLoss.LessThanOrEqual(prevMaxLoss))
		require.True(t, p.MaxProfit.GreaterThanOrEqual(p.UnrealizedPnl))
		require.True(t, p.MaxLoss.LessThanOrEqual(p.UnrealizedPnl))
		prevMaxProfit, prevMaxLoss = p.MaxProfit, p.MaxLoss
	}

	require.True(t, p.MaxProfit.Equal(d("600")))
	require.True(t, p.MaxLoss.Equal(d("-500")))
}

func TestRecompute_IsIdempotentForSameInputs(t *testing.T) {
	now := time.Now()
	first := Recompute(longPosition(now), d("15.75"), now)
	second := Recompute(first, d("15.75"), now)

	require.True(t, first.UnrealizedPnl.Equal(second.UnrealizedPnl))
	require.True(t, first.UnrealizedPnlPercent.Equal(second.UnrealizedPnlPercent))
	require.True(t, first.TotalPnl().Equal(second.TotalPnl()))
	require.True(t, first.MaxProfit.Equal(second.MaxProfit))
}

func TestRecompute_ZeroCostHasZeroPercent(t *testing.T) {
	p := longPosition(time.Now())
	p.TotalCost = decimal.Zero

	got := Recompute(p, d("1"), time.Now())

	require.True(t, got.UnrealizedPnlPercent.IsZero())
}

func TestRealizedOnClose(t *testing.T) {
	p := longPosition(time.Now())

	require.True(t, RealizedOnClose(p, d("400"), d("15.75"), d("2")).Equal(d("98")))
	require.True(t, RealizedOnClose(p, d("1000"), d("15.50"), decimal.Zero).IsZero())

	p.PositionSide = model.PositionSideShort
	require.True(t, RealizedOnClose(p, d("400"), d("15.00"), decimal.Zero).Equal(d("200")))
}

func TestDaysHeld(t *testing.T) {
	opened := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 0, DaysHeld(opened, opened.Add(23*time.Hour)))
	require.Equal(t, 1, DaysHeld(opened, opened.Add(24*time.Hour)))
	require.Equal(t, 0, DaysHeld(opened, opened.Add(-time.Hour)))
	require.Equal(t, 0, DaysHeld(time.Time{}, opened))
}
