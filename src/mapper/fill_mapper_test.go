package mapper

import (
	"testing"
	"time"

	"positionledger/src/connectors"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMapFillEventToLedger(t *testing.T) {
	maker := true
	ts := time.Date(2025, 3, 3, 13, 0, 0, 0, time.FixedZone("TRT", 3*3600))

	f := MapFillEventToLedger(&connectors.FillEvent{
		OrderID:       "ORD-1",
		ExecutionID:   "EX-1",
		AccountID:     "ACC-1",
		PositionRef:   "BRK-9",
		Symbol:        "THYAO",
		Side:          "B",
		Quantity:      decimal.NewFromInt(1000),
		Price:         decimal.RequireFromString("15.50"),
		Commission:    decimal.RequireFromString("1.2"),
		ClearingFee:   decimal.RequireFromString("0.3"),
		IsMaker:       &maker,
		ExecutionTime: ts,
	})

	require.NotNil(t, f)
	require.Equal(t, model.OrderSideBuy, f.Side)
	require.Equal(t, "ACC-1", f.BrokerAccountID)
	require.Equal(t, "BRK-9", f.PositionRef)
	require.Equal(t, model.LiquidityMaker, f.LiquidityFlag)
	require.Equal(t, time.UTC, f.ExecutionTime.Location())
	require.True(t, f.ExecutionTime.Equal(ts))
	require.True(t, f.ClearingFee.Equal(decimal.RequireFromString("0.3")))
}

func TestMapSideAndLiquidity(t *testing.T) {
	cases := map[string]string{
		"buy":   model.OrderSideBuy,
		"B":     model.OrderSideBuy,
		"Alış":  model.OrderSideBuy,
		"SELL":  model.OrderSideSell,
		" s ":   model.OrderSideSell,
		"Satış": model.OrderSideSell,
		"hold":  "HOLD",
	}
	for in, want := range cases {
		require.Equal(t, want, mapSide(in), in)
	}

	taker := false
	require.Equal(t, model.LiquidityTaker, mapLiquidity(&taker))
	require.Equal(t, model.LiquidityUnknown, mapLiquidity(nil))

	require.Nil(t, MapFillEventToLedger(nil))
}
