package mapper

import (
	"strings"

	logger "github.com/sirupsen/logrus"

	"positionledger/src/connectors"
	"positionledger/src/ledger"
	"positionledger/src/model"
)

// MapFillEventToLedger converts a broker execution report into the ledger's fill.
// Validation of amounts is left to the ledger.
func MapFillEventToLedger(ev *connectors.FillEvent) *ledger.Fill {
	if ev == nil {
		logger.WithField("mapper", "MapFillEventToLedger").
			Error("Nil FillEvent received")
		return nil
	}

	return &ledger.Fill{
		OrderID:         ev.OrderID,
		ExecutionID:     ev.ExecutionID,
		PositionRef:     ev.PositionRef,
		BrokerAccountID: ev.AccountID,
		Symbol:          ev.Symbol,
		Side:            mapSide(ev.Side),
		Quantity:        ev.Quantity,
		Price:           ev.Price,
		Commission:      ev.Commission,
		ExchangeFee:     ev.ExchangeFee,
		ClearingFee:     ev.ClearingFee,
		OtherFees:       ev.OtherFees,
		LiquidityFlag:   mapLiquidity(ev.IsMaker),
		ExecutionTime:   ev.ExecutionTime.UTC(),
	}
}

// mapSide accepts the broker's long and short spellings (B, BUY, Alış ...).
func mapSide(side string) string {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "B", "BUY", "ALIŞ", "ALIS":
		return model.OrderSideBuy
	case "S", "SELL", "SATIŞ", "SATIS":
		return model.OrderSideSell
	default:
		logger.WithFields(map[string]interface{}{
			"mapper": "mapSide",
			"value":  side,
		}).Warn("Unknown order side in fill event")
		return strings.ToUpper(side)
	}
}

func mapLiquidity(isMaker *bool) string {
	switch {
	case isMaker == nil:
		return model.LiquidityUnknown
	case *isMaker:
		return model.LiquidityMaker
	default:
		return model.LiquidityTaker
	}
}
