package executors

import (
	"context"
	"fmt"
	"time"

	"positionledger/src/connectors"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	PriceSourceAlgoLab = "algolab"
	PriceSourceBinance = "binance"
)

// Pricer is the part of the ledger the price loop drives.
type Pricer interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
	UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error)
}

// NewPriceSource picks the market data connector by name.
func NewPriceSource(name string, cfg connectors.Config) (connectors.PriceSource, error) {
	switch name {
	case PriceSourceAlgoLab:
		return connectors.NewAlgoLabClient(cfg), nil
	case PriceSourceBinance:
		return connectors.NewBinancePriceSource(cfg, nil), nil
	default:
		return nil, fmt.Errorf("price source %s not supported", name)
	}
}

// StartLoop marks every active symbol to the source's last price each LoopPeriod
// until ctx is cancelled. A failing symbol is logged and retried on the next tick.
func StartLoop(ctx context.Context, pricer Pricer, source connectors.PriceSource, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("loop period must be positive, got %s", period)
	}

	ticker := time.NewTicker(period) // Set up a ticker that fires periodically
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("price loop stopped")
			return nil

		case <-ticker.C:
			logger.Debug("price loop tick")
			RefreshPrices(ctx, pricer, source)
		}
	}
}

// RefreshPrices runs one pass over the active symbols and returns the signals raised.
func RefreshPrices(ctx context.Context, pricer Pricer, source connectors.PriceSource) []model.TriggerSignal {
	symbols, err := pricer.ActiveSymbols(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list active symbols")
		return nil
	}

	var signals []model.TriggerSignal
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return signals
		}

		log := logger.WithFields(map[string]interface{}{
			"component": "PriceLoop",
			"symbol":    symbol,
		})

		price, err := source.LastPrice(ctx, symbol)
		if err != nil {
			log.WithError(err).Warn("Failed to fetch last price")
			continue
		}

		emitted, err := pricer.UpdatePrice(ctx, symbol, price)
		if err != nil {
			log.WithError(err).Error("Failed to update price")
		}
		signals = append(signals, emitted...)

		log.WithFields(map[string]interface{}{
			"price":   price.String(),
			"signals": len(emitted),
		}).Debug("Symbol marked")
	}
	return signals
}
