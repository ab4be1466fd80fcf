package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"positionledger/src/model"
	"positionledger/src/pnl"
	"positionledger/src/repository"
	"positionledger/src/risk"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// UpdatePrice marks every active position in symbol to price and returns the signals raised.
// Positions are handled one by one; a failure on one does not stop the others.
func (s *Service) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, validationf("symbol is required")
	}
	if !price.IsPositive() {
		return nil, validationf("price must be positive, got %s", price)
	}

	return s.eachActive(ctx, "UpdatePrice", symbol, func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error) {
		if !p.IsActive() {
			return p, nil, errUnchanged
		}
		p = pnl.Recompute(p, price, now)
		p, signal := risk.Evaluate(p, s.risk, now)
		return p, signal, nil
	})
}

// SetPreviousClose stores the reference close daily P&L is measured from.
func (s *Service) SetPreviousClose(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, validationf("symbol is required")
	}
	if !price.IsPositive() {
		return nil, validationf("previous close must be positive, got %s", price)
	}

	return s.eachActive(ctx, "SetPreviousClose", symbol, func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error) {
		if !p.IsActive() {
			return p, nil, errUnchanged
		}
		p.PreviousClosePrice = decimal.NewNullDecimal(price)
		p = pnl.Recompute(p, markPrice(p, price), now)
		p, signal := risk.Evaluate(p, s.risk, now)
		return p, signal, nil
	})
}

func (s *Service) eachActive(ctx context.Context, op, symbol string, change transition) ([]model.TriggerSignal, error) {
	active, err := (&repository.PositionRepository{}).WithDB(s.db).ListActiveBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var (
		signals []model.TriggerSignal
		errs    []error
	)
	for _, p := range active {
		signal, err := s.mutateWithSignal(ctx, op, p.ID, change)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"component":   "ledger",
				"op":          op,
				"position_id": p.ID,
				"symbol":      symbol,
			}).WithError(err).Error("Failed to reprice position")
			errs = append(errs, err)
			continue
		}
		if signal != nil {
			signals = append(signals, *signal)
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "ledger",
		"op":        op,
		"symbol":    symbol,
		"positions": len(active),
		"signals":   len(signals),
	}).Debug("Symbol repriced")

	return signals, errors.Join(errs...)
}

// mutateWithSignal is mutate for callers that need the emitted signal back.
func (s *Service) mutateWithSignal(ctx context.Context, op string, positionID uint, change transition) (*model.TriggerSignal, error) {
	var emitted *model.TriggerSignal
	_, err := s.mutate(ctx, op, positionID, func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error) {
		next, signal, err := change(p, now)
		emitted = signal
		return next, signal, err
	})
	if err != nil {
		return nil, err
	}
	return emitted, nil
}
