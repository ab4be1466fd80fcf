package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"positionledger/src/model"
	"positionledger/src/pnl"
	"positionledger/src/repository"
	"positionledger/src/risk"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// errUnchanged lets a transition leave the stored position alone.
var errUnchanged = errors.New("position unchanged")

// transition turns the freshly loaded position into the one to save.
type transition func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error)

// CloseRequest closes quantity of a position outside of any order flow, for example a
// manual close or one the broker did on its own.
type CloseRequest struct {
	PositionID uint            `json:"position_id"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Commission decimal.Decimal `json:"commission"`
	ExitSignal string          `json:"exit_signal"`
}

// RiskLimits are the exit thresholds of a position. An invalid NullDecimal clears the limit.
type RiskLimits struct {
	StopLoss   decimal.NullDecimal `json:"stop_loss_price"`
	TakeProfit decimal.NullDecimal `json:"take_profit_price"`
}

func (s *Service) ClosePosition(ctx context.Context, req CloseRequest) (*model.Position, error) {
	switch {
	case !req.Price.IsPositive():
		return nil, validationf("close price must be positive, got %s", req.Price)
	case !req.Quantity.IsPositive():
		return nil, validationf("close quantity must be positive, got %s", req.Quantity)
	case req.Commission.IsNegative():
		return nil, validationf("commission must not be negative")
	}

	p, err := s.mutate(ctx, "ClosePosition", req.PositionID, func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error) {
		next, err := reducePosition(p, req.Quantity, req.Price, req.Commission, now)
		if err != nil {
			return p, nil, err
		}
		next.ExitReason = req.ExitSignal
		if !next.IsActive() {
			return next, nil, nil
		}

		next = pnl.Recompute(next, markPrice(next, req.Price), now)
		next, signal := risk.Evaluate(next, s.risk, now)
		return next, signal, nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":   "ledger",
		"op":          "ClosePosition",
		"position_id": p.ID,
		"qty":         req.Quantity.String(),
		"price":       req.Price.String(),
		"exit_signal": req.ExitSignal,
		"status":      p.PositionStatus,
		"realized":    p.RealizedPnl.String(),
	}).Info("Position closed")

	return p, nil
}

// Liquidate force closes everything left at price. Fees are not known at this point.
func (s *Service) Liquidate(ctx context.Context, positionID uint, price decimal.Decimal, reason string) (*model.Position, error) {
	if !price.IsPositive() {
		return nil, validationf("liquidation price must be positive, got %s", price)
	}
	if reason == "" {
		reason = "LIQUIDATION"
	}

	p, err := s.mutate(ctx, "Liquidate", positionID, func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error) {
		if !p.IsActive() {
			return p, nil, invalidStatef("position %d is %s", p.ID, p.PositionStatus)
		}
		p.RealizedPnl = p.RealizedPnl.Add(pnl.RealizedOnClose(p, p.Quantity, price, decimal.Zero))
		p = flatten(p, price, model.PositionStatusLiquidated, now)
		p.ExitReason = reason
		return p, nil, nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":   "ledger",
		"op":          "Liquidate",
		"position_id": p.ID,
		"price":       price.String(),
		"reason":      reason,
		"realized":    p.RealizedPnl.String(),
	}).Warn("Position liquidated")

	return p, nil
}

// SetRiskLimits replaces both thresholds and evaluates them against the last mark right away.
func (s *Service) SetRiskLimits(ctx context.Context, positionID uint, limits RiskLimits) (*model.Position, error) {
	if limits.StopLoss.Valid && !limits.StopLoss.Decimal.IsPositive() {
		return nil, validationf("stop loss must be positive, got %s", limits.StopLoss.Decimal)
	}
	if limits.TakeProfit.Valid && !limits.TakeProfit.Decimal.IsPositive() {
		return nil, validationf("take profit must be positive, got %s", limits.TakeProfit.Decimal)
	}

	return s.mutate(ctx, "SetRiskLimits", positionID, func(p model.Position, now time.Time) (model.Position, *model.TriggerSignal, error) {
		if !p.IsActive() {
			return p, nil, invalidStatef("position %d is %s", p.ID, p.PositionStatus)
		}
		if limits.StopLoss.Valid && limits.TakeProfit.Valid {
			sl, tp := limits.StopLoss.Decimal, limits.TakeProfit.Decimal
			if (p.IsLong() && !sl.LessThan(tp)) || (!p.IsLong() && !sl.GreaterThan(tp)) {
				return p, nil, validationf("stop loss %s and take profit %s are inverted for a %s position", sl, tp, p.PositionSide)
			}
		}

		p.StopLossPrice = limits.StopLoss
		p.TakeProfitPrice = limits.TakeProfit
		if !p.CurrentPrice.IsPositive() {
			return p, nil, nil
		}

		p = pnl.Recompute(p, p.CurrentPrice, now)
		p, signal := risk.Evaluate(p, s.risk, now)
		return p, signal, nil
	})
}

// ReleaseClosing reopens a CLOSING position whose closing order was cancelled or rejected.
func (s *Service) ReleaseClosing(ctx context.Context, positionID uint) (*model.Position, error) {
	return s.mutate(ctx, "ReleaseClosing", positionID, func(p model.Position, _ time.Time) (model.Position, *model.TriggerSignal, error) {
		if p.PositionStatus != model.PositionStatusClosing {
			return p, nil, invalidStatef("position %d is %s, not CLOSING", p.ID, p.PositionStatus)
		}
		p.PositionStatus = model.PositionStatusOpen
		return p, nil, nil
	})
}

// BlockQuantity reserves qty of the available quantity for a working order.
func (s *Service) BlockQuantity(ctx context.Context, positionID uint, qty decimal.Decimal) (*model.Position, error) {
	if !qty.IsPositive() {
		return nil, validationf("quantity must be positive, got %s", qty)
	}

	return s.mutate(ctx, "BlockQuantity", positionID, func(p model.Position, _ time.Time) (model.Position, *model.TriggerSignal, error) {
		if !p.IsActive() {
			return p, nil, invalidStatef("position %d is %s", p.ID, p.PositionStatus)
		}
		if qty.GreaterThan(p.AvailableQuantity) {
			return p, nil, validationf("cannot block %s, only %s available", qty, p.AvailableQuantity)
		}
		p.AvailableQuantity = p.AvailableQuantity.Sub(qty)
		return p, nil, nil
	})
}

// ReleaseQuantity returns blocked quantity to available.
func (s *Service) ReleaseQuantity(ctx context.Context, positionID uint, qty decimal.Decimal) (*model.Position, error) {
	if !qty.IsPositive() {
		return nil, validationf("quantity must be positive, got %s", qty)
	}

	return s.mutate(ctx, "ReleaseQuantity", positionID, func(p model.Position, _ time.Time) (model.Position, *model.TriggerSignal, error) {
		if !p.IsActive() {
			return p, nil, invalidStatef("position %d is %s", p.ID, p.PositionStatus)
		}
		if qty.GreaterThan(p.BlockedQuantity()) {
			return p, nil, validationf("cannot release %s, only %s blocked", qty, p.BlockedQuantity())
		}
		p.AvailableQuantity = p.AvailableQuantity.Add(qty)
		return p, nil, nil
	})
}

// mutate loads the position under its key lock, applies change and saves the result with
// any signal in one transaction. The signal is published after commit.
func (s *Service) mutate(ctx context.Context, op string, positionID uint, change transition) (*model.Position, error) {
	head, err := (&repository.PositionRepository{}).WithDB(s.db).FindByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("%w: position %d", ErrNotFound, positionID)
	}

	fields := map[string]interface{}{
		"component":   "ledger",
		"op":          op,
		"position_id": positionID,
		"account":     head.BrokerAccountID,
		"symbol":      head.Symbol,
	}

	var (
		out    *model.Position
		signal *model.TriggerSignal
	)
	err = s.withRetry(ctx, op, fields, func() error {
		unlock := s.locks.Lock(positionKey(head.BrokerAccountID, head.Symbol))
		defer unlock()

		out, signal = nil, nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			positions := (&repository.PositionRepository{}).WithDB(tx)

			current, err := positions.FindByID(ctx, positionID)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("%w: position %d", ErrNotFound, positionID)
			}

			next, sig, err := change(*current, s.now())
			if errors.Is(err, errUnchanged) {
				out = current
				return nil
			}
			if err != nil {
				return err
			}

			if err := positions.Update(ctx, &next); err != nil {
				return err
			}
			if sig != nil {
				sig.PositionID = next.ID
				if err := (&repository.SignalRepository{}).WithDB(tx).Create(ctx, sig); err != nil {
					return err
				}
			}

			out, signal = &next, sig
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if signal != nil {
		s.publish(ctx, *signal)
	}
	return out, nil
}
