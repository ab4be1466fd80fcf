package executors

import (
	"context"
	"errors"

	"positionledger/src/connectors"
	"positionledger/src/ledger"
	"positionledger/src/mapper"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// FillApplier is the part of the ledger the stream feeds.
type FillApplier interface {
	ApplyFill(ctx context.Context, f ledger.Fill) (*ledger.FillResult, error)
	UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error)
	SetPreviousClose(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error)
}

// LedgerStreamHandler routes broker stream frames into the ledger.
type LedgerStreamHandler struct {
	ledger FillApplier
}

func NewLedgerStreamHandler(l FillApplier) *LedgerStreamHandler {
	return &LedgerStreamHandler{ledger: l}
}

func (h *LedgerStreamHandler) OnFill(ctx context.Context, ev connectors.FillEvent) error {
	fill := mapper.MapFillEventToLedger(&ev)

	res, err := h.ledger.ApplyFill(ctx, *fill)
	if err != nil {
		if errors.Is(err, ledger.ErrValidation) || errors.Is(err, ledger.ErrOverClose) {
			// the broker will not send this one differently; drop it
			logger.WithFields(map[string]interface{}{
				"component":    "LedgerStreamHandler",
				"order_id":     ev.OrderID,
				"execution_id": ev.ExecutionID,
			}).WithError(err).Error("Fill rejected by ledger")
		}
		return err
	}

	if res.Duplicate {
		logger.WithField("execution_id", ev.ExecutionID).Debug("Stream redelivered an execution")
	}
	return nil
}

func (h *LedgerStreamHandler) OnTick(ctx context.Context, tick connectors.Tick) error {
	_, err := h.ledger.UpdatePrice(ctx, tick.Symbol, tick.Last)
	return err
}

func (h *LedgerStreamHandler) OnClosePrice(ctx context.Context, p connectors.ClosePrice) error {
	_, err := h.ledger.SetPreviousClose(ctx, p.Symbol, p.Close)
	return err
}
