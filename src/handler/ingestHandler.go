package handler

import (
	"context"
	"net/http"

	"positionledger/src/ledger"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type fillIngester interface {
	ApplyFill(ctx context.Context, f ledger.Fill) (*ledger.FillResult, error)
	UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error)
	SetPreviousClose(ctx context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error)
}

// ApplyFillHandler feeds one broker execution into the ledger. A redelivered execution
// answers 200 with the stored rows, a new one 201.
func ApplyFillHandler(l fillIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fill ledger.Fill
		if err := decode(r, &fill); err != nil {
			logger.WithError(err).Warn("invalid fill payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		res, err := l.ApplyFill(r.Context(), fill)
		if err != nil {
			writeError(w, r, err)
			return
		}

		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

type pricePayload struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type signalsResponse struct {
	Symbol  string                `json:"symbol"`
	Signals []model.TriggerSignal `json:"signals"`
}

// TickHandler marks every active position in the symbol to the price. With previousClose
// set the price is stored as the reference close instead.
func TickHandler(l fillIngester, previousClose bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload pricePayload
		if err := decode(r, &payload); err != nil {
			logger.WithError(err).Warn("invalid tick payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		update := l.UpdatePrice
		if previousClose {
			update = l.SetPreviousClose
		}

		signals, err := update(r.Context(), payload.Symbol, payload.Price)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if signals == nil {
			signals = []model.TriggerSignal{}
		}
		writeJSON(w, http.StatusOK, signalsResponse{Symbol: payload.Symbol, Signals: signals})
	}
}
