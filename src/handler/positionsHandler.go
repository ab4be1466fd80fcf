package handler

import (
	"context"
	"net/http"
	"strconv"

	"positionledger/src/auth"
	"positionledger/src/ledger"
	"positionledger/src/model"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type positionReader interface {
	OpenPositions(ctx context.Context, accountID string) ([]model.Position, error)
	Position(ctx context.Context, id uint) (*model.Position, error)
	ClosingPositions(ctx context.Context) ([]model.Position, error)
	Signals(ctx context.Context, positionID uint) ([]model.TriggerSignal, error)
	PortfolioSummary(ctx context.Context, accountID string) (*model.PortfolioSummary, error)
	Executions(ctx context.Context, orderID string) ([]model.ExecutionRecord, error)
	Exceptions(ctx context.Context, module string, limit int) ([]model.Exception, error)
}

type positionWriter interface {
	ClosePosition(ctx context.Context, req ledger.CloseRequest) (*model.Position, error)
	Liquidate(ctx context.Context, positionID uint, price decimal.Decimal, reason string) (*model.Position, error)
	SetRiskLimits(ctx context.Context, positionID uint, limits ledger.RiskLimits) (*model.Position, error)
	ReleaseClosing(ctx context.Context, positionID uint) (*model.Position, error)
	BlockQuantity(ctx context.Context, positionID uint, qty decimal.Decimal) (*model.Position, error)
	ReleaseQuantity(ctx context.Context, positionID uint, qty decimal.Decimal) (*model.Position, error)
}

// OpenPositionsHandler lists the active positions of an account.
func OpenPositionsHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := l.OpenPositions(r.Context(), chi.URLParam(r, "accountID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, positions)
	}
}

func PortfolioSummaryHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := l.PortfolioSummary(r.Context(), chi.URLParam(r, "accountID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ClosingPositionsHandler lists positions waiting for their exit order to fill.
func ClosingPositionsHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := l.ClosingPositions(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, positions)
	}
}

func GetPositionHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		p, err := l.Position(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func PositionSignalsHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		signals, err := l.Signals(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, signals)
	}
}

func OrderExecutionsHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		execs, err := l.Executions(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, execs)
	}
}

// ExceptionsHandler lists stored failures: module "ledger" holds writes given up after
// repeated conflicts, "executors" holds reconcile mismatches. limit defaults to 20.
func ExceptionsHandler(l positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a number"})
				return
			}
			limit = n
		}

		excs, err := l.Exceptions(r.Context(), r.URL.Query().Get("module"), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, excs)
	}
}

type closePayload struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Commission decimal.Decimal `json:"commission"`
	ExitSignal string          `json:"exit_signal"`
}

// ClosePositionHandler closes part or all of a position at the given price.
func ClosePositionHandler(l positionWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		var payload closePayload
		if err := decode(r, &payload); err != nil {
			logger.WithError(err).Warn("invalid close payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		logOperator(r, "close", id)
		p, err := l.ClosePosition(r.Context(), ledger.CloseRequest{
			PositionID: id,
			Price:      payload.Price,
			Quantity:   payload.Quantity,
			Commission: payload.Commission,
			ExitSignal: payload.ExitSignal,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type liquidatePayload struct {
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason"`
}

func LiquidateHandler(l positionWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		var payload liquidatePayload
		if err := decode(r, &payload); err != nil {
			logger.WithError(err).Warn("invalid liquidate payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		logOperator(r, "liquidate", id)
		p, err := l.Liquidate(r.Context(), id, payload.Price, payload.Reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// SetRiskLimitsHandler replaces both exit thresholds; a null or missing price clears it.
func SetRiskLimitsHandler(l positionWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		var limits ledger.RiskLimits
		if err := decode(r, &limits); err != nil {
			logger.WithError(err).Warn("invalid risk limits payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		logOperator(r, "risk", id)
		p, err := l.SetRiskLimits(r.Context(), id, limits)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func ReleaseClosingHandler(l positionWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}

		logOperator(r, "release", id)
		p, err := l.ReleaseClosing(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type quantityPayload struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// BlockQuantityHandler reserves quantity for a pending exit order. With release set it
// hands quantity back instead.
func BlockQuantityHandler(l positionWriter, release bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := positionID(r)
		if !ok {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		var payload quantityPayload
		if err := decode(r, &payload); err != nil {
			logger.WithError(err).Warn("invalid quantity payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		var (
			p   *model.Position
			err error
		)
		if release {
			p, err = l.ReleaseQuantity(r.Context(), id, payload.Quantity)
		} else {
			p, err = l.BlockQuantity(r.Context(), id, payload.Quantity)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func logOperator(r *http.Request, action string, id uint) {
	name := "unknown"
	if op, ok := auth.GetOperatorFromContext(r.Context()); ok && op != nil {
		name = op.Name
	}
	logger.WithFields(map[string]interface{}{
		"operator":    name,
		"action":      action,
		"position_id": id,
	}).Info("operator action")
}
