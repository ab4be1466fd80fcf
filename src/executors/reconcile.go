package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"positionledger/src/connectors"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	MismatchMissingInLedger = "MISSING_IN_LEDGER"
	MismatchMissingAtBroker = "MISSING_AT_BROKER"
	MismatchQuantity        = "QUANTITY_MISMATCH"
)

type BrokerPositions interface {
	Positions(ctx context.Context, subAccount string) ([]connectors.BrokerPosition, error)
}

type LedgerPositions interface {
	OpenPositions(ctx context.Context, accountID string) ([]model.Position, error)
}

type ExceptionRecorder interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Mismatch is one symbol where the broker and the ledger disagree.
type Mismatch struct {
	Symbol         string          `json:"symbol"`
	Kind           string          `json:"kind"`
	BrokerQuantity decimal.Decimal `json:"broker_quantity"`
	LedgerQuantity decimal.Decimal `json:"ledger_quantity"`
	PositionID     uint            `json:"position_id,omitempty"`
}

type ReconcileReport struct {
	AccountID  string     `json:"account_id"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Reconcile compares the broker's holdings with the ledger's active positions of one account.
// Quantities are compared signed: LONG positive, SHORT negative. Every mismatch is stored
// as an Exception; nothing in the ledger is changed.
func Reconcile(ctx context.Context, broker BrokerPositions, ledgerView LedgerPositions, recorder ExceptionRecorder,
	accountID, subAccount string) (*ReconcileReport, error) {
	if accountID == "" {
		return nil, fmt.Errorf("reconcile account not set")
	}

	held, err := broker.Positions(ctx, subAccount)
	if err != nil {
		return nil, fmt.Errorf("broker positions: %w", err)
	}
	active, err := ledgerView.OpenPositions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ledger positions: %w", err)
	}

	brokerQty := make(map[string]decimal.Decimal, len(held))
	for _, bp := range held {
		brokerQty[bp.Symbol] = brokerQty[bp.Symbol].Add(bp.Quantity)
	}
	ledgerQty := make(map[string]decimal.Decimal, len(active))
	positionIDs := make(map[string]uint, len(active))
	for _, p := range active {
		qty := p.Quantity
		if !p.IsLong() {
			qty = qty.Neg()
		}
		ledgerQty[p.Symbol] = qty
		positionIDs[p.Symbol] = p.ID
	}

	symbols := make([]string, 0, len(brokerQty)+len(ledgerQty))
	for s := range brokerQty {
		symbols = append(symbols, s)
	}
	for s := range ledgerQty {
		if _, ok := brokerQty[s]; !ok {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)

	report := &ReconcileReport{AccountID: accountID, Checked: len(symbols)}
	for _, s := range symbols {
		b, inBroker := brokerQty[s]
		l, inLedger := ledgerQty[s]

		var kind string
		switch {
		case inBroker && !inLedger:
			if b.IsZero() {
				continue
			}
			kind = MismatchMissingInLedger
		case inLedger && !inBroker:
			kind = MismatchMissingAtBroker
		case !b.Equal(l):
			kind = MismatchQuantity
		default:
			continue
		}

		report.Mismatches = append(report.Mismatches, Mismatch{
			Symbol:         s,
			Kind:           kind,
			BrokerQuantity: b,
			LedgerQuantity: l,
			PositionID:     positionIDs[s],
		})
	}

	for _, m := range report.Mismatches {
		recordMismatch(ctx, recorder, accountID, m)
	}

	logger.WithFields(map[string]interface{}{
		"component":  "Reconcile",
		"account":    accountID,
		"checked":    report.Checked,
		"mismatches": len(report.Mismatches),
	}).Info("Reconciliation finished")

	return report, nil
}

func recordMismatch(ctx context.Context, recorder ExceptionRecorder, accountID string, m Mismatch) {
	if recorder == nil {
		return
	}

	var ctxJSON string
	if b, err := json.Marshal(m); err == nil {
		ctxJSON = string(b)
	}

	exc := &model.Exception{
		Service:   "reconcile",
		Module:    "executors",
		Method:    "Reconcile",
		Message:   fmt.Sprintf("%s %s: broker %s, ledger %s", accountID, m.Symbol, m.BrokerQuantity, m.LedgerQuantity),
		Level:     "warn",
		Context:   ctxJSON,
		CreatedAt: time.Now().UTC(),
	}

	if err := recorder.Create(ctx, exc); err != nil {
		logger.WithError(err).Error("Failed to persist reconciliation mismatch")
	}
}
