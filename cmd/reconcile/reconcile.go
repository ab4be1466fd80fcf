package reconcile

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"positionledger/src/connectors"
	"positionledger/src/database"
	"positionledger/src/executors"
	"positionledger/src/ledger"
	"positionledger/src/repository"

	"github.com/sirupsen/logrus"
)

// Reconcile runs one comparison of broker holdings against the ledger and exits.
type Reconcile struct{}

func (r *Reconcile) Start() error {
	config := executors.GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	report, err := executors.Reconcile(ctx,
		connectors.NewAlgoLabClient(connectors.GetConfig()),
		ledger.NewDefaultService(),
		repository.NewExceptionRepository(),
		config.ReconcileAccount,
		config.ReconcileSubAccount,
	)
	if err != nil {
		return err
	}

	for _, m := range report.Mismatches {
		logrus.WithFields(logrus.Fields{
			"symbol": m.Symbol,
			"kind":   m.Kind,
			"broker": m.BrokerQuantity.String(),
			"ledger": m.LedgerQuantity.String(),
		}).Warn("Position mismatch")
	}
	if len(report.Mismatches) > 0 {
		return fmt.Errorf("%d of %d symbols do not match the broker", len(report.Mismatches), report.Checked)
	}
	return nil
}
