package prices

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"positionledger/src/connectors"
	"positionledger/src/database"
	"positionledger/src/executors"
	"positionledger/src/ledger"

	"github.com/sirupsen/logrus"
)

// Prices polls last prices for every symbol with active positions.
type Prices struct{}

func (p *Prices) Start() error {
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

	source, err := executors.NewPriceSource(config.PriceSource, connectors.GetConfig())
	if err != nil {
		return err
	}

	svc := ledger.NewDefaultService().WithSink(executors.NewSignalSink(config))

	logrus.WithFields(logrus.Fields{
		"source": config.PriceSource,
		"period": config.LoopPeriod.String(),
	}).Info("Starting price loop")

	if err := executors.StartLoop(ctx, svc, source, config.LoopPeriod); err != nil {
		logrus.WithError(err).Error("Failed to start price loop")
		return err
	}

	return nil
}
