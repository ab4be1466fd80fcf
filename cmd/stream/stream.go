package stream

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

// Stream consumes the broker's fill and tick stream into the ledger.
type Stream struct{}

func (s *Stream) Start() error {
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

	svc := ledger.NewDefaultService().WithSink(executors.NewSignalSink(executors.GetConfig()))

	cfg := connectors.GetConfig()
	logrus.WithFields(logrus.Fields{
		"url":     cfg.StreamURL,
		"symbols": cfg.StreamSymbols,
	}).Info("Starting broker stream")

	return connectors.NewStream(cfg, executors.NewLedgerStreamHandler(svc)).Run(ctx)
}
