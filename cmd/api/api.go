package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"positionledger/src/database"
	"positionledger/src/executors"
	"positionledger/src/ledger"
	"positionledger/src/security"
	"positionledger/src/server"

	"github.com/sirupsen/logrus"
)

// API serves the admin HTTP surface over the ledger.
type API struct{}

func (a *API) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to read-only database")
		return err
	}

	svc := ledger.NewDefaultService().WithSink(executors.NewSignalSink(executors.GetConfig()))

	config := server.GetConfig()
	return server.StartServer(ctx, config.Port, server.NewRouter(svc, security.GetConfig()), config.ShutdownTimeout)
}
