package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"positionledger/cmd/api"
	"positionledger/cmd/prices"
	"positionledger/cmd/reconcile"
	"positionledger/cmd/stream"
	"positionledger/src/database"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func SetupLogger() {
	config := database.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(config.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	app := cli.NewApp()
	app.Name = "Position Ledger"
	app.Usage = "Execution and position ledger for brokerage accounts"
	app.Version = Version

	app.Commands = []cli.Command{
		apiCMD,
		streamCMD,
		pricesCMD,
		reconcileCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	apiCMD = cli.Command{
		Name:        "api",
		Usage:       "run the admin HTTP API",
		Action:      apiAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve position queries, manual closes and fill ingestion over HTTP`,
	}
	streamCMD = cli.Command{
		Name:        "stream",
		Usage:       "run the broker stream consumer",
		Action:      streamAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Apply fills and ticks from the broker websocket to the ledger`,
	}
	pricesCMD = cli.Command{
		Name:        "prices",
		Usage:       "run the price polling loop",
		Action:      pricesAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Mark active positions to the configured price source every LOOP_PERIOD`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "compare broker positions with the ledger",
		Action:      reconcileAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Record every quantity mismatch between the broker and the ledger as an exception`,
	}
)

func apiAction(_ *cli.Context) error {
	logrus.WithField("cmd", "api").Info("Starting API CMD")
	return run(&api.API{})
}

func streamAction(_ *cli.Context) error {
	logrus.WithField("cmd", "stream").Info("Starting stream CMD")
	return run(&stream.Stream{})
}

func pricesAction(_ *cli.Context) error {
	logrus.WithField("cmd", "prices").Info("Starting prices CMD")
	return run(&prices.Prices{})
}

func reconcileAction(_ *cli.Context) error {
	logrus.WithField("cmd", "reconcile").Info("Starting reconcile CMD")
	return run(&reconcile.Reconcile{})
}

type starter interface {
	Start() error
}

func run(s starter) error {
	if err := s.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func handlePanic() {
	if r := recover(); r != nil {
		logrus.WithError(fmt.Errorf("%+v", r)).Error("Position ledger panic")
		//nolint
		time.Sleep(time.Second * 5)
	}
}
