package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PriceSource string        `envconfig:"PRICE_SOURCE" default:"algolab"`
	LoopPeriod  time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`

	// ReconcileAccount is the ledger broker account the AlgoLab session belongs to.
	ReconcileAccount    string `envconfig:"RECONCILE_ACCOUNT"`
	ReconcileSubAccount string `envconfig:"RECONCILE_SUBACCOUNT"`

	SignalWebhookURL string        `envconfig:"SIGNAL_WEBHOOK_URL"`
	SignalTimeout    time.Duration `envconfig:"SIGNAL_WEBHOOK_TIMEOUT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
