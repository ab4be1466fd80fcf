package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	// MarginCallPercent closes a position once its unrealized loss reaches this percent of cost.
	// Zero disables the check.
	MarginCallPercent decimal.Decimal `envconfig:"RISK_MARGIN_CALL_PERCENT" default:"0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
