package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AlgoLabBaseURL  string        `envconfig:"ALGOLAB_BASE_URL" default:"https://www.algolab.com.tr"`
	AlgoLabHostname string        `envconfig:"ALGOLAB_HOSTNAME" default:"https://www.algolab.com.tr"`
	AlgoLabAPIKey   string        `envconfig:"ALGOLAB_API_KEY"`
	AlgoLabToken    string        `envconfig:"ALGOLAB_AUTHORIZATION"`
	AlgoLabTimeout  time.Duration `envconfig:"ALGOLAB_TIMEOUT" default:"15s"`

	StreamURL            string        `envconfig:"STREAM_URL" default:"wss://www.algolab.com.tr/api/ws"`
	StreamSymbols        []string      `envconfig:"STREAM_SYMBOLS" default:"ALL"`
	StreamReconnectDelay time.Duration `envconfig:"STREAM_RECONNECT_DELAY" default:"5s"`

	BinanceBaseURL string `envconfig:"BINANCE_BASE_URL"`
	BinanceQuote   string `envconfig:"BINANCE_QUOTE" default:"USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
