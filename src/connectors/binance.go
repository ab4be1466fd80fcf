package connectors

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
)

// BinancePriceSource marks crypto symbols such as BTCUSDT with the Binance spot ticker.
type BinancePriceSource struct {
	exchange goex.API
	quote    string
}

func NewBinancePriceSource(cfg Config, httpClient *http.Client) *BinancePriceSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	endpoint := cfg.BinanceBaseURL
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	quote := strings.ToUpper(cfg.BinanceQuote)
	if quote == "" {
		quote = "USDT"
	}

	apiConfig := &goex.APIConfig{
		HttpClient: httpClient,
		Endpoint:   endpoint,
	}
	return &BinancePriceSource{
		exchange: binance.NewWithConfig(apiConfig),
		quote:    quote,
	}
}

// pair splits BTCUSDT (or BTC/USDT, BTC_USDT) into base and quote.
func (b *BinancePriceSource) pair(symbol string) (goex.CurrencyPair, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("/", "", "_", "", "-", "").Replace(s)

	base := strings.TrimSuffix(s, b.quote)
	if base == "" || base == s {
		return goex.UNKNOWN_PAIR, fmt.Errorf("symbol %q is not quoted in %s", symbol, b.quote)
	}
	return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: b.quote}), nil
}

func (b *BinancePriceSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	pair, err := b.pair(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	ticker, err := b.exchange.GetTicker(pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance ticker %s: %w", pair.ToSymbol(""), err)
	}
	if ticker == nil || ticker.Last <= 0 {
		return decimal.Zero, fmt.Errorf("binance ticker %s has no last price", pair.ToSymbol(""))
	}
	return decimal.NewFromFloat(ticker.Last), nil
}
