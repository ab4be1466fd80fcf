package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupMockBinanceServer(t *testing.T) *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"64123.50","bidPrice":"64123.40","askPrice":"64123.60",
			"highPrice":"65000.00","lowPrice":"63000.00","volume":"1234.5","closeTime":1741000000000}`))
	})
	handler.HandleFunc("/api/v3/time", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1741000000000}`))
	})
	handler.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	return httptest.NewServer(handler)
}

func TestBinancePriceSource_LastPrice(t *testing.T) {
	server := setupMockBinanceServer(t)
	defer server.Close()

	source := NewBinancePriceSource(Config{BinanceBaseURL: server.URL, BinanceQuote: "USDT"}, server.Client())

	for _, symbol := range []string{"BTCUSDT", "btc/usdt", "BTC_USDT"} {
		price, err := source.LastPrice(context.Background(), symbol)
		require.NoError(t, err, symbol)
		require.True(t, price.Equal(decimal.RequireFromString("64123.5")), "%s: got %s", symbol, price)
	}
}

func TestBinancePriceSource_RejectsForeignQuote(t *testing.T) {
	server := setupMockBinanceServer(t)
	defer server.Close()

	source := NewBinancePriceSource(Config{BinanceBaseURL: server.URL}, nil)

	_, err := source.LastPrice(context.Background(), "THYAO")
	require.Error(t, err)

	_, err = source.LastPrice(context.Background(), "USDT")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.LastPrice(ctx, "BTCUSDT")
	require.ErrorIs(t, err, context.Canceled)
}
