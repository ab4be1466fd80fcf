package executors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"positionledger/src/connectors"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePricer struct {
	mu      sync.Mutex
	symbols []string
	listErr error
	updates map[string]decimal.Decimal
	calls   int
}

func (f *fakePricer) ActiveSymbols(context.Context) ([]string, error) {
	return f.symbols, f.listErr
}

func (f *fakePricer) UpdatePrice(_ context.Context, symbol string, price decimal.Decimal) ([]model.TriggerSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]decimal.Decimal{}
	}
	f.updates[symbol] = price
	f.calls++
	if symbol == "THYAO" && price.LessThan(decimal.NewFromInt(15)) {
		return []model.TriggerSignal{{Symbol: symbol, Reason: model.TriggerStopLoss}}, nil
	}
	return nil, nil
}

func (f *fakePricer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource map[string]string

func (f fakeSource) LastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := f[symbol]
	if !ok {
		return decimal.Zero, errors.New("no quote for " + symbol)
	}
	return decimal.RequireFromString(p), nil
}

// Ensures every active symbol is marked and a failing quote does not stop the pass.
func TestRefreshPrices(t *testing.T) {
	pricer := &fakePricer{symbols: []string{"GARAN", "THYAO", "XXXXX"}}
	source := fakeSource{"GARAN": "41.02", "THYAO": "14.99"}

	signals := RefreshPrices(context.Background(), pricer, source)

	require.Len(t, signals, 1)
	require.Equal(t, "THYAO", signals[0].Symbol)
	require.Len(t, pricer.updates, 2)
	require.True(t, pricer.updates["GARAN"].Equal(decimal.RequireFromString("41.02")))
	_, marked := pricer.updates["XXXXX"]
	require.False(t, marked)
}

func TestRefreshPrices_ListError(t *testing.T) {
	pricer := &fakePricer{listErr: errors.New("db down")}
	require.Empty(t, RefreshPrices(context.Background(), pricer, fakeSource{}))
	require.Zero(t, pricer.callCount())
}

// Ensures the loop ticks until its context is cancelled.
func TestStartLoop(t *testing.T) {
	pricer := &fakePricer{symbols: []string{"GARAN"}}
	source := fakeSource{"GARAN": "41.02"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartLoop(ctx, pricer, source, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return pricer.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	require.Error(t, StartLoop(context.Background(), pricer, source, 0))
}

func TestNewPriceSource(t *testing.T) {
	src, err := NewPriceSource(PriceSourceAlgoLab, connectors.Config{AlgoLabBaseURL: "http://127.0.0.1"})
	require.NoError(t, err)
	require.IsType(t, &connectors.AlgoLabClient{}, src)

	_, err = NewPriceSource("bloomberg", connectors.Config{})
	require.Error(t, err)
}
