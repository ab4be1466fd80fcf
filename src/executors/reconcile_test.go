package executors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"positionledger/src/connectors"
	"positionledger/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	positions []connectors.BrokerPosition
	err       error
}

func (f fakeBroker) Positions(context.Context, string) ([]connectors.BrokerPosition, error) {
	return f.positions, f.err
}

type fakeLedgerView []model.Position

func (f fakeLedgerView) OpenPositions(context.Context, string) ([]model.Position, error) {
	return f, nil
}

type recorder struct {
	excs []*model.Exception
}

func (r *recorder) Create(_ context.Context, exc *model.Exception) error {
	r.excs = append(r.excs, exc)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReconcile(t *testing.T) {
	broker := fakeBroker{positions: []connectors.BrokerPosition{
		{Symbol: "THYAO", Quantity: dec("1000")},
		{Symbol: "GARAN", Quantity: dec("40")},
		{Symbol: "AKBNK", Quantity: dec("5")},
		{Symbol: "SISE", Quantity: dec("0")},
		{Symbol: "PGSUS", Quantity: dec("-20")},
	}}
	ledgerView := fakeLedgerView{
		{ID: 1, Symbol: "THYAO", PositionSide: model.PositionSideLong, Quantity: dec("1000")},
		{ID: 2, Symbol: "GARAN", PositionSide: model.PositionSideLong, Quantity: dec("30")},
		{ID: 3, Symbol: "EREGL", PositionSide: model.PositionSideLong, Quantity: dec("7")},
		{ID: 4, Symbol: "PGSUS", PositionSide: model.PositionSideShort, Quantity: dec("20")},
	}
	rec := &recorder{}

	report, err := Reconcile(context.Background(), broker, ledgerView, rec, "ACC-1", "")
	require.NoError(t, err)
	require.Equal(t, 6, report.Checked)
	require.Len(t, report.Mismatches, 3)

	require.Equal(t, "AKBNK", report.Mismatches[0].Symbol)
	require.Equal(t, MismatchMissingInLedger, report.Mismatches[0].Kind)
	require.Equal(t, "EREGL", report.Mismatches[1].Symbol)
	require.Equal(t, MismatchMissingAtBroker, report.Mismatches[1].Kind)
	require.Equal(t, uint(3), report.Mismatches[1].PositionID)
	require.Equal(t, "GARAN", report.Mismatches[2].Symbol)
	require.Equal(t, MismatchQuantity, report.Mismatches[2].Kind)

	require.Len(t, rec.excs, 3)
	require.Equal(t, "Reconcile", rec.excs[2].Method)
	var m Mismatch
	require.NoError(t, json.Unmarshal([]byte(rec.excs[2].Context), &m))
	require.True(t, m.LedgerQuantity.Equal(dec("30")))
}

func TestReconcile_Errors(t *testing.T) {
	_, err := Reconcile(context.Background(), fakeBroker{}, fakeLedgerView{}, nil, "", "")
	require.Error(t, err)

	_, err = Reconcile(context.Background(), fakeBroker{err: errors.New("session expired")}, fakeLedgerView{}, nil, "ACC-1", "")
	require.ErrorContains(t, err, "session expired")
}

func TestWebhookSink(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var s model.TriggerSignal
		if err := json.Unmarshal(body, &s); err != nil || s.Reason != model.TriggerTakeProfit {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	sink.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(2 * time.Millisecond)

	err := sink.Publish(context.Background(), model.TriggerSignal{PositionID: 7, Symbol: "THYAO", Reason: model.TriggerTakeProfit})
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	err = sink.Publish(context.Background(), model.TriggerSignal{Reason: model.TriggerStopLoss})
	require.Error(t, err)

	require.IsType(t, LogSink{}, NewSignalSink(Config{}))
	require.NoError(t, LogSink{}.Publish(context.Background(), model.TriggerSignal{}))
	require.IsType(t, &WebhookSink{}, NewSignalSink(Config{SignalWebhookURL: server.URL}))
}
