package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"positionledger/src/database/dbtest"
	"positionledger/src/ledger"
	"positionledger/src/model"
	"positionledger/src/risk"
	"positionledger/src/security"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type apiClient struct {
	t   *testing.T
	url string
}

func (c apiClient) do(method, path, body string, out interface{}) int {
	c.t.Helper()
	req, err := http.NewRequest(method, c.url+path, strings.NewReader(body))
	require.NoError(c.t, err)
	req.SetBasicAuth("ops", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func newTestServer(t *testing.T) apiClient {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	svc := ledger.NewService(dbtest.New(t), ledger.Config{MaxRetries: 1, RetryBackoff: time.Millisecond}, risk.Config{}).
		WithClock(func() time.Time { return now })

	srv := httptest.NewServer(NewRouter(svc, security.Config{AdminUser: "ops", AdminPasswordHash: string(hash)}))
	t.Cleanup(srv.Close)
	return apiClient{t: t, url: srv.URL}
}

func TestRouter_Auth(t *testing.T) {
	c := newTestServer(t)

	resp, err := http.Get(c.url + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(c.url + "/positions/closing")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Walks a position through fill, stop loss and close over HTTP.
func TestRouter_PositionLifecycle(t *testing.T) {
	c := newTestServer(t)
	fill := `{"order_id":"ORD-1","execution_id":"EX-1","broker_account_id":"ACC-1","symbol":"THYAO","side":"BUY","quantity":"1000","price":"15.50"}`

	var res ledger.FillResult
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/fills", fill, &res))
	require.False(t, res.Duplicate)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/fills", fill, &res))
	require.True(t, res.Duplicate)

	require.Equal(t, http.StatusBadRequest,
		c.do(http.MethodPost, "/fills", `{"order_id":"ORD-2","broker_account_id":"ACC-1","symbol":"THYAO","side":"BUY","quantity":"0","price":"15"}`, nil))
	require.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/fills", `{"orderId":"x"}`, nil))

	var open []model.Position
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/accounts/ACC-1/positions", "", &open))
	require.Len(t, open, 1)
	id := open[0].ID
	base := "/positions/" + decimal.NewFromInt(int64(id)).String()

	var p model.Position
	require.Equal(t, http.StatusOK, c.do(http.MethodPut, base+"/risk", `{"stop_loss_price":"15","take_profit_price":null}`, &p))
	require.True(t, p.StopLossPrice.Valid)
	require.False(t, p.TakeProfitPrice.Valid)

	var ticked struct {
		Signals []model.TriggerSignal `json:"signals"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/ticks", `{"symbol":"thyao","price":"14.90"}`, &ticked))
	require.Len(t, ticked.Signals, 1)
	require.Equal(t, model.TriggerStopLoss, ticked.Signals[0].Reason)

	var closing []model.Position
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/positions/closing", "", &closing))
	require.Len(t, closing, 1)

	var signals []model.TriggerSignal
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, base+"/signals", "", &signals))
	require.Len(t, signals, 1)

	require.Equal(t, http.StatusUnprocessableEntity, c.do(http.MethodPost, base+"/close", `{"price":"14.90","quantity":"2000"}`, nil))
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, base+"/close", `{"price":"14.90","quantity":"1000","exit_signal":"STOP_LOSS"}`, &p))
	require.Equal(t, model.PositionStatusClosed, p.PositionStatus)
	require.True(t, p.RealizedPnl.Equal(decimal.NewFromInt(-600)))

	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, base+"/release", "", nil))
	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, base+"/liquidate", `{"price":"14"}`, nil))
	require.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/positions/999", "", nil))
	require.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/positions/abc", "", nil))

	var execs []model.ExecutionRecord
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/orders/ORD-1/executions", "", &execs))
	require.Len(t, execs, 1)
	var rawExecs []map[string]interface{}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/orders/ORD-1/executions", "", &rawExecs))
	require.Equal(t, "15.5", rawExecs[0]["effective_price"])
	require.Equal(t, "15500", rawExecs[0]["execution_value"])

	var excs []model.Exception
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/exceptions?module=ledger&limit=5", "", &excs))
	require.Empty(t, excs)
	require.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/exceptions?limit=ten", "", nil))
	require.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/exceptions?limit=1000", "", nil))

	var summary model.PortfolioSummary
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/accounts/ACC-1/summary", "", &summary))
	require.Equal(t, 0, summary.OpenPositions)
}

func TestRouter_BlockAndPreviousClose(t *testing.T) {
	c := newTestServer(t)
	fill := `{"order_id":"ORD-1","execution_id":"EX-1","broker_account_id":"ACC-1","symbol":"GARAN","side":"BUY","quantity":"100","price":"40"}`
	var res ledger.FillResult
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/fills", fill, &res))
	base := "/positions/" + decimal.NewFromInt(int64(res.Position.ID)).String()

	var p model.Position
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, base+"/block", `{"quantity":"60"}`, &p))
	require.True(t, p.AvailableQuantity.Equal(decimal.NewFromInt(40)))
	require.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, base+"/block", `{"quantity":"50"}`, nil))
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, base+"/unblock", `{"quantity":"60"}`, &p))
	require.True(t, p.AvailableQuantity.Equal(decimal.NewFromInt(100)))

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/close-prices", `{"symbol":"GARAN","price":"38"}`, nil))
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, base, "", &p))
	require.True(t, p.DailyPnl.Equal(decimal.NewFromInt(200)))
	require.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/ticks", `{"symbol":"GARAN","price":"-1"}`, nil))
}
