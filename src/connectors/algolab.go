// REST client for the AlgoLab brokerage API.
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	pathEquityInfo      = "/api/GetEquityInfo"
	pathInstantPosition = "/api/InstantPosition"
)

// cashPositionType marks the cash line InstantPosition returns next to the equities.
const cashPositionType = "CH"

// PriceSource returns the last traded price of a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// APIResponse is the envelope every AlgoLab endpoint answers with.
type APIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content"`
}

type equityInfo struct {
	Name string `json:"name"`
	Last string `json:"lst"`
}

type instantPosition struct {
	Code       string `json:"code"`
	Type       string `json:"type"`
	TotalStock string `json:"totalstock"`
	Cost       string `json:"maliyet"`
	UnitPrice  string `json:"unitprice"`
	Profit     string `json:"profit"`
}

// BrokerPosition is a holding as the broker reports it.
type BrokerPosition struct {
	Symbol      string
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	LastPrice   decimal.Decimal
	Profit      decimal.Decimal
}

// AlgoLabClient is an authenticated AlgoLab client. The session token comes from an
// already logged in session; logging in is not handled here.
type AlgoLabClient struct {
	apiKey   string
	hostname string
	token    string
	http     *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewAlgoLabClient(cfg Config) *AlgoLabClient {
	retryCount := defaultRetryAttempts - 1

	baseURL := cfg.AlgoLabBaseURL
	if baseURL == "" {
		baseURL = "https://www.algolab.com.tr"
		logger.Warnf("No AlgoLab base URL provided, using default: %s", baseURL)
	}

	timeout := cfg.AlgoLabTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &AlgoLabClient{
		apiKey:   cfg.AlgoLabAPIKey,
		hostname: cfg.AlgoLabHostname,
		token:    cfg.AlgoLabToken,
		http:     httpClient,
	}
}

// makeChecker is the request integrity hash: sha256(apiKey + hostname + endpoint + body).
func makeChecker(apiKey, hostname, endpoint string, body []byte) string {
	sum := sha256.Sum256([]byte(apiKey + hostname + endpoint + string(body)))
	return hex.EncodeToString(sum[:])
}

func (c *AlgoLabClient) post(ctx context.Context, endpoint string, payload interface{}) (*APIResponse, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = b
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("APIKEY", c.apiKey).
		SetHeader("Authorization", c.token).
		SetHeader("Checker", makeChecker(c.apiKey, c.hostname, endpoint, body)).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, err
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}
	if !apiResp.Success {
		return nil, fmt.Errorf("algolab %s: %s", endpoint, apiResp.Message)
	}

	return &apiResp, nil
}

// LastPrice reads the last traded price from GetEquityInfo.
func (c *AlgoLabClient) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := c.post(ctx, pathEquityInfo, map[string]string{"symbol": symbol})
	if err != nil {
		return decimal.Zero, err
	}

	var info equityInfo
	if err := json.Unmarshal(resp.Content, &info); err != nil {
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(strings.TrimSpace(info.Last))
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad last price %q for %s: %w", info.Last, symbol, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.New("no last price for " + symbol)
	}
	return price, nil
}

// Positions lists the equity holdings of a sub account ("" for the main account).
func (c *AlgoLabClient) Positions(ctx context.Context, subAccount string) ([]BrokerPosition, error) {
	resp, err := c.post(ctx, pathInstantPosition, map[string]string{"Subaccount": subAccount})
	if err != nil {
		return nil, err
	}

	var rows []instantPosition
	if err := json.Unmarshal(resp.Content, &rows); err != nil {
		return nil, err
	}

	out := make([]BrokerPosition, 0, len(rows))
	for _, row := range rows {
		if row.Type == cashPositionType || row.Code == "" {
			continue
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(row.TotalStock))
		if err != nil {
			return nil, fmt.Errorf("bad quantity %q for %s: %w", row.TotalStock, row.Code, err)
		}
		out = append(out, BrokerPosition{
			Symbol:      strings.ToUpper(row.Code),
			Quantity:    qty,
			AverageCost: lenientDecimal(row.Cost),
			LastPrice:   lenientDecimal(row.UnitPrice),
			Profit:      lenientDecimal(row.Profit),
		})
	}
	return out, nil
}

// lenientDecimal reads optional numeric fields the broker sometimes leaves blank.
func lenientDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}
