package executors

import (
	"context"
	"fmt"
	"time"

	"positionledger/src/ledger"
	"positionledger/src/model"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// LogSink only logs trigger signals. The order submission side polls position_signals.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, s model.TriggerSignal) error {
	logger.WithFields(map[string]interface{}{
		"sink":        "log",
		"position_id": s.PositionID,
		"account":     s.BrokerAccountID,
		"symbol":      s.Symbol,
		"side":        s.PositionSide,
		"reason":      s.Reason,
		"price":       s.TriggerPrice.String(),
		"threshold":   s.Threshold.String(),
		"qty":         s.Quantity.String(),
	}).Warn("Close signal")
	return nil
}

// WebhookSink posts every trigger signal as JSON to an order submission endpoint.
type WebhookSink struct {
	url  string
	http *resty.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url: url,
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || (r != nil && r.StatusCode() >= 500)
			}),
	}
}

func (w *WebhookSink) Publish(ctx context.Context, s model.TriggerSignal) error {
	resp, err := w.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(s).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("signal webhook HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// NewSignalSink returns the webhook sink when a URL is configured, the log sink otherwise.
func NewSignalSink(cfg Config) ledger.SignalSink {
	if cfg.SignalWebhookURL == "" {
		return LogSink{}
	}
	return NewWebhookSink(cfg.SignalWebhookURL, cfg.SignalTimeout)
}
