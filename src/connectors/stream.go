package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	FrameFill       = "FILL"
	FrameTick       = "TICK"
	FrameClosePrice = "CLOSE_PRICE"
)

// Frame is one message of the broker stream.
type Frame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// FillEvent is an execution report pushed by the broker.
type FillEvent struct {
	OrderID       string          `json:"orderId"`
	ExecutionID   string          `json:"executionId"`
	AccountID     string          `json:"accountId"`
	PositionRef   string          `json:"positionId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Commission    decimal.Decimal `json:"commission"`
	ExchangeFee   decimal.Decimal `json:"exchangeFee"`
	ClearingFee   decimal.Decimal `json:"clearingFee"`
	OtherFees     decimal.Decimal `json:"otherFees"`
	IsMaker       *bool           `json:"isMaker"`
	ExecutionTime time.Time       `json:"timestamp"`
}

type Tick struct {
	Symbol string          `json:"symbol"`
	Last   decimal.Decimal `json:"last"`
}

type ClosePrice struct {
	Symbol string          `json:"symbol"`
	Close  decimal.Decimal `json:"close"`
}

// StreamHandler consumes decoded frames. Errors are logged and the stream moves on.
type StreamHandler interface {
	OnFill(ctx context.Context, fill FillEvent) error
	OnTick(ctx context.Context, tick Tick) error
	OnClosePrice(ctx context.Context, price ClosePrice) error
}

// Stream keeps a websocket to the broker open and feeds its frames to a handler,
// reconnecting until the context ends.
type Stream struct {
	url            string
	apiKey         string
	hostname       string
	token          string
	symbols        []string
	reconnectDelay time.Duration
	dialer         websocket.Dialer
	handler        StreamHandler
}

func NewStream(cfg Config, handler StreamHandler) *Stream {
	delay := cfg.StreamReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Stream{
		url:            cfg.StreamURL,
		apiKey:         cfg.AlgoLabAPIKey,
		hostname:       cfg.AlgoLabHostname,
		token:          cfg.AlgoLabToken,
		symbols:        cfg.StreamSymbols,
		reconnectDelay: delay,
		dialer: websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
			Proxy:             http.ProxyFromEnvironment,
		},
		handler: handler,
	}
}

// Run blocks until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	log := logger.WithFields(map[string]interface{}{
		"component": "Stream",
		"url":       s.url,
	})

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			log.Info("Stream stopped")
			return nil
		}
		log.WithError(err).Warnf("Stream disconnected, reconnecting in %s", s.reconnectDelay)

		select {
		case <-ctx.Done():
			log.Info("Stream stopped")
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	header := http.Header{}
	header.Set("APIKEY", s.apiKey)
	header.Set("Authorization", s.token)
	header.Set("Checker", makeChecker(s.apiKey, s.hostname, "/ws", nil))

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	if len(s.symbols) > 0 {
		sub := map[string]interface{}{
			"token":   s.token,
			"Type":    "T",
			"Symbols": s.symbols,
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("ws subscribe failed: %w", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "Stream",
		"symbols":   strings.Join(s.symbols, ","),
	}).Info("Stream connected")

	// unblock ReadMessage when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}
		if err := s.dispatch(ctx, msg); err != nil {
			logger.WithField("component", "Stream").WithError(err).Error("Failed to handle frame")
		}
	}
}

func (s *Stream) dispatch(ctx context.Context, msg []byte) error {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || msg[0] != '{' {
		return nil
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return fmt.Errorf("bad frame %q: %w", string(msg), err)
	}

	switch frame.Type {
	case FrameFill:
		var fill FillEvent
		if err := json.Unmarshal(frame.Body, &fill); err != nil {
			return fmt.Errorf("bad fill body: %w", err)
		}
		return s.handler.OnFill(ctx, fill)

	case FrameTick:
		var tick Tick
		if err := json.Unmarshal(frame.Body, &tick); err != nil {
			return fmt.Errorf("bad tick body: %w", err)
		}
		return s.handler.OnTick(ctx, tick)

	case FrameClosePrice:
		var price ClosePrice
		if err := json.Unmarshal(frame.Body, &price); err != nil {
			return fmt.Errorf("bad close price body: %w", err)
		}
		return s.handler.OnClosePrice(ctx, price)

	case "":
		return errors.New("frame without type")

	default:
		logger.WithField("type", frame.Type).Debug("Ignoring stream frame")
		return nil
	}
}
