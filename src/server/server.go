package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"positionledger/src/handler"
	"positionledger/src/security"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"
)

// NewRouter builds the admin API. Everything but the healthcheck needs basic auth.
func NewRouter(l handler.Ledger, sec security.Config) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(security.BasicAuth(sec))

		r.Get("/accounts/{accountID}/positions", handler.OpenPositionsHandler(l))
		r.Get("/accounts/{accountID}/summary", handler.PortfolioSummaryHandler(l))

		r.Route("/positions", func(r chi.Router) {
			r.Get("/closing", handler.ClosingPositionsHandler(l))
			r.Get("/{id}", handler.GetPositionHandler(l))
			r.Get("/{id}/signals", handler.PositionSignalsHandler(l))
			r.Post("/{id}/close", handler.ClosePositionHandler(l))
			r.Post("/{id}/liquidate", handler.LiquidateHandler(l))
			r.Put("/{id}/risk", handler.SetRiskLimitsHandler(l))
			r.Post("/{id}/release", handler.ReleaseClosingHandler(l))
			r.Post("/{id}/block", handler.BlockQuantityHandler(l, false))
			r.Post("/{id}/unblock", handler.BlockQuantityHandler(l, true))
		})

		r.Post("/fills", handler.ApplyFillHandler(l))
		r.Post("/ticks", handler.TickHandler(l, false))
		r.Post("/close-prices", handler.TickHandler(l, true))
		r.Get("/orders/{orderID}/executions", handler.OrderExecutionsHandler(l))
		r.Get("/exceptions", handler.ExceptionsHandler(l))
	})

	return r
}

// StartServer serves h on port until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, port string, h http.Handler, shutdownTimeout time.Duration) error {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
