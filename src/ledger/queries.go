package ledger

import (
	"context"
	"fmt"

	"positionledger/src/model"
	"positionledger/src/pnl"
	"positionledger/src/repository"

	"github.com/shopspring/decimal"
)

func (s *Service) positionsView() *repository.PositionRepository {
	return (&repository.PositionRepository{}).WithDB(s.readDB)
}

// OpenPositions lists the OPEN and CLOSING positions of an account.
func (s *Service) OpenPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	if accountID == "" {
		return nil, validationf("broker account id is required")
	}
	return s.positionsView().ListActiveByAccount(ctx, accountID)
}

func (s *Service) Position(ctx context.Context, id uint) (*model.Position, error) {
	p, err := s.positionsView().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: position %d", ErrNotFound, id)
	}
	return p, nil
}

// ClosingPositions is what the order submission side polls for positions awaiting a close order.
func (s *Service) ClosingPositions(ctx context.Context) ([]model.Position, error) {
	return s.positionsView().ListByStatus(ctx, model.PositionStatusClosing)
}

// Signals returns the trigger signals raised for a position.
func (s *Service) Signals(ctx context.Context, positionID uint) ([]model.TriggerSignal, error) {
	return (&repository.SignalRepository{}).WithDB(s.readDB).ListByPosition(ctx, positionID)
}

// Executions lists the fills of an order by sequence.
func (s *Service) Executions(ctx context.Context, orderID string) ([]model.ExecutionRecord, error) {
	if orderID == "" {
		return nil, validationf("order id is required")
	}
	return (&repository.ExecutionRepository{}).WithDB(s.readDB).ListByOrder(ctx, orderID)
}

// Exceptions lists the latest stored failures of a module, newest first.
func (s *Service) Exceptions(ctx context.Context, module string, limit int) ([]model.Exception, error) {
	if module == "" {
		module = "ledger"
	}
	if limit < 0 || limit > 500 {
		return nil, validationf("limit must be between 0 and 500, got %d", limit)
	}
	return (&repository.ExceptionRepository{}).WithDB(s.readDB).ListRecent(ctx, module, limit)
}

// PortfolioSummary rolls up the active positions of an account. Realized P&L only counts
// what those positions realized through partial closes.
func (s *Service) PortfolioSummary(ctx context.Context, accountID string) (*model.PortfolioSummary, error) {
	positions, err := s.OpenPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	sum := &model.PortfolioSummary{
		BrokerAccountID: accountID,
		OpenPositions:   len(positions),
		MarketValue:     decimal.Zero,
		TotalCost:       decimal.Zero,
		UnrealizedPnl:   decimal.Zero,
		RealizedPnl:     decimal.Zero,
		TotalPnl:        decimal.Zero,
		TotalPnlPercent: decimal.Zero,
		DailyPnl:        decimal.Zero,
		GeneratedAt:     s.now(),
	}

	basis := decimal.Zero
	for i := range positions {
		p := &positions[i]
		sum.MarketValue = sum.MarketValue.Add(p.MarketValue())
		sum.TotalCost = sum.TotalCost.Add(p.TotalCost)
		sum.UnrealizedPnl = sum.UnrealizedPnl.Add(p.UnrealizedPnl)
		sum.RealizedPnl = sum.RealizedPnl.Add(p.RealizedPnl)
		sum.TotalPnl = sum.TotalPnl.Add(p.TotalPnl())
		sum.DailyPnl = sum.DailyPnl.Add(p.DailyPnl)
		basis = basis.Add(p.TotalCost.Abs())
	}

	if !basis.IsZero() {
		sum.TotalPnlPercent = sum.TotalPnl.Div(basis).Mul(decimal.NewFromInt(100)).Round(pnl.PercentPlaces)
	}
	return sum, nil
}

// ActiveSymbols lists the symbols with at least one OPEN or CLOSING position.
func (s *Service) ActiveSymbols(ctx context.Context) ([]string, error) {
	return s.positionsView().ActiveSymbols(ctx)
}
