package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"positionledger/src/database"
	"positionledger/src/model"
	"positionledger/src/pnl"
	"positionledger/src/repository"
	"positionledger/src/risk"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SignalSink receives trigger signals after the transaction that raised them committed.
// Signals are already stored in position_signals, so a failed delivery loses nothing.
type SignalSink interface {
	Publish(ctx context.Context, signal model.TriggerSignal) error
}

// Service owns every write to executions and positions.
//
// Each mutating call runs in one transaction while holding the in-process key locks for
// the position (account|symbol) and, for fills, the order. Positions are always re-read
// inside the transaction and saved with a version check.
type Service struct {
	db     *gorm.DB
	readDB *gorm.DB
	cfg    Config
	risk   risk.Config
	locks  *KeyedMutex
	sink   SignalSink
	now    func() time.Time
}

func NewService(db *gorm.DB, cfg Config, riskCfg risk.Config) *Service {
	return &Service{
		db:     db,
		readDB: db,
		cfg:    cfg,
		risk:   riskCfg,
		locks:  NewKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewDefaultService wires the service to the process databases and environment config.
// database.InitMainDB and database.InitReadOnlyDB must have run.
func NewDefaultService() *Service {
	return NewService(database.MainDB, GetConfig(), risk.GetConfig()).
		WithReadDB(database.ReadOnlyDB)
}

// WithReadDB routes queries to a replica.
func (s *Service) WithReadDB(db *gorm.DB) *Service {
	if db != nil {
		s.readDB = db
	}
	return s
}

func (s *Service) WithSink(sink SignalSink) *Service {
	s.sink = sink
	return s
}

// WithClock overrides time.Now, mostly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AppendExecution stores a fill without applying it to any position.
func (s *Service) AppendExecution(ctx context.Context, f Fill) (*model.ExecutionRecord, error) {
	f.normalize()
	if err := f.validate(); err != nil {
		return nil, err
	}

	var out *model.ExecutionRecord
	err := s.withRetry(ctx, "AppendExecution", f.fields(), func() error {
		unlock := s.locks.Lock(orderKey(f.OrderID))
		defer unlock()

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			execs := (&repository.ExecutionRepository{}).WithDB(tx)

			if f.ExecutionID != "" {
				existing, err := execs.FindByExecutionID(ctx, f.ExecutionID)
				if err != nil {
					return err
				}
				if existing != nil {
					out = existing
					return nil
				}
			}

			seq, err := execs.NextFillSequence(ctx, f.OrderID)
			if err != nil {
				return err
			}
			rec := f.record(s.now())
			rec.FillSequence = seq
			if err := execs.Create(ctx, rec); err != nil {
				return err
			}
			out = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyFill appends the execution and folds it into the account's position in the symbol:
// it opens a position when flat, adds on a same direction fill and reduces or closes on an
// opposite one. The result carries the trigger signal if the refreshed position hit a limit.
func (s *Service) ApplyFill(ctx context.Context, f Fill) (*FillResult, error) {
	f.normalize()
	if err := f.validate(); err != nil {
		logger.WithFields(f.fields()).WithError(err).Warn("Rejected fill")
		return nil, err
	}

	var res *FillResult
	err := s.withRetry(ctx, "ApplyFill", f.fields(), func() error {
		unlockPosition := s.locks.Lock(positionKey(f.BrokerAccountID, f.Symbol))
		defer unlockPosition()
		unlockOrder := s.locks.Lock(orderKey(f.OrderID))
		defer unlockOrder()

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r, err := s.applyFill(ctx, tx, f)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		logger.WithFields(f.fields()).WithError(ErrDuplicateExecution).Warn("Ignoring redelivered execution")
		return res, nil
	}

	logger.WithFields(f.fields()).WithFields(map[string]interface{}{
		"position_id":   res.Position.ID,
		"status":        res.Position.PositionStatus,
		"position_qty":  res.Position.Quantity.String(),
		"fill_sequence": res.Execution.FillSequence,
	}).Info("Fill applied")

	if res.Signal != nil {
		s.publish(ctx, *res.Signal)
	}
	return res, nil
}

func (s *Service) applyFill(ctx context.Context, tx *gorm.DB, f Fill) (*FillResult, error) {
	execs := (&repository.ExecutionRepository{}).WithDB(tx)
	positions := (&repository.PositionRepository{}).WithDB(tx)

	now := s.now()
	rec := f.record(now)

	// A fill stored by AppendExecution has no position yet; it is folded in once and linked.
	var pending *model.ExecutionRecord
	if f.ExecutionID != "" {
		existing, err := execs.FindByExecutionID(ctx, f.ExecutionID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.PositionID != 0 {
			stored, err := positions.FindByID(ctx, existing.PositionID)
			if err != nil {
				return nil, err
			}
			return &FillResult{Execution: existing, Position: stored, Duplicate: true}, nil
		}
		if existing != nil {
			if !f.matches(existing) {
				return nil, validationf("execution %s was recorded with different fill details", f.ExecutionID)
			}
			pending = existing
			rec = existing
		}
	}
	fees := rec.TotalFees()

	current, err := positions.FindActive(ctx, f.BrokerAccountID, f.Symbol)
	if err != nil {
		return nil, err
	}

	var (
		next   model.Position
		signal *model.TriggerSignal
	)
	switch {
	case current == nil:
		next = openPosition(f, fees, now)
		next, signal = risk.Evaluate(next, s.risk, now)
		if err := positions.Create(ctx, &next); err != nil {
			return nil, err
		}

	case current.PositionSide == positionSide(f.Side):
		next = addToPosition(*current, f.Quantity, f.Price, fees)
		next = pnl.Recompute(next, f.Price, now)
		next, signal = risk.Evaluate(next, s.risk, now)
		if err := positions.Update(ctx, &next); err != nil {
			return nil, err
		}

	default:
		next, err = reducePosition(*current, f.Quantity, f.Price, fees, now)
		if err != nil {
			return nil, err
		}
		if next.IsActive() {
			next = pnl.Recompute(next, markPrice(next, f.Price), now)
			next, signal = risk.Evaluate(next, s.risk, now)
		}
		if err := positions.Update(ctx, &next); err != nil {
			return nil, err
		}
	}

	if pending != nil {
		if err := execs.AttachPosition(ctx, pending.ID, next.ID); err != nil {
			return nil, err
		}
		pending.PositionID = next.ID
	} else {
		seq, err := execs.NextFillSequence(ctx, f.OrderID)
		if err != nil {
			return nil, err
		}
		rec.FillSequence = seq
		rec.PositionID = next.ID
		if err := execs.Create(ctx, rec); err != nil {
			return nil, err
		}
	}

	if signal != nil {
		signal.PositionID = next.ID
		if err := (&repository.SignalRepository{}).WithDB(tx).Create(ctx, signal); err != nil {
			return nil, err
		}
	}

	return &FillResult{Execution: rec, Position: &next, Signal: signal}, nil
}

// withRetry runs fn again while it fails with a concurrency conflict. Once the attempts are
// used up the failure is stored as an Exception and returned.
func (s *Service) withRetry(ctx context.Context, op string, fields map[string]interface{}, fn func() error) error {
	attempts := s.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = translate(fn())
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}

		logger.WithFields(fields).WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Warn("Concurrent update detected")

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}

	s.recordException(ctx, op, err, fields)
	return err
}

func (s *Service) recordException(ctx context.Context, method string, err error, contextData map[string]interface{}) {
	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   s.cfg.ServiceName,
		Module:    "ledger",
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     "error",
		Context:   ctxJSON,
		CreatedAt: s.now(),
	}

	if e := (&repository.ExceptionRepository{}).WithDB(s.db).Create(context.WithoutCancel(ctx), exc); e != nil {
		logger.WithError(e).Error("Failed to persist exception")
	}
}

func (s *Service) publish(ctx context.Context, signal model.TriggerSignal) {
	fields := map[string]interface{}{
		"component":   "ledger",
		"position_id": signal.PositionID,
		"symbol":      signal.Symbol,
		"reason":      signal.Reason,
		"price":       signal.TriggerPrice.String(),
	}
	logger.WithFields(fields).Warn("Position limit triggered")

	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, signal); err != nil {
		logger.WithFields(fields).WithError(err).Error("Failed to deliver trigger signal")
	}
}
