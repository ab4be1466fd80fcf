package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionledger/src/model"
)

// ErrStaleVersion means another writer saved the position since it was loaded.
var ErrStaleVersion = errors.New("position version is stale")

var activeStatuses = []string{model.PositionStatusOpen, model.PositionStatusClosing}

// PositionRepository handles persistence of the position aggregates.
type PositionRepository struct {
	db *gorm.DB
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position. Version starts at 1.
func (r *PositionRepository) Create(ctx context.Context, p *model.Position) error {
	p.Version = 1
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "Create",
			"account": p.BrokerAccountID,
			"symbol":  p.Symbol,
		}).WithError(err).Error("Failed to create position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": p.ID,
		"account":     p.BrokerAccountID,
		"symbol":      p.Symbol,
		"side":        p.PositionSide,
		"qty":         p.Quantity.String(),
	}).Info("Position opened")

	return nil
}

// Update writes every column of p if nobody saved it since it was loaded.
// On success p.Version is incremented; on ErrStaleVersion p is left untouched.
func (r *PositionRepository) Update(ctx context.Context, p *model.Position) error {
	loaded := p.Version
	p.Version = loaded + 1

	res := r.db.WithContext(ctx).
		Model(p).
		Where("version = ?", loaded).
		Select("*").
		Omit("id", "created_at").
		Updates(p)
	if res.Error != nil {
		p.Version = loaded
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Update",
			"position_id": p.ID,
		}).WithError(res.Error).Error("Failed to update position")
		return res.Error
	}
	if res.RowsAffected == 0 {
		p.Version = loaded
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Update",
			"position_id": p.ID,
			"version":     loaded,
		}).Warn("Position changed concurrently")
		return ErrStaleVersion
	}

	return nil
}

// FindByID returns nil, nil when the position does not exist.
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var p model.Position
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")
		return nil, err
	}

	return &p, nil
}

// FindActive returns the OPEN or CLOSING position of an account in a symbol, nil, nil if flat.
func (r *PositionRepository) FindActive(ctx context.Context, accountID, symbol string) (*model.Position, error) {
	var p model.Position
	err := r.db.WithContext(ctx).
		Where("broker_account_id = ? AND symbol = ? AND position_status IN ?", accountID, symbol, activeStatuses).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindActive",
			"account": accountID,
			"symbol":  symbol,
		}).WithError(err).Error("Failed to fetch active position")
		return nil, err
	}

	return &p, nil
}

// ListActiveByAccount returns the OPEN and CLOSING positions of an account.
func (r *PositionRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("broker_account_id = ? AND position_status IN ?", accountID, activeStatuses).
		Order("symbol ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "ListActiveByAccount",
			"account": accountID,
		}).WithError(err).Error("Failed to list active positions")
		return nil, err
	}

	return positions, nil
}

// ListActiveBySymbol returns every account's active position in a symbol.
func (r *PositionRepository) ListActiveBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND position_status IN ?", symbol, activeStatuses).
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "ListActiveBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to list active positions by symbol")
		return nil, err
	}

	return positions, nil
}

// ListByStatus is used by the order submission side to poll CLOSING positions.
func (r *PositionRepository) ListByStatus(ctx context.Context, status string) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("position_status = ?", status).
		Order("updated_at ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "ListByStatus",
			"status": status,
		}).WithError(err).Error("Failed to list positions by status")
		return nil, err
	}

	return positions, nil
}

// ActiveSymbols lists the distinct symbols that currently need price updates.
func (r *PositionRepository) ActiveSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Distinct("symbol").
		Where("position_status IN ?", activeStatuses).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "ActiveSymbols",
		}).WithError(err).Error("Failed to list active symbols")
		return nil, err
	}

	return symbols, nil
}
