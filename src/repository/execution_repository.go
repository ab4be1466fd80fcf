package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionledger/src/model"
)

// ErrExecutionAttached means the fill was already linked to a position by another writer.
var ErrExecutionAttached = errors.New("execution already attached to a position")

// ExecutionRepository is the append only store of broker fills.
// Rows are never rewritten; the only update links a fill recorded without a position
// to the position it was later applied to.
type ExecutionRepository struct {
	db *gorm.DB
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ExecutionRepository) WithDB(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// NextFillSequence returns max(fill_sequence)+1 for the order, 1 for its first fill.
// Callers must run it in the same transaction as the insert.
func (r *ExecutionRepository) NextFillSequence(ctx context.Context, orderID string) (int, error) {
	var current int
	err := r.db.WithContext(ctx).
		Model(&model.ExecutionRecord{}).
		Select("COALESCE(MAX(fill_sequence), 0)").
		Where("order_id = ?", orderID).
		Scan(&current).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "ExecutionRepository",
			"op":       "NextFillSequence",
			"order_id": orderID,
		}).WithError(err).Error("Failed to read current fill sequence")
		return 0, err
	}

	return current + 1, nil
}

// Create appends a fill.
func (r *ExecutionRepository) Create(ctx context.Context, rec *model.ExecutionRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":          "ExecutionRepository",
			"op":            "Create",
			"order_id":      rec.OrderID,
			"fill_sequence": rec.FillSequence,
		}).WithError(err).Error("Failed to append execution record")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":          "ExecutionRepository",
		"op":            "Create",
		"id":            rec.ID,
		"order_id":      rec.OrderID,
		"fill_sequence": rec.FillSequence,
		"qty":           rec.ExecutedQuantity.String(),
		"price":         rec.ExecutionPrice.String(),
	}).Debug("Execution record appended")

	return nil
}

// AttachPosition sets position_id on a fill that has none yet.
func (r *ExecutionRepository) AttachPosition(ctx context.Context, id, positionID uint) error {
	res := r.db.WithContext(ctx).
		Model(&model.ExecutionRecord{}).
		Where("id = ? AND position_id = ?", id, 0).
		Update("position_id", positionID)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "ExecutionRepository",
			"op":          "AttachPosition",
			"id":          id,
			"position_id": positionID,
		}).WithError(res.Error).Error("Failed to attach execution to position")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExecutionAttached
	}

	return nil
}

// FindByExecutionID returns nil, nil when the broker execution id was never seen.
func (r *ExecutionRepository) FindByExecutionID(ctx context.Context, executionID string) (*model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "ExecutionRepository",
			"op":           "FindByExecutionID",
			"execution_id": executionID,
		}).WithError(err).Error("Failed to fetch execution by broker id")
		return nil, err
	}

	return &rec, nil
}

// ListByOrder returns the fills of an order in sequence order.
func (r *ExecutionRepository) ListByOrder(ctx context.Context, orderID string) ([]model.ExecutionRecord, error) {
	var recs []model.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("fill_sequence ASC").
		Find(&recs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "ExecutionRepository",
			"op":       "ListByOrder",
			"order_id": orderID,
		}).WithError(err).Error("Failed to list executions of order")
		return nil, err
	}

	return recs, nil
}
