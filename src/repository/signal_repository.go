package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionledger/src/model"
)

// SignalRepository stores the close signals raised by the risk evaluator.
type SignalRepository struct {
	db *gorm.DB
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

func (r *SignalRepository) Create(ctx context.Context, s *model.TriggerSignal) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "SignalRepository",
			"op":          "Create",
			"position_id": s.PositionID,
			"reason":      s.Reason,
		}).WithError(err).Error("Failed to persist trigger signal")
		return err
	}
	return nil
}

// ListByPosition returns the signals of a position, oldest first.
func (r *SignalRepository) ListByPosition(ctx context.Context, positionID uint) ([]model.TriggerSignal, error) {
	var signals []model.TriggerSignal
	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&signals).Error
	if err != nil {
		return nil, err
	}
	return signals, nil
}
