package repository

import (
	"context"

	"positionledger/src/database"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionledger/src/model"
)

// ExceptionRepository handles persistence of system exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// ListRecent returns the latest exceptions of a module, newest first.
func (r *ExceptionRepository) ListRecent(ctx context.Context, module string, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 20
	}

	var out []model.Exception
	err := r.db.WithContext(ctx).
		Where("module = ?", module).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
