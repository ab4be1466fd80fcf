package ledger

import (
	"errors"
	"fmt"

	"positionledger/src/repository"

	"gorm.io/gorm"
)

var (
	// ErrValidation rejects malformed input before anything is touched. Do not retry.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState means the position is not in a state that allows the operation.
	ErrInvalidState = errors.New("invalid position state")
	// ErrOverClose means a closing quantity exceeds the open quantity.
	ErrOverClose = errors.New("close quantity exceeds open quantity")
	// ErrConcurrencyConflict means a concurrent writer won; the whole operation may be retried.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrDuplicateExecution marks a redelivered broker execution. It is logged and absorbed,
	// never returned from ApplyFill.
	ErrDuplicateExecution = errors.New("duplicate execution")
	ErrNotFound           = errors.New("not found")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// translate maps storage level races onto ErrConcurrencyConflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStaleVersion) ||
		errors.Is(err, repository.ErrExecutionAttached) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}
