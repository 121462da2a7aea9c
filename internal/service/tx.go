package service

import (
	"context"
	"errors"

	"studyhub/internal/models"

	"gorm.io/gorm"
)

// inTx runs fn in a transaction. AppErrors raised by fn come back unchanged,
// anything else rolled the transaction back and is reported as a
// TRANSACTION_FAILURE wrapping the cause.
func inTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewTransactionFailure(err)
}
