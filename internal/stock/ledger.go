// Package stock reserves and restores per-variant inventory.
package stock

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/apperr"
)

// Ledger is implemented by the data store. Reserve must be a single
// conditional decrement ("stock -= qty where stock >= qty") and report
// apperr.OutOfStockError when the condition did not match. Restore is an
// unconditional increment.
type Ledger interface {
	Reserve(ctx context.Context, sku string, quantity int) error
	Restore(ctx context.Context, sku string, quantity int) error
}

// Line is one variant quantity to reserve.
type Line struct {
	SKU      string
	Quantity int
}

// ReserveLines reserves every line independently. When any line fails the
// lines already reserved are restored before the error is returned, so no
// partial reservation survives.
func ReserveLines(ctx context.Context, ledger Ledger, lines []Line, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	reserved := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			RestoreLines(context.WithoutCancel(ctx), ledger, reserved, logger)
			return apperr.Invalid("quantity", "must be greater than zero")
		}
		if err := ledger.Reserve(ctx, line.SKU, line.Quantity); err != nil {
			RestoreLines(context.WithoutCancel(ctx), ledger, reserved, logger)
			var stockErr *apperr.OutOfStockError
			if errors.As(err, &stockErr) {
				return err
			}
			return fmt.Errorf("reserve %s: %w", line.SKU, err)
		}
		reserved = append(reserved, line)
	}
	return nil
}

// RestoreLines credits every line back, newest first. Failures are logged;
// the remaining lines are still restored.
func RestoreLines(ctx context.Context, ledger Ledger, lines []Line, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if err := ledger.Restore(ctx, line.SKU, line.Quantity); err != nil {
			logger.Error("stock restore failed",
				zap.String("sku", line.SKU),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("restore %s: %w", line.SKU, err))
		}
	}
	return errors.Join(errs...)
}
