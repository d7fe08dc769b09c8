package orders

import (
	"context"

	"go.uber.org/zap"
)

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// compensations is a LIFO undo stack for checkout side effects.
type compensations struct {
	steps []compensation
}

func (c *compensations) push(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, undo: undo})
}

// run undoes every recorded step newest first. It detaches from ctx so a
// cancelled request still releases what it took.
func (c *compensations) run(ctx context.Context, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.undo(ctx); err != nil {
			logger.Error("checkout compensation failed", zap.String("step", step.name), zap.Error(err))
		}
	}
	c.steps = nil
}
