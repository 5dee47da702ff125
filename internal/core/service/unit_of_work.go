package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// UnitOfWork collects compensating actions for writes already applied during
// one call. Rollback runs them newest first; Commit discards them. Both are
// idempotent, so `defer uow.Rollback(ctx)` after a Commit is a no-op.
type UnitOfWork struct {
	logger *zap.Logger
	steps  []compensation
	closed bool
}

func NewUnitOfWork(logger *zap.Logger) *UnitOfWork {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitOfWork{logger: logger}
}

// Defer registers undo to run if the unit is rolled back.
func (u *UnitOfWork) Defer(name string, undo func(ctx context.Context) error) {
	if u.closed {
		return
	}
	u.steps = append(u.steps, compensation{name: name, undo: undo})
}

// Pending returns the number of registered compensations.
func (u *UnitOfWork) Pending() int {
	return len(u.steps)
}

// Adopt moves the pending compensations of other into u, after u's own, and
// closes other.
func (u *UnitOfWork) Adopt(other *UnitOfWork) {
	if other.closed {
		return
	}
	for _, step := range other.steps {
		u.Defer(step.name, step.undo)
	}
	other.closed = true
	other.steps = nil
}

func (u *UnitOfWork) Commit() {
	u.closed = true
	u.steps = nil
}

// Rollback runs every compensation even when some fail and returns the
// failures joined.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true

	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.undo(ctx); err != nil {
			u.logger.Error("Compensation failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	u.steps = nil
	return errors.Join(errs...)
}

// rollbackInto runs uow.Rollback and joins any compensation failure into
// *errp so the enclosing transaction fails with it.
func rollbackInto(ctx context.Context, uow *UnitOfWork, errp *error) {
	if rbErr := uow.Rollback(ctx); rbErr != nil {
		*errp = errors.Join(*errp, rbErr)
	}
}
