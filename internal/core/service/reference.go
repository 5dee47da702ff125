package service

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/port"
)

const (
	referencePrefix          = "ORD-"
	defaultReferenceAttempts = 10
)

// ReferenceGenerator produces candidate order references. Candidates may
// collide; callers check them against the store.
type ReferenceGenerator interface {
	NewReference() string
}

// UUIDReferenceGenerator derives ORD-XXXXXXXX codes from random UUIDs.
type UUIDReferenceGenerator struct{}

func (UUIDReferenceGenerator) NewReference() string {
	id := uuid.New()
	return referencePrefix + strings.ToUpper(hex.EncodeToString(id[:4]))
}

// ReferenceGeneratorFunc adapts a function to ReferenceGenerator.
type ReferenceGeneratorFunc func() string

func (f ReferenceGeneratorFunc) NewReference() string {
	return f()
}

// allocateReference returns the first unused candidate within attempts. Running
// out is fatal: it means the id space is broken, not that callers contend.
func allocateReference(ctx context.Context, gen ReferenceGenerator, orders port.OrderRepository, attempts int, logger *zap.Logger) (string, error) {
	if attempts <= 0 {
		attempts = defaultReferenceAttempts
	}

	for i := 0; i < attempts; i++ {
		ref := gen.NewReference()
		exists, err := orders.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
		logger.Warn("Order reference collision", zap.String("reference", ref), zap.Int("attempt", i+1))
	}

	logger.Error("Order reference space exhausted", zap.Int("attempts", attempts))
	return "", &domain.Error{
		Code:    domain.CodeConflict,
		Message: "could not allocate a unique order reference",
		Fatal:   true,
		Err:     domain.ErrReferenceExhausted,
	}
}
