package staging

import (
	"context"
	"errors"

	"github.com/shopkart/checkout-service/domain"
)

// Store holds the staged checkout record for each session. Single writer per
// session; concurrent tabs get last-writer-wins semantics.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.StagedCheckout, error)
	Put(ctx context.Context, sessionID string, staged *domain.StagedCheckout) error
	Clear(ctx context.Context, sessionID string) error
}

var ErrNotStaged = errors.New("no staged checkout for session")
