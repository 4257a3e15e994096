package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopkart/checkout-service/domain"
	"github.com/shopkart/checkout-service/internal/repository"
)

// confirm finishes a checkout: mark the attempt confirmed (appending the
// outbox event in the same transaction) and destroy the staged record. This
// is the only place the staged record is ever cleared.
func (o *Orchestrator) confirm(ctx context.Context, attempt *repository.CheckoutAttempt, staged *domain.StagedCheckout, order *domain.OrderResult, paymentID string) (string, error) {
	if !domain.CanTransitionTo(attempt.State, domain.StateOrderConfirmed) {
		return "", ErrIllegalTransition
	}

	payload := map[string]interface{}{
		"attempt_id":     attempt.ID,
		"session_id":     attempt.SessionID,
		"order_id":       order.OrderID,
		"order_number":   order.OrderNumber,
		"payment_method": staged.PaymentMethod,
		"total_price":    staged.TotalPrice,
		"confirmed_at":   time.Now(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal confirmation payload: %w", err)
	}

	var pid *string
	if paymentID != "" {
		pid = &paymentID
	}
	if err := o.repo.ConfirmAttempt(ctx, &attempt.ID, pid, payloadJSON); err != nil {
		return "", err
	}
	attempt.State = domain.StateOrderConfirmed

	// The order is confirmed either way; a stale staged record only costs a
	// TTL expiry, so log and move on.
	if err := o.staging.Clear(ctx, attempt.SessionID); err != nil {
		log.Printf("failed to clear staged checkout for session %v: %v", attempt.SessionID, err)
	}

	return redirectFor(order.OrderNumber), nil
}
