package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/shopkart/checkout-service/domain"
	backendapi "github.com/shopkart/checkout-service/internal/backend"
	"github.com/shopkart/checkout-service/internal/repository"
)

// Pay runs the payment step for the session's staged record: validate,
// submit the order, then either confirm (cash on delivery) or mint a gateway
// session and hand widget options back to the browser. The staged record is
// only ever cleared on confirmed success.
func (o *Orchestrator) Pay(ctx context.Context, sessionID string) (*PayResult, error) {
	staged, err := o.staging.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := Validate(staged); err != nil {
		return nil, err
	}

	attempt, replay, err := o.ensureAttempt(ctx, sessionID, staged)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	order, err := o.submitOrder(ctx, attempt, staged)
	if err != nil {
		return nil, err
	}

	if !staged.PaymentMethod.IsGatewayRouted() {
		redirect, err := o.confirm(ctx, attempt, staged, order, "")
		if err != nil {
			return nil, err
		}
		return &PayResult{
			State:       domain.StateOrderConfirmed,
			AttemptID:   attempt.ID,
			Order:       order,
			RedirectURL: redirect,
		}, nil
	}

	return o.openGatewaySession(ctx, attempt, staged, order)
}

// ensureAttempt finds or creates the attempt row for the staged record's
// idempotency key. A confirmed attempt short-circuits into a replayed result
// instead of creating a duplicate order; a failed or cancelled one is reset
// for retry.
func (o *Orchestrator) ensureAttempt(ctx context.Context, sessionID string, staged *domain.StagedCheckout) (*repository.CheckoutAttempt, *PayResult, error) {
	attempt, err := o.repo.GetAttemptByIdempotencyKey(ctx, staged.IdempotencyKey)
	if err != nil && !errors.Is(err, repository.ErrIdempotencyKeyNotFound) {
		return nil, nil, fmt.Errorf("failed to check idempotency: %w", err)
	}

	if attempt == nil {
		snapshot, err := json.Marshal(staged)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal staged snapshot: %w", err)
		}
		attempt = &repository.CheckoutAttempt{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			IdempotencyKey: staged.IdempotencyKey,
			State:          domain.StateStaged,
			StagedSnapshot: snapshot,
		}
		if err := o.repo.CreateAttempt(ctx, attempt); err != nil {
			return nil, nil, fmt.Errorf("failed to create checkout attempt: %w", err)
		}
		return attempt, nil, nil
	}

	switch attempt.State {
	case domain.StateOrderConfirmed:
		// Duplicate pay with the same key: return the cached result.
		log.Printf("duplicate pay detected idempotency_key = %v with attempt_id = %v", staged.IdempotencyKey, attempt.ID)
		orderNumber := ""
		if attempt.OrderNumber != nil {
			orderNumber = *attempt.OrderNumber
		}
		result := &PayResult{
			State:       domain.StateOrderConfirmed,
			AttemptID:   attempt.ID,
			RedirectURL: redirectFor(orderNumber),
		}
		if attempt.OrderID != nil {
			result.Order = &domain.OrderResult{OrderID: *attempt.OrderID, OrderNumber: orderNumber}
		}
		return nil, result, nil
	case domain.StateVerifying:
		return nil, nil, ErrVerificationInFlight
	case domain.StateStaged:
		return attempt, nil, nil
	default:
		if !domain.CanTransitionTo(attempt.State, domain.StateStaged) {
			return nil, nil, ErrIllegalTransition
		}
		stagedState := domain.StateStaged
		if err := o.repo.UpdateAttemptState(ctx, &attempt.ID, &stagedState, nil); err != nil {
			return nil, nil, err
		}
		attempt.State = stagedState
		return attempt, nil, nil
	}
}

// submitOrder sends the order-creation request, or reuses the order a prior
// attempt already created so a retry after a failed verification cannot
// duplicate the order server-side.
func (o *Orchestrator) submitOrder(ctx context.Context, attempt *repository.CheckoutAttempt, staged *domain.StagedCheckout) (*domain.OrderResult, error) {
	if attempt.OrderID != nil {
		log.Printf("reusing order %d for attempt %v", *attempt.OrderID, attempt.ID)
		orderNumber := ""
		if attempt.OrderNumber != nil {
			orderNumber = *attempt.OrderNumber
		}
		order := &domain.OrderResult{OrderID: *attempt.OrderID, OrderNumber: orderNumber}
		pending := domain.StateOrderPending
		if err := o.repo.UpdateAttemptState(ctx, &attempt.ID, &pending, nil); err != nil {
			return nil, err
		}
		attempt.State = pending
		return order, nil
	}

	order, err := o.backend.CreateOrder(ctx, staged)
	if err != nil {
		submitErr := classifySubmitError(err)
		reason := submitErr.Error()
		failed := domain.StateFailed
		if dbErr := o.repo.UpdateAttemptState(ctx, &attempt.ID, &failed, &reason); dbErr != nil {
			log.Printf("failed to record order submission failure: %v", dbErr)
		}
		attempt.State = failed
		return nil, submitErr
	}

	pending := domain.StateOrderPending
	if err := o.repo.SetOrder(ctx, &attempt.ID, &pending, order.OrderID, order.OrderNumber); err != nil {
		return nil, err
	}
	attempt.State = pending
	attempt.OrderID = &order.OrderID
	attempt.OrderNumber = &order.OrderNumber
	return order, nil
}

func classifySubmitError(err error) error {
	var apiErr *backendapi.APIError
	if errors.As(err, &apiErr) {
		return &OrderCreationError{Message: apiErr.Message}
	}
	return &NetworkError{Op: "submit order", Err: err}
}
