package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/shopkart/checkout-service/domain"
	backendapi "github.com/shopkart/checkout-service/internal/backend"
	"github.com/shopkart/checkout-service/internal/gateway"
	"github.com/shopkart/checkout-service/internal/staging"
)

// CompletePayment handles the widget's completion callback: check the
// signature, forward the payload to verification, and confirm or fail the
// attempt. Verification failure keeps the staged record, since the local
// order already exists server-side in a pending state and retrying must not
// lose the user's data.
func (o *Orchestrator) CompletePayment(ctx context.Context, sessionID string, completion *domain.PaymentCompletion) (*CompletionResult, error) {
	attempt, err := o.repo.GetActiveAttemptBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if attempt.State == domain.StateVerifying {
		return nil, ErrVerificationInFlight
	}
	if !domain.CanTransitionTo(attempt.State, domain.StateVerifying) {
		return nil, ErrIllegalTransition
	}
	if attempt.OrderID == nil {
		return nil, ErrIllegalTransition
	}

	staged, err := o.staging.Get(ctx, sessionID)
	if errors.Is(err, staging.ErrNotStaged) {
		// The widget can sit open past the staging TTL. The user may already
		// have paid, so restore from the durable snapshot instead of
		// refusing the callback.
		staged = &domain.StagedCheckout{}
		if jsonErr := json.Unmarshal(attempt.StagedSnapshot, staged); jsonErr != nil {
			return nil, fmt.Errorf("failed to restore staged snapshot: %w", jsonErr)
		}
	} else if err != nil {
		return nil, err
	}

	verifying := domain.StateVerifying
	if err := o.repo.UpdateAttemptState(ctx, &attempt.ID, &verifying, nil); err != nil {
		return nil, err
	}
	attempt.State = verifying

	if o.cfg.SignatureSecret != "" && !gateway.VerifySignature(completion, o.cfg.SignatureSecret) {
		reason := "payment signature rejected"
		payload := failurePayload(attempt.ID, sessionID, attempt.OrderID, reason)
		if dbErr := o.repo.FailAttempt(ctx, &attempt.ID, reason, payload); dbErr != nil {
			log.Printf("failed to record signature rejection: %v", dbErr)
		}
		return nil, &VerificationError{Message: reason}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, o.cfg.VerifyTimeout)
	defer cancel()
	verifyErr := o.backend.VerifyPayment(verifyCtx, *attempt.OrderID, completion, attempt.IdempotencyKey)

	if verifyErr != nil {
		if errors.Is(verifyErr, context.DeadlineExceeded) {
			// No definitive answer: the attempt stays in VERIFYING and the
			// recovery poller hands it to reconciliation.
			return nil, ErrIndeterminatePayment
		}

		var apiErr *backendapi.APIError
		if errors.As(verifyErr, &apiErr) {
			payload := failurePayload(attempt.ID, sessionID, attempt.OrderID, apiErr.Message)
			if dbErr := o.repo.FailAttempt(ctx, &attempt.ID, apiErr.Message, payload); dbErr != nil {
				log.Printf("failed to record verification failure: %v", dbErr)
			}
			return nil, &VerificationError{Message: apiErr.Message}
		}

		// Transport failure with the outcome unknown at the gateway but the
		// request likely never arrived: revert to WIDGET_OPEN so the client
		// can re-deliver the callback.
		widgetOpen := domain.StateWidgetOpen
		if dbErr := o.repo.UpdateAttemptState(ctx, &attempt.ID, &widgetOpen, nil); dbErr != nil {
			log.Printf("failed to revert verification state: %v", dbErr)
		}
		return nil, &NetworkError{Op: "verify payment", Err: verifyErr}
	}

	order := &domain.OrderResult{OrderID: *attempt.OrderID}
	if attempt.OrderNumber != nil {
		order.OrderNumber = *attempt.OrderNumber
	}

	redirect, err := o.confirm(ctx, attempt, staged, order, completion.GatewayPaymentID)
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		State:       domain.StateOrderConfirmed,
		OrderNumber: order.OrderNumber,
		RedirectURL: redirect,
	}, nil
}

func failurePayload(attemptID, sessionID string, orderID *int64, reason string) []byte {
	payload, err := json.Marshal(map[string]interface{}{
		"attempt_id": attemptID,
		"session_id": sessionID,
		"order_id":   orderID,
		"reason":     reason,
	})
	if err != nil {
		log.Printf("failed to marshal failure payload: %v", err)
		return []byte("{}")
	}
	return payload
}
