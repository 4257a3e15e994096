package orchestrator

import (
	"context"
	"errors"
	"log"

	"github.com/shopkart/checkout-service/domain"
	backendapi "github.com/shopkart/checkout-service/internal/backend"
	"github.com/shopkart/checkout-service/internal/gateway"
	"github.com/shopkart/checkout-service/internal/repository"
)

// openGatewaySession mints a payment session for the just-created order and
// builds the widget options the browser needs. The attempt parks in
// WIDGET_OPEN until the widget fires its completion or cancellation callback.
func (o *Orchestrator) openGatewaySession(ctx context.Context, attempt *repository.CheckoutAttempt, staged *domain.StagedCheckout, order *domain.OrderResult) (*PayResult, error) {
	if !domain.CanTransitionTo(attempt.State, domain.StateGatewaySessionPending) {
		return nil, ErrIllegalTransition
	}
	pendingSession := domain.StateGatewaySessionPending
	if err := o.repo.UpdateAttemptState(ctx, &attempt.ID, &pendingSession, nil); err != nil {
		return nil, err
	}
	attempt.State = pendingSession

	session, err := o.minter.MintSession(ctx, order, staged)
	if err != nil {
		initErr := classifyGatewayError(err)
		reason := initErr.Error()
		failed := domain.StateFailed
		if dbErr := o.repo.UpdateAttemptState(ctx, &attempt.ID, &failed, &reason); dbErr != nil {
			log.Printf("failed to record gateway init failure: %v", dbErr)
		}
		attempt.State = failed
		return nil, initErr
	}

	widgetOpen := domain.StateWidgetOpen
	if err := o.repo.SetGatewayOrder(ctx, &attempt.ID, &widgetOpen, &session.GatewayOrderID); err != nil {
		return nil, err
	}
	attempt.State = widgetOpen
	attempt.GatewayOrderID = &session.GatewayOrderID

	return &PayResult{
		State:     domain.StateWidgetOpen,
		AttemptID: attempt.ID,
		Order:     order,
		Widget:    gateway.BuildWidgetOptions(session, staged, order, o.cfg.StoreName),
	}, nil
}

// CancelPayment handles the widget dismissal: back to STAGED with the record
// untouched, so the pay action can be re-enabled without data loss. A
// cancellation is not an error.
func (o *Orchestrator) CancelPayment(ctx context.Context, sessionID string) error {
	attempt, err := o.repo.GetActiveAttemptBySession(ctx, sessionID)
	if errors.Is(err, repository.ErrAttemptNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if attempt.State != domain.StateWidgetOpen {
		// Nothing to unwind; a stray dismiss after completion is ignored.
		return nil
	}

	staged := domain.StateStaged
	return o.repo.UpdateAttemptState(ctx, &attempt.ID, &staged, nil)
}

func classifyGatewayError(err error) error {
	var apiErr *backendapi.APIError
	if errors.As(err, &apiErr) {
		return &GatewayInitError{Message: apiErr.Message}
	}
	return &NetworkError{Op: "mint gateway session", Err: err}
}
