package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopkart/checkout-service/domain"
)

const attemptColumns = `id, session_id, idempotency_key, state, order_id, order_number,
	gateway_order_id, payment_id, failure_reason, staged_snapshot, created_at, updated_at`

func (r *Repository) CreateAttempt(ctx context.Context, attempt *CheckoutAttempt) error {
	query := `INSERT INTO checkout_attempts
		(id, session_id, idempotency_key, state, staged_snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.SessionID,
		attempt.IdempotencyKey,
		attempt.State,
		attempt.StagedSnapshot)
	if err != nil {
		return fmt.Errorf("failed to create checkout attempt: %w", err)
	}
	return nil
}

func (r *Repository) GetAttemptByIdempotencyKey(ctx context.Context, key string) (*CheckoutAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM checkout_attempts WHERE idempotency_key = $1`, attemptColumns)
	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyKeyNotFound
	}
	return attempt, err
}

// GetActiveAttemptBySession returns the most recent attempt for the session
// that has not reached a confirmed order.
func (r *Repository) GetActiveAttemptBySession(ctx context.Context, sessionID string) (*CheckoutAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM checkout_attempts
		WHERE session_id = $1 AND state <> $2
		ORDER BY updated_at DESC LIMIT 1`, attemptColumns)
	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, sessionID, domain.StateOrderConfirmed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return attempt, err
}

func (r *Repository) UpdateAttemptState(ctx context.Context, id *string, state *domain.CheckoutState, reason *string) error {
	query := `UPDATE checkout_attempts
		SET state = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, *id, *state, reason)
	if err != nil {
		return fmt.Errorf("failed to update attempt state: %w", err)
	}
	return nil
}

func (r *Repository) SetOrder(ctx context.Context, id *string, state *domain.CheckoutState, orderID int64, orderNumber string) error {
	query := `UPDATE checkout_attempts
		SET state = $2, order_id = $3, order_number = $4, failure_reason = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, *id, *state, orderID, orderNumber)
	if err != nil {
		return fmt.Errorf("failed to set order on attempt: %w", err)
	}
	return nil
}

func (r *Repository) SetGatewayOrder(ctx context.Context, id *string, state *domain.CheckoutState, gatewayOrderID *string) error {
	query := `UPDATE checkout_attempts
		SET state = $2, gateway_order_id = $3, updated_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, *id, *state, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("failed to set gateway order on attempt: %w", err)
	}
	return nil
}

// ConfirmAttempt marks the attempt confirmed and appends the outbox event in
// the same transaction, so a confirmed checkout can never miss its event.
func (r *Repository) ConfirmAttempt(ctx context.Context, id *string, paymentID *string, payload []byte) error {
	return r.finishAttempt(ctx, id, domain.StateOrderConfirmed, paymentID, nil, "checkout.confirmed", payload)
}

func (r *Repository) FailAttempt(ctx context.Context, id *string, reason string, payload []byte) error {
	return r.finishAttempt(ctx, id, domain.StateFailed, nil, &reason, "checkout.failed", payload)
}

func (r *Repository) finishAttempt(ctx context.Context, id *string, state domain.CheckoutState, paymentID *string, reason *string, eventType string, payload []byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `UPDATE checkout_attempts
		SET state = $2, payment_id = COALESCE($3, payment_id), failure_reason = $4, updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, *id, state, paymentID, reason); err != nil {
		return fmt.Errorf("failed to finish attempt: %w", err)
	}

	insert := `INSERT INTO checkout_outbox (aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, insert, *id, eventType, payload); err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
		FROM checkout_outbox
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateId, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE checkout_outbox SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return nil
}

// GetStuckVerifications returns attempts that entered VERIFYING and never got
// a definitive answer within the bound. They are candidates for being marked
// indeterminate and handed to reconciliation.
func (r *Repository) GetStuckVerifications(ctx context.Context, olderThan time.Duration) ([]*CheckoutAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM checkout_attempts
		WHERE state = $1 AND updated_at < NOW() - ($2 * INTERVAL '1 second')`, attemptColumns)

	rows, err := r.db.QueryContext(ctx, query, domain.StateVerifying, int(olderThan.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck verifications: %w", err)
	}
	defer rows.Close()

	var attempts []*CheckoutAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*CheckoutAttempt, error) {
	var a CheckoutAttempt
	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.IdempotencyKey,
		&a.State,
		&a.OrderID,
		&a.OrderNumber,
		&a.GatewayOrderID,
		&a.PaymentID,
		&a.FailureReason,
		&a.StagedSnapshot,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checkout attempt: %w", err)
	}
	return &a, nil
}
