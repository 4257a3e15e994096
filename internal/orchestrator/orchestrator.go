package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopkart/checkout-service/domain"
	"github.com/shopkart/checkout-service/internal/repository"
	"github.com/shopkart/checkout-service/internal/staging"
)

// BackendClient is the slice of the commerce backend this orchestrator
// drives: order creation and payment verification.
type BackendClient interface {
	CreateOrder(ctx context.Context, staged *domain.StagedCheckout) (*domain.OrderResult, error)
	VerifyPayment(ctx context.Context, localOrderID int64, completion *domain.PaymentCompletion, idempotencyKey string) error
}

// SessionMinter mints a gateway session scoped to one local order. The
// backend client satisfies this directly; a direct Razorpay minter can be
// wired instead when this service holds the gateway credentials.
type SessionMinter interface {
	MintSession(ctx context.Context, order *domain.OrderResult, staged *domain.StagedCheckout) (*domain.GatewaySession, error)
}

type Config struct {
	// SignatureSecret enables a local HMAC check of widget callbacks before
	// the backend verification round-trip. Empty disables the local check.
	SignatureSecret string
	// VerifyTimeout bounds the verification call; past it the payment is
	// reported indeterminate instead of hanging.
	VerifyTimeout time.Duration
	// StoreName is the display name the payment widget shows.
	StoreName string
}

type Orchestrator struct {
	staging staging.Store
	backend BackendClient
	minter  SessionMinter
	repo    repository.RepoInterface
	cfg     Config
}

func New(store staging.Store, backend BackendClient, minter SessionMinter, repo repository.RepoInterface, cfg Config) *Orchestrator {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 30 * time.Second
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "Shopkart"
	}
	return &Orchestrator{
		staging: store,
		backend: backend,
		minter:  minter,
		repo:    repo,
		cfg:     cfg,
	}
}

// PayResult is the outcome of the pay action: either a confirmed order with
// its redirect target, or widget options for the browser to open.
type PayResult struct {
	State       domain.CheckoutState
	AttemptID   string
	Order       *domain.OrderResult
	Widget      *domain.WidgetOptions
	RedirectURL string
}

// CompletionResult is the outcome of a widget completion callback.
type CompletionResult struct {
	State       domain.CheckoutState
	OrderNumber string
	RedirectURL string
}

// Stage captures the checkout snapshot for the session. The idempotency key
// is generated here and lives for the record's lifetime, so every retry of
// this checkout carries the same key.
func (o *Orchestrator) Stage(ctx context.Context, sessionID string, staged *domain.StagedCheckout) error {
	if err := validateRecord(staged); err != nil {
		return err
	}
	if staged.IdempotencyKey == "" {
		staged.IdempotencyKey = uuid.NewString()
	}
	staged.StagedAt = time.Now()
	return o.staging.Put(ctx, sessionID, staged)
}

// Staged returns the session's staged record. staging.ErrNotStaged means the
// payment step has no prerequisites and the client should go back to cart.
func (o *Orchestrator) Staged(ctx context.Context, sessionID string) (*domain.StagedCheckout, error) {
	return o.staging.Get(ctx, sessionID)
}

// Abandon discards the staged record without completing checkout.
func (o *Orchestrator) Abandon(ctx context.Context, sessionID string) error {
	return o.staging.Clear(ctx, sessionID)
}

func redirectFor(orderNumber string) string {
	return "/checkout-success.html?order_id=" + orderNumber
}
