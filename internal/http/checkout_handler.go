package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/shopkart/checkout-service/domain"
	"github.com/shopkart/checkout-service/internal/orchestrator"
	"github.com/shopkart/checkout-service/internal/repository"
	"github.com/shopkart/checkout-service/internal/staging"
)

// CheckoutOrchestrator is what the handlers need from the orchestration
// layer.
type CheckoutOrchestrator interface {
	Stage(ctx context.Context, sessionID string, staged *domain.StagedCheckout) error
	Staged(ctx context.Context, sessionID string) (*domain.StagedCheckout, error)
	Abandon(ctx context.Context, sessionID string) error
	Pay(ctx context.Context, sessionID string) (*orchestrator.PayResult, error)
	CompletePayment(ctx context.Context, sessionID string, completion *domain.PaymentCompletion) (*orchestrator.CompletionResult, error)
	CancelPayment(ctx context.Context, sessionID string) error
}

type CheckoutHandler struct {
	orch    CheckoutOrchestrator
	timeout time.Duration
}

func NewCheckoutHandler(orch CheckoutOrchestrator, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		orch:    orch,
		timeout: timeout,
	}
}

type StageRequestDTO struct {
	Items          []domain.CheckoutItem `json:"items"`
	Address        domain.Address        `json:"address"`
	PaymentMethod  string                `json:"payment_method"`
	PaymentDetails domain.PaymentDetails `json:"payment_details"`
	CheckoutType   string                `json:"checkout_type"`
	TotalPrice     float64               `json:"total_price"`
}

type StagedResponseDTO struct {
	Items         []domain.CheckoutItem `json:"items"`
	Address       domain.Address        `json:"address"`
	PaymentMethod string                `json:"payment_method"`
	CheckoutType  string                `json:"checkout_type"`
	TotalPrice    float64               `json:"total_price"`
	StagedAt      string                `json:"staged_at"`
}

type PayResponseDTO struct {
	State       string                `json:"state"`
	AttemptID   string                `json:"attempt_id,omitempty"`
	OrderID     int64                 `json:"order_id,omitempty"`
	OrderNumber string                `json:"order_number,omitempty"`
	Redirect    string                `json:"redirect,omitempty"`
	Widget      *domain.WidgetOptions `json:"widget,omitempty"`
}

type CompletionResponseDTO struct {
	State       string `json:"state"`
	OrderNumber string `json:"order_number"`
	Redirect    string `json:"redirect"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Stage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())

	var req StageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	staged := &domain.StagedCheckout{
		Items:          req.Items,
		Address:        req.Address,
		PaymentMethod:  domain.PaymentMethod(req.PaymentMethod),
		PaymentDetails: req.PaymentDetails,
		CheckoutType:   domain.CheckoutType(req.CheckoutType),
		TotalPrice:     req.TotalPrice,
	}
	if staged.CheckoutType == "" {
		staged.CheckoutType = domain.CheckoutCart
	}

	if err := h.orch.Stage(ctx, sessionID, staged); err != nil {
		handleCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "staged"})
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetStaged(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	staged, err := h.orch.Staged(ctx, getSessionID(r.Context()))
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}

	// Payment details never leave the service once staged.
	respondJSON(w, http.StatusOK, StagedResponseDTO{
		Items:         staged.Items,
		Address:       staged.Address,
		PaymentMethod: string(staged.PaymentMethod),
		CheckoutType:  string(staged.CheckoutType),
		TotalPrice:    staged.TotalPrice,
		StagedAt:      staged.StagedAt.Format(time.RFC3339),
	})
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.orch.Abandon(ctx, getSessionID(r.Context())); err != nil {
		handleCheckoutError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// POST /api/v1/checkout/pay
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.orch.Pay(ctx, getSessionID(r.Context()))
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}

	dto := PayResponseDTO{
		State:     result.State.String(),
		AttemptID: result.AttemptID,
		Redirect:  result.RedirectURL,
		Widget:    result.Widget,
	}
	if result.Order != nil {
		dto.OrderID = result.Order.OrderID
		dto.OrderNumber = result.Order.OrderNumber
	}
	respondJSON(w, http.StatusOK, dto)
}

// POST /api/v1/checkout/payment/callback
func (h *CheckoutHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var completion domain.PaymentCompletion
	if err := json.NewDecoder(r.Body).Decode(&completion); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if completion.GatewayOrderID == "" || completion.GatewayPaymentID == "" || completion.GatewaySignature == "" {
		respondError(w, http.StatusBadRequest, "invalid_callback", "callback payload incomplete")
		return
	}

	result, err := h.orch.CompletePayment(ctx, getSessionID(r.Context()), &completion)
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CompletionResponseDTO{
		State:       result.State.String(),
		OrderNumber: result.OrderNumber,
		Redirect:    result.RedirectURL,
	})
}

// POST /api/v1/checkout/payment/cancel
func (h *CheckoutHandler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.orch.CancelPayment(ctx, getSessionID(r.Context())); err != nil {
		handleCheckoutError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": domain.StateStaged.String()})
}

func handleCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *orchestrator.ValidationError
	var creationErr *orchestrator.OrderCreationError
	var gatewayErr *orchestrator.GatewayInitError
	var verificationErr *orchestrator.VerificationError
	var networkErr *orchestrator.NetworkError

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   validationErr.Reason,
			Code:    "validation_failed",
			Details: validationErr.Field,
		})
	case errors.Is(err, staging.ErrNotStaged):
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "no checkout in progress",
			Code:    "not_staged",
			Details: "/cart.html",
		})
	case errors.Is(err, repository.ErrAttemptNotFound):
		respondError(w, http.StatusNotFound, "attempt_not_found", "no active checkout attempt")
	case errors.As(err, &creationErr):
		respondError(w, http.StatusUnprocessableEntity, "order_creation_failed", creationErr.Message)
	case errors.As(err, &gatewayErr):
		respondError(w, http.StatusBadGateway, "gateway_init_failed", gatewayErr.Message)
	case errors.As(err, &verificationErr):
		respondError(w, http.StatusUnprocessableEntity, "verification_failed", verificationErr.Message)
	case errors.Is(err, orchestrator.ErrVerificationInFlight):
		respondError(w, http.StatusConflict, "verification_in_flight", "payment verification already in progress")
	case errors.Is(err, orchestrator.ErrIndeterminatePayment):
		respondError(w, http.StatusGatewayTimeout, "payment_indeterminate", "payment outcome unknown, do not retry; contact support")
	case errors.Is(err, orchestrator.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_state", "checkout is not in a state that allows this action")
	case errors.As(err, &networkErr):
		log.Printf("backend unreachable request_id = %v: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusServiceUnavailable, "backend_unavailable", "could not reach the store, please try again")
	default:
		log.Printf("unhandled checkout error request_id = %v: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
