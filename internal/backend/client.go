package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopkart/checkout-service/domain"
)

// APIError is a rejection the backend explained: non-2xx status with a
// message in the body. Transport failures come back as plain wrapped errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend rejected request (%d): %s", e.StatusCode, e.Message)
}

// Client is a typed client for the commerce backend's checkout endpoints.
// All calls are sequential within one checkout attempt; the breaker only
// trips on transport-level failures, not on explained rejections.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

func New(baseURL string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "commerce-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr)
		},
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

type orderRequestBody struct {
	FullName       string                `json:"full_name"`
	Phone          string                `json:"phone"`
	Pincode        string                `json:"pincode"`
	Address        string                `json:"address"`
	City           string                `json:"city"`
	State          string                `json:"state"`
	Locality       string                `json:"locality,omitempty"`
	PaymentMethod  string                `json:"payment_method"`
	PaymentDetails domain.PaymentDetails `json:"payment_details,omitempty"`
	IdempotencyKey string                `json:"idempotency_key"`

	// cart checkout
	Items []domain.CheckoutItem `json:"items,omitempty"`

	// single-product checkout
	ProductID int64 `json:"product_id,omitempty"`
	Quantity  int   `json:"quantity,omitempty"`
}

// CreateOrder submits the staged checkout to the order-creation endpoint.
// The endpoint depends on the checkout type: a cart checkout sends the full
// item list, a buy-now checkout sends a single product id and quantity.
func (c *Client) CreateOrder(ctx context.Context, staged *domain.StagedCheckout) (*domain.OrderResult, error) {
	body := orderRequestBody{
		FullName:       staged.Address.Name,
		Phone:          staged.Address.Phone,
		Pincode:        staged.Address.Pincode,
		Address:        staged.Address.Address,
		City:           staged.Address.City,
		State:          staged.Address.State,
		Locality:       staged.Address.Locality,
		PaymentMethod:  string(staged.PaymentMethod),
		PaymentDetails: staged.PaymentDetails,
		IdempotencyKey: staged.IdempotencyKey,
	}

	path := "/checkout/cart"
	if staged.CheckoutType == domain.CheckoutBuyNow {
		path = "/checkout/single"
		body.ProductID = staged.Items[0].ProductID
		body.Quantity = staged.Items[0].Quantity
	} else {
		body.Items = staged.Items
	}

	respBody, err := c.post(ctx, path, body, staged.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return normalizeOrderResponse(respBody)
}

type gatewayOrderRequestBody struct {
	OrderID        int64  `json:"order_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// MintSession asks the backend to mint a payment-gateway session scoped to
// the just-created local order.
func (c *Client) MintSession(ctx context.Context, order *domain.OrderResult, _ *domain.StagedCheckout) (*domain.GatewaySession, error) {
	body := gatewayOrderRequestBody{OrderID: order.OrderID}
	respBody, err := c.post(ctx, "/razorpay/order", body, "")
	if err != nil {
		return nil, err
	}
	return normalizeSessionResponse(respBody)
}

type verifyRequestBody struct {
	LocalOrderID     int64  `json:"local_order_id"`
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	GatewaySignature string `json:"razorpay_signature"`
	IdempotencyKey   string `json:"idempotency_key"`
}

// VerifyPayment forwards the widget's completion payload, plus the local
// order id, to the backend for signature verification.
func (c *Client) VerifyPayment(ctx context.Context, localOrderID int64, completion *domain.PaymentCompletion, idempotencyKey string) error {
	body := verifyRequestBody{
		LocalOrderID:     localOrderID,
		GatewayOrderID:   completion.GatewayOrderID,
		GatewayPaymentID: completion.GatewayPaymentID,
		GatewaySignature: completion.GatewaySignature,
		IdempotencyKey:   idempotencyKey,
	}
	respBody, err := c.post(ctx, "/razorpay/verify", body, idempotencyKey)
	if err != nil {
		return err
	}
	return normalizeVerifyResponse(respBody)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, idempotencyKey string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body failed: %w", err)
	}

	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request failed: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request to %s failed: %w", path, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read response from %s failed: %w", path, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    extractMessage(respBody),
			}
		}
		return respBody, nil
	})
}
