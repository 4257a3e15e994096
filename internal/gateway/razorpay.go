package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/razorpay/razorpay-go"

	"github.com/shopkart/checkout-service/domain"
)

// RazorpayMinter mints gateway sessions directly against Razorpay, for
// deployments where this service holds the gateway credentials instead of
// delegating to the commerce backend.
type RazorpayMinter struct {
	client *razorpay.Client
	keyID  string
}

func NewRazorpayMinter(keyID, keySecret string) *RazorpayMinter {
	return &RazorpayMinter{
		client: razorpay.NewClient(keyID, keySecret),
		keyID:  keyID,
	}
}

func (m *RazorpayMinter) MintSession(ctx context.Context, order *domain.OrderResult, staged *domain.StagedCheckout) (*domain.GatewaySession, error) {
	// Razorpay amounts are in paise. The staged total is informational but it
	// is what the widget displays; the backend settles the authoritative sum.
	amount := int64(math.Round(staged.TotalPrice * 100))

	data := map[string]interface{}{
		"amount":   amount,
		"currency": "INR",
		"receipt":  fmt.Sprintf("order_%s", order.OrderNumber),
		"notes": map[string]interface{}{
			"local_order_id": order.OrderID,
		},
	}

	gatewayOrder, err := m.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	id, ok := gatewayOrder["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("gateway order response missing id")
	}

	return &domain.GatewaySession{
		GatewayOrderID: id,
		Key:            m.keyID,
		Amount:         amount,
		Currency:       "INR",
	}, nil
}

// VerifySignature checks the widget callback against the gateway's signing
// scheme: HMAC-SHA256 over "<gateway_order_id>|<gateway_payment_id>" keyed by
// the key secret, hex encoded.
func VerifySignature(completion *domain.PaymentCompletion, keySecret string) bool {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(completion.GatewayOrderID + "|" + completion.GatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(completion.GatewaySignature))
}
