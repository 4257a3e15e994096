package domain

import "time"

type PaymentMethod string

const (
	MethodCOD        PaymentMethod = "cod"
	MethodUPI        PaymentMethod = "upi"
	MethodCard       PaymentMethod = "card"
	MethodNetbanking PaymentMethod = "netbanking"
	MethodGateway    PaymentMethod = "gateway"
)

// IsGatewayRouted reports whether payment for this method is collected by the
// external payment widget. Everything except cash-on-delivery goes through it.
func (m PaymentMethod) IsGatewayRouted() bool {
	return m != MethodCOD
}

type CheckoutType string

const (
	CheckoutCart   CheckoutType = "cart"
	CheckoutBuyNow CheckoutType = "buy_now"
)

type CheckoutItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Address struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Pincode  string `json:"pincode"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	Locality string `json:"locality,omitempty"`
}

type CardDetails struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
}

// PaymentDetails is a variant record: exactly the fields for the selected
// method are populated, the rest stay empty.
type PaymentDetails struct {
	UPIID string       `json:"upi_id,omitempty"`
	Card  *CardDetails `json:"card,omitempty"`
	Bank  string       `json:"bank,omitempty"`
}

// StagedCheckout is the snapshot of cart, address and payment method captured
// when the user confirms the summary step. It is read by the payment step and
// destroyed only on confirmed order success, so a failed attempt can be
// retried without re-entering anything. TotalPrice is informational; the
// authoritative total is recomputed by the backend.
type StagedCheckout struct {
	Items          []CheckoutItem `json:"items"`
	Address        Address        `json:"address"`
	PaymentMethod  PaymentMethod  `json:"payment_method"`
	PaymentDetails PaymentDetails `json:"payment_details"`
	CheckoutType   CheckoutType   `json:"checkout_type"`
	TotalPrice     float64        `json:"total_price"`
	IdempotencyKey string         `json:"idempotency_key"`
	StagedAt       time.Time      `json:"staged_at"`
}
