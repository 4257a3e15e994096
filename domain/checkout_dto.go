package domain

// OrderResult is the canonical outcome of a successful order-creation call.
type OrderResult struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// GatewaySession is a short-lived payment authorization minted for exactly
// one local order. Amount is in the smallest currency unit (paise).
type GatewaySession struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Key            string `json:"key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// PaymentCompletion is the payload the payment widget hands back when the
// user finishes paying.
type PaymentCompletion struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	GatewaySignature string `json:"razorpay_signature"`
}

type WidgetPrefill struct {
	Name  string `json:"name"`
	Phone string `json:"contact"`
	Email string `json:"email,omitempty"`
}

type WidgetTheme struct {
	Color string `json:"color"`
}

// WidgetOptions is the construction contract for the external payment widget.
type WidgetOptions struct {
	Key         string        `json:"key"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	OrderID     string        `json:"order_id"`
	Prefill     WidgetPrefill `json:"prefill"`
	Theme       WidgetTheme   `json:"theme"`
}
