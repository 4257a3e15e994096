package domain

type CheckoutState string

const (
	StateStaged                CheckoutState = "STAGED"
	StateOrderPending          CheckoutState = "ORDER_PENDING"
	StateGatewaySessionPending CheckoutState = "GATEWAY_SESSION_PENDING"
	StateWidgetOpen            CheckoutState = "WIDGET_OPEN"
	StateVerifying             CheckoutState = "VERIFYING"
	StateOrderConfirmed        CheckoutState = "ORDER_CONFIRMED"
	StateFailed                CheckoutState = "FAILED"
)

// transitions holds every legal state change. FAILED -> STAGED is the
// user-initiated retry path: the staged record survives a failed attempt.
// GATEWAY_SESSION_PENDING -> STAGED and WIDGET_OPEN -> STAGED unwind an
// interrupted gateway round-trip so a re-click of pay is never blocked.
// VERIFYING -> WIDGET_OPEN reopens the callback after a transport failure
// where the verification request never reached the backend.
var transitions = map[CheckoutState][]CheckoutState{
	StateStaged:                {StateOrderPending, StateFailed},
	StateOrderPending:          {StateOrderConfirmed, StateGatewaySessionPending, StateFailed},
	StateGatewaySessionPending: {StateWidgetOpen, StateStaged, StateFailed},
	StateWidgetOpen:            {StateVerifying, StateStaged},
	StateVerifying:             {StateOrderConfirmed, StateFailed, StateWidgetOpen},
	StateFailed:                {StateStaged},
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == StateOrderConfirmed
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
