package gateway

import (
	"fmt"

	"github.com/shopkart/checkout-service/domain"
)

// BuildWidgetOptions produces the construction payload the browser hands to
// the payment widget. The widget's handler and dismiss hooks are bound
// client-side; everything it needs beyond those two callbacks is here.
func BuildWidgetOptions(session *domain.GatewaySession, staged *domain.StagedCheckout, order *domain.OrderResult, storeName string) *domain.WidgetOptions {
	return &domain.WidgetOptions{
		Key:         session.Key,
		Amount:      session.Amount,
		Currency:    session.Currency,
		Name:        storeName,
		Description: fmt.Sprintf("Order %s", order.OrderNumber),
		OrderID:     session.GatewayOrderID,
		Prefill: domain.WidgetPrefill{
			Name:  staged.Address.Name,
			Phone: staged.Address.Phone,
		},
		Theme: domain.WidgetTheme{Color: "#2b6777"},
	}
}
