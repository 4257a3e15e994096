package orchestrator

import (
	"regexp"
	"strings"

	"github.com/shopkart/checkout-service/domain"
)

var (
	cardNumberRe = regexp.MustCompile(`^[0-9]{15,19}$`)
	cardExpiryRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cardCVVRe    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// Validate checks the staged record before payment may start. It is a pure
// function over the record: no network call happens here, and calling it
// twice on the same record gives the same answer.
func Validate(staged *domain.StagedCheckout) error {
	if err := validateRecord(staged); err != nil {
		return err
	}
	return validatePaymentDetails(staged)
}

// validateRecord covers what every checkout needs regardless of payment
// method: a non-empty item list and a complete shipping address.
func validateRecord(staged *domain.StagedCheckout) error {
	if len(staged.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "cart is empty"}
	}
	for _, item := range staged.Items {
		if item.ProductID <= 0 {
			return &ValidationError{Field: "items", Reason: "product_id must be positive"}
		}
		if item.Quantity < 1 {
			return &ValidationError{Field: "items", Reason: "quantity must be at least 1"}
		}
	}

	addr := staged.Address
	required := []struct {
		field string
		value string
	}{
		{"address.name", addr.Name},
		{"address.phone", addr.Phone},
		{"address.pincode", addr.Pincode},
		{"address.address", addr.Address},
		{"address.city", addr.City},
		{"address.state", addr.State},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Reason: "required"}
		}
	}

	switch staged.PaymentMethod {
	case domain.MethodCOD, domain.MethodUPI, domain.MethodCard, domain.MethodNetbanking, domain.MethodGateway:
	default:
		return &ValidationError{Field: "payment_method", Reason: "unknown payment method"}
	}

	switch staged.CheckoutType {
	case domain.CheckoutCart, domain.CheckoutBuyNow:
	default:
		return &ValidationError{Field: "checkout_type", Reason: "unknown checkout type"}
	}

	return nil
}

func validatePaymentDetails(staged *domain.StagedCheckout) error {
	details := staged.PaymentDetails

	switch staged.PaymentMethod {
	case domain.MethodCard:
		if details.Card == nil {
			return &ValidationError{Field: "payment_details.card", Reason: "required"}
		}
		number := strings.NewReplacer(" ", "", "-", "").Replace(details.Card.Number)
		if !cardNumberRe.MatchString(number) {
			return &ValidationError{Field: "payment_details.card.number", Reason: "must be 15-19 digits"}
		}
		if !cardExpiryRe.MatchString(details.Card.Expiry) {
			return &ValidationError{Field: "payment_details.card.expiry", Reason: "must be MM/YY with month 01-12"}
		}
		if !cardCVVRe.MatchString(details.Card.CVV) {
			return &ValidationError{Field: "payment_details.card.cvv", Reason: "must be 3-4 digits"}
		}
	case domain.MethodUPI:
		if strings.TrimSpace(details.UPIID) == "" {
			return &ValidationError{Field: "payment_details.upi_id", Reason: "required"}
		}
	case domain.MethodNetbanking:
		if strings.TrimSpace(details.Bank) == "" {
			return &ValidationError{Field: "payment_details.bank", Reason: "required"}
		}
	}

	return nil
}
