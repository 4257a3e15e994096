package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkart/checkout-service/domain"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(staged *domain.StagedCheckout)
		method    domain.PaymentMethod
		wantField string
	}{
		{"valid cod", func(s *domain.StagedCheckout) {}, domain.MethodCOD, ""},
		{"valid card", func(s *domain.StagedCheckout) {}, domain.MethodCard, ""},
		{"valid upi", func(s *domain.StagedCheckout) {}, domain.MethodUPI, ""},
		{"valid netbanking", func(s *domain.StagedCheckout) {}, domain.MethodNetbanking, ""},
		{"empty items", func(s *domain.StagedCheckout) { s.Items = nil }, domain.MethodCOD, "items"},
		{"zero product id", func(s *domain.StagedCheckout) { s.Items[0].ProductID = 0 }, domain.MethodCOD, "items"},
		{"zero quantity", func(s *domain.StagedCheckout) { s.Items[0].Quantity = 0 }, domain.MethodCOD, "items"},
		{"missing name", func(s *domain.StagedCheckout) { s.Address.Name = "" }, domain.MethodCOD, "address.name"},
		{"blank phone", func(s *domain.StagedCheckout) { s.Address.Phone = "   " }, domain.MethodCOD, "address.phone"},
		{"missing pincode", func(s *domain.StagedCheckout) { s.Address.Pincode = "" }, domain.MethodCOD, "address.pincode"},
		{"missing city", func(s *domain.StagedCheckout) { s.Address.City = "" }, domain.MethodCOD, "address.city"},
		{"missing state", func(s *domain.StagedCheckout) { s.Address.State = "" }, domain.MethodCOD, "address.state"},
		{"unknown method", func(s *domain.StagedCheckout) { s.PaymentMethod = "crypto" }, domain.MethodCOD, "payment_method"},
		{"unknown checkout type", func(s *domain.StagedCheckout) { s.CheckoutType = "wishlist" }, domain.MethodCOD, "checkout_type"},
		{"card details missing", func(s *domain.StagedCheckout) { s.PaymentDetails.Card = nil }, domain.MethodCard, "payment_details.card"},
		{"card number short", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.Number = "4111" }, domain.MethodCard, "payment_details.card.number"},
		{"card number letters", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.Number = "4111x11111111111" }, domain.MethodCard, "payment_details.card.number"},
		{"card expiry month 13", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.Expiry = "13/25" }, domain.MethodCard, "payment_details.card.expiry"},
		{"card expiry month 00", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.Expiry = "00/25" }, domain.MethodCard, "payment_details.card.expiry"},
		{"card expiry wrong format", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.Expiry = "12-27" }, domain.MethodCard, "payment_details.card.expiry"},
		{"card cvv short", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.CVV = "12" }, domain.MethodCard, "payment_details.card.cvv"},
		{"card cvv long", func(s *domain.StagedCheckout) { s.PaymentDetails.Card.CVV = "12345" }, domain.MethodCard, "payment_details.card.cvv"},
		{"upi id missing", func(s *domain.StagedCheckout) { s.PaymentDetails.UPIID = "" }, domain.MethodUPI, "payment_details.upi_id"},
		{"bank missing", func(s *domain.StagedCheckout) { s.PaymentDetails.Bank = "" }, domain.MethodNetbanking, "payment_details.bank"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			staged := validStaged(tc.method)
			tc.mutate(staged)

			err := Validate(staged)
			if tc.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.wantField, validationErr.Field)
		})
	}
}

func TestValidateAcceptsSpacedCardNumber(t *testing.T) {
	staged := validStaged(domain.MethodCard)
	staged.PaymentDetails.Card.Number = "4111-1111-1111-1111"

	assert.NoError(t, Validate(staged))
}

func TestValidateIsRepeatable(t *testing.T) {
	staged := validStaged(domain.MethodCard)

	first := Validate(staged)
	second := Validate(staged)

	assert.NoError(t, first)
	assert.NoError(t, second)

	staged.PaymentDetails.Card.CVV = "x"
	firstBad := Validate(staged)
	secondBad := Validate(staged)

	require.Error(t, firstBad)
	assert.Equal(t, firstBad.Error(), secondBad.Error())
}
