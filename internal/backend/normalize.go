package backend

import (
	"encoding/json"
	"fmt"

	"github.com/shopkart/checkout-service/domain"
)

// The backend answers the same endpoint with more than one body shape
// depending on version and failure mode. Each normalize function maps every
// known variant onto one canonical type so the ambiguity stays at this
// boundary and nowhere else.

// normalizeOrderResponse accepts either {order:{id,order_number}} or a
// top-level {id,order_number}, and treats {success:false,message} as a
// rejection even under HTTP 200.
func normalizeOrderResponse(body []byte) (*domain.OrderResult, error) {
	var envelope struct {
		Order *struct {
			ID          int64  `json:"id"`
			OrderNumber string `json:"order_number"`
		} `json:"order"`
		ID          int64  `json:"id"`
		OrderNumber string `json:"order_number"`
		Success     *bool  `json:"success"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected order response: %w", err)
	}

	if envelope.Order != nil && envelope.Order.ID != 0 {
		return &domain.OrderResult{
			OrderID:     envelope.Order.ID,
			OrderNumber: envelope.Order.OrderNumber,
		}, nil
	}
	if envelope.ID != 0 {
		return &domain.OrderResult{
			OrderID:     envelope.ID,
			OrderNumber: envelope.OrderNumber,
		}, nil
	}

	msg := envelope.Message
	if msg == "" {
		msg = "order creation failed"
	}
	return nil, &APIError{StatusCode: 200, Message: msg}
}

// normalizeSessionResponse accepts the gateway-session shape
// {order_id,key,amount,currency}, with key sometimes sent as key_id.
func normalizeSessionResponse(body []byte) (*domain.GatewaySession, error) {
	var envelope struct {
		OrderID  string `json:"order_id"`
		Key      string `json:"key"`
		KeyID    string `json:"key_id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Success  *bool  `json:"success"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected gateway session response: %w", err)
	}

	if envelope.OrderID == "" {
		msg := envelope.Message
		if msg == "" {
			msg = "gateway session was not created"
		}
		return nil, &APIError{StatusCode: 200, Message: msg}
	}

	key := envelope.Key
	if key == "" {
		key = envelope.KeyID
	}
	currency := envelope.Currency
	if currency == "" {
		currency = "INR"
	}

	return &domain.GatewaySession{
		GatewayOrderID: envelope.OrderID,
		Key:            key,
		Amount:         envelope.Amount,
		Currency:       currency,
	}, nil
}

// normalizeVerifyResponse accepts {status:"success"} or {success:bool};
// anything else is a verification failure carrying the backend's message.
func normalizeVerifyResponse(body []byte) error {
	var envelope struct {
		Status  string `json:"status"`
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("unexpected verify response: %w", err)
	}

	if envelope.Status == "success" {
		return nil
	}
	if envelope.Success != nil && *envelope.Success {
		return nil
	}

	msg := envelope.Message
	if msg == "" {
		msg = "payment verification failed"
	}
	return &APIError{StatusCode: 200, Message: msg}
}

func extractMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return "request failed"
}
