package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopkart/checkout-service/domain"
)

func testStaged() *domain.StagedCheckout {
	return &domain.StagedCheckout{
		Items: []domain.CheckoutItem{{ProductID: 7, Quantity: 2}},
		Address: domain.Address{
			Name:    "A",
			Phone:   "9999999999",
			Pincode: "100001",
			Address: "X",
			City:    "Y",
			State:   "Z",
		},
		PaymentMethod:  domain.MethodCOD,
		CheckoutType:   domain.CheckoutCart,
		IdempotencyKey: "idem-abc",
	}
}

func TestCreateOrder_CartEndpointAndBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "idem-abc", r.Header.Get("Idempotency-Key"))
		w.Write([]byte(`{"order":{"id":1,"order_number":"ORD-1"}}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	result, err := client.CreateOrder(context.Background(), testStaged())

	require.NoError(t, err)
	assert.Equal(t, "/checkout/cart", gotPath)
	assert.Equal(t, int64(1), result.OrderID)
	assert.Equal(t, "ORD-1", result.OrderNumber)
	assert.Equal(t, "A", gotBody["full_name"])
	assert.Equal(t, "cod", gotBody["payment_method"])
	items, ok := gotBody["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestCreateOrder_BuyNowUsesSingleEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"order":{"id":2,"order_number":"ORD-2"}}`))
	}))
	defer server.Close()

	staged := testStaged()
	staged.CheckoutType = domain.CheckoutBuyNow

	client := New(server.URL, 5*time.Second)
	_, err := client.CreateOrder(context.Background(), staged)

	require.NoError(t, err)
	assert.Equal(t, "/checkout/single", gotPath)
	assert.Equal(t, float64(7), gotBody["product_id"])
	assert.Equal(t, float64(2), gotBody["quantity"])
	assert.Nil(t, gotBody["items"])
}

func TestCreateOrder_TopLevelOrderShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":9,"order_number":"ORD-9"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	result, err := client.CreateOrder(context.Background(), testStaged())

	require.NoError(t, err)
	assert.Equal(t, int64(9), result.OrderID)
	assert.Equal(t, "ORD-9", result.OrderNumber)
}

func TestCreateOrder_SuccessFalseUnder200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"out of stock"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	result, err := client.CreateOrder(context.Background(), testStaged())

	assert.Nil(t, result)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "out of stock", apiErr.Message)
}

func TestCreateOrder_ServerErrorWithMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"address invalid"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	_, err := client.CreateOrder(context.Background(), testStaged())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "address invalid", apiErr.Message)
}

func TestMintSession_NormalizesKeyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/razorpay/order", r.URL.Path)
		w.Write([]byte(`{"order_id":"gw_5","key_id":"k","amount":1000,"currency":"INR"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	session, err := client.MintSession(context.Background(), &domain.OrderResult{OrderID: 5}, nil)

	require.NoError(t, err)
	assert.Equal(t, "gw_5", session.GatewayOrderID)
	assert.Equal(t, "k", session.Key)
	assert.Equal(t, int64(1000), session.Amount)
	assert.Equal(t, "INR", session.Currency)
}

func TestMintSession_BackendCannotMint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"gateway unavailable"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	session, err := client.MintSession(context.Background(), &domain.OrderResult{OrderID: 5}, nil)

	assert.Nil(t, session)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "gateway unavailable", apiErr.Message)
}

func TestVerifyPayment_StatusShape(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/razorpay/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	completion := &domain.PaymentCompletion{
		GatewayOrderID:   "gw_5",
		GatewayPaymentID: "p1",
		GatewaySignature: "s1",
	}
	err := client.VerifyPayment(context.Background(), 5, completion, "idem-abc")

	require.NoError(t, err)
	assert.Equal(t, float64(5), gotBody["local_order_id"])
	assert.Equal(t, "gw_5", gotBody["razorpay_order_id"])
	assert.Equal(t, "p1", gotBody["razorpay_payment_id"])
	assert.Equal(t, "s1", gotBody["razorpay_signature"])
}

func TestVerifyPayment_SuccessBoolShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	err := client.VerifyPayment(context.Background(), 5, &domain.PaymentCompletion{}, "")
	assert.NoError(t, err)
}

func TestVerifyPayment_SignatureMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"signature mismatch"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	err := client.VerifyPayment(context.Background(), 5, &domain.PaymentCompletion{}, "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "signature mismatch", apiErr.Message)
}

func TestBreaker_OpensAfterConsecutiveTransportFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order":{"id":1,"order_number":"ORD-1"}}`))
	}))
	server.Close() // connection refused from the start

	client := New(server.URL, time.Second)
	for i := 0; i < 6; i++ {
		_, err := client.CreateOrder(context.Background(), testStaged())
		require.Error(t, err)
	}

	// breaker is open now, no request is attempted
	_, err := client.CreateOrder(context.Background(), testStaged())
	assert.Error(t, err)
}

func TestBreaker_IgnoresExplainedRejections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"duplicate order"}`))
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	for i := 0; i < 10; i++ {
		_, err := client.CreateOrder(context.Background(), testStaged())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr, "breaker must stay closed on 4xx")
	}
}
