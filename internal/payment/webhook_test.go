package payment_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test"

func signedWebhookRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()

	ts := time.Now()
	sig := stripewebhook.ComputeSignature(ts, payload, secret)
	header := fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	return req
}

func webhookPayload(eventType, intentID string, metadata map[string]string) []byte {
	meta := "{}"
	if len(metadata) > 0 {
		parts := ""
		for k, v := range metadata {
			if parts != "" {
				parts += ","
			}
			parts += fmt.Sprintf("%q:%q", k, v)
		}
		meta = "{" + parts + "}"
	}
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "payment_intent",
				"metadata": %s
			}
		}
	}`, eventType, intentID, meta))
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123", nil)
	req := signedWebhookRequest(t, payload, "whsec_wrong")

	err := svc.HandleStripeWebhook(req)

	var whErr *payment.WebhookError
	assert.True(t, errors.As(err, &whErr))
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
	assert.Equal(t, "Invalid signature", whErr.PublicError)
	mockStripe.AssertNotCalled(t, "GetPaymentIntent", mock.Anything, mock.Anything)
	mockDB.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_MissingSecret(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := payment.NewPaymentService(mockDB, mockStripe, nil, nil, "", logger.NewTestLogger())

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	var whErr *payment.WebhookError
	assert.True(t, errors.As(err, &whErr))
	assert.Equal(t, http.StatusInternalServerError, whErr.StatusCode)
	assert.Equal(t, "configuration", whErr.Category)
}

func TestHandleStripeWebhook_IgnoresUnrecognizedEventType(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	payload := webhookPayload("charge.refunded", "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	assert.NoError(t, err)
	mockStripe.AssertNotCalled(t, "GetPaymentIntent", mock.Anything, mock.Anything)
	mockDB.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_SimulatedFailureSkipsUpdate(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123",
		map[string]string{"simulate_webhook_failure": "true"})
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	// Acknowledged, but nothing changes; the sweeper reconciles it later.
	assert.NoError(t, err)
	mockStripe.AssertNotCalled(t, "GetPaymentIntent", mock.Anything, mock.Anything)
	mockDB.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_SucceededEventUpdatesPayment(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	stored := &models.Payment{ID: "local-1", PaymentID: "pi_123", Status: models.StatusCreated}
	intent := &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}

	mockStripe.On("GetPaymentIntent", mock.Anything, "pi_123").Return(intent, nil)
	mockDB.On("GetPaymentByPaymentID", mock.Anything, "pi_123").Return(stored, nil)
	mockDB.On("UpdatePayment", mock.Anything, stored).Return(nil)

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, stored.Status)
	mockDB.AssertExpectations(t)
}

func TestHandleStripeWebhook_FailedEventUpdatesPayment(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	stored := &models.Payment{ID: "local-1", PaymentID: "pi_123", Status: models.StatusCreated}
	intent := &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}

	mockStripe.On("GetPaymentIntent", mock.Anything, "pi_123").Return(intent, nil)
	mockDB.On("GetPaymentByPaymentID", mock.Anything, "pi_123").Return(stored, nil)
	mockDB.On("UpdatePayment", mock.Anything, stored).Return(nil)

	payload := webhookPayload(payment.EventPaymentIntentFailed, "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestHandleStripeWebhook_UpdateFailure(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	mockStripe.On("GetPaymentIntent", mock.Anything, "pi_123").Return(nil, errors.New("stripe: connection reset"))

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	var whErr *payment.WebhookError
	assert.True(t, errors.As(err, &whErr))
	assert.Equal(t, http.StatusInternalServerError, whErr.StatusCode)
	assert.Equal(t, "Error updating payment status", whErr.PublicError)
}

func TestHandleStripeWebhook_UnknownPaymentIntent(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	svc := newTestService(mockDB, mockStripe)

	intent := &stripe.PaymentIntent{ID: "pi_orphan", Status: stripe.PaymentIntentStatusSucceeded}
	mockStripe.On("GetPaymentIntent", mock.Anything, "pi_orphan").Return(intent, nil)
	mockDB.On("GetPaymentByPaymentID", mock.Anything, "pi_orphan").Return(nil, models.ErrPaymentNotFound)

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_orphan", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	// A delivery for an intent we never created surfaces as an error so
	// Stripe retries; it is never silently swallowed.
	var whErr *payment.WebhookError
	assert.True(t, errors.As(err, &whErr))
	assert.Equal(t, http.StatusInternalServerError, whErr.StatusCode)
	assert.True(t, errors.Is(err, models.ErrPaymentNotFound))
	mockDB.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_DuplicateDelivery(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	mockDeduper := new(MockDeduper)
	svc := payment.NewPaymentService(mockDB, mockStripe, nil, mockDeduper, testWebhookSecret, logger.NewTestLogger())

	mockDeduper.On("FirstDelivery", mock.Anything, "evt_1").Return(false, nil)

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	assert.NoError(t, err)
	mockStripe.AssertNotCalled(t, "GetPaymentIntent", mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_DedupeFailureFailsOpen(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockStripe := new(MockStripeAPI)
	mockDeduper := new(MockDeduper)
	svc := payment.NewPaymentService(mockDB, mockStripe, nil, mockDeduper, testWebhookSecret, logger.NewTestLogger())

	stored := &models.Payment{ID: "local-1", PaymentID: "pi_123", Status: models.StatusCreated}
	intent := &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded}

	mockDeduper.On("FirstDelivery", mock.Anything, "evt_1").Return(false, errors.New("redis: connection refused"))
	mockStripe.On("GetPaymentIntent", mock.Anything, "pi_123").Return(intent, nil)
	mockDB.On("GetPaymentByPaymentID", mock.Anything, "pi_123").Return(stored, nil)
	mockDB.On("UpdatePayment", mock.Anything, stored).Return(nil)

	payload := webhookPayload(payment.EventPaymentIntentSucceeded, "pi_123", nil)
	req := signedWebhookRequest(t, payload, testWebhookSecret)

	err := svc.HandleStripeWebhook(req)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, stored.Status)
}
