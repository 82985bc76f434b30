package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-payments/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandleStripeWebhook verifies and processes a Stripe webhook delivery.
// Only payment_intent.succeeded and payment_intent.payment_failed trigger a
// reconciliation update; everything else is acknowledged and ignored. Stripe
// retries on non-2xx, so an error return here leans on Stripe's redelivery.
func (s *PaymentService) HandleStripeWebhook(r *http.Request) error {
	if s.webhookSecret == "" {
		s.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret, opts)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	switch event.Type {
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
	default:
		s.logger.Info("WEBHOOK", fmt.Sprintf("Ignoring event type: %s", event.Type))
		return nil
	}

	s.logger.LogWebhook(string(event.Type), fmt.Sprintf("Processing event %s", event.ID))

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal payment intent: %v", err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}

	// Test/operational hook: a payment created with simulate_webhook_failure
	// pretends the webhook was lost so the sweeper has to reconcile it. Not
	// an error; the delivery is acknowledged.
	if intent.Metadata["simulate_webhook_failure"] == "true" {
		s.logger.Warn("WEBHOOK", fmt.Sprintf("Webhook failure simulation enabled, skipping update for payment intent: %s", intent.ID))
		return nil
	}

	if s.Deduper != nil {
		first, err := s.Deduper.FirstDelivery(r.Context(), event.ID)
		if err != nil {
			// Fail open: the update is idempotent, a redis hiccup must not
			// block reconciliation.
			s.logger.Warn("WEBHOOK", fmt.Sprintf("Dedupe check failed for event %s, proceeding: %v", event.ID, err))
		} else if !first {
			s.logger.Info("WEBHOOK", fmt.Sprintf("Duplicate delivery of event %s, already processed", event.ID))
			return nil
		}
	}

	if _, err := s.UpdatePaymentStatus(r.Context(), intent.ID); err != nil {
		internal := fmt.Sprintf("Failed to update payment status for intent %s: %v", intent.ID, err)
		if errors.Is(err, models.ErrPaymentNotFound) {
			internal = fmt.Sprintf("No local payment matches intent %s delivered by Stripe: %v", intent.ID, err)
		}
		s.logger.Error("WEBHOOK", internal)
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Error updating payment status",
			InternalError: internal,
			OriginalErr:   err,
		}
	}

	s.logger.LogWebhook(string(event.Type), fmt.Sprintf("Payment %s reconciled", intent.ID))
	return nil
}
