package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// ErrorKind classifies processor failures without exposing Stripe's
// exception hierarchy to callers.
type ErrorKind string

const (
	KindCardDeclined   ErrorKind = "card_declined"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindRateLimited    ErrorKind = "rate_limited"
	KindUnknown        ErrorKind = "unknown"
)

// ProcessorError is the tagged error variant returned for every failed
// Stripe call. Callers consume Kind and DeclineCode, never the underlying
// error's concrete type.
type ProcessorError struct {
	Kind        ErrorKind
	Message     string
	DeclineCode string
	cause       error
}

func (e *ProcessorError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("stripe: %s (decline code: %s)", e.Message, e.DeclineCode)
	}
	return "stripe: " + e.Message
}

func (e *ProcessorError) Unwrap() error {
	return e.cause
}

// WrapStripeError converts any error coming back from the Stripe SDK into a
// ProcessorError. Classification reads *stripe.Error fields only.
func WrapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &ProcessorError{Kind: KindUnknown, Message: err.Error(), cause: err}
	}

	kind := KindUnknown
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		kind = KindCardDeclined
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		kind = KindInvalidRequest
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	}

	msg := stripeErr.Msg
	if msg == "" {
		msg = err.Error()
	}

	return &ProcessorError{
		Kind:        kind,
		Message:     msg,
		DeclineCode: string(stripeErr.DeclineCode),
		cause:       err,
	}
}

// StripeService handles integration with the Stripe payment gateway. The API
// key is owned by this client; nothing sets the SDK-wide global key.
type StripeService struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeService creates a new instance of StripeService
func NewStripeService(apiKey string, log *logger.Logger) (*StripeService, error) {
	if apiKey == "" {
		log.Error("STRIPE", "Stripe secret key is not configured")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(apiKey, nil)

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client: sc,
		log:    log,
	}, nil
}

// CreatePaymentIntent creates a Stripe payment intent for the request. The
// payer email becomes the receipt destination and the simulate flag travels
// as intent metadata for the webhook path to read back.
func (s *StripeService) CreatePaymentIntent(ctx context.Context, req *models.PaymentRequest) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		ReceiptEmail:       stripe.String(req.Email),
		Description:        stripe.String("Payment from " + req.Name),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	params.AddMetadata("simulate_webhook_failure", strconv.FormatBool(req.SimulateWebhookFailure))

	s.log.LogStripe("CREATE", fmt.Sprintf("Creating payment intent for amount %d %s", req.Amount, req.Currency))

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, WrapStripeError(err)
	}

	s.log.LogStripe("CREATE", fmt.Sprintf("Payment intent created: %s", pi.ID))
	return pi, nil
}

// GetPaymentIntent retrieves the current state of a payment intent.
func (s *StripeService) GetPaymentIntent(ctx context.Context, paymentID string) (*stripe.PaymentIntent, error) {
	pi, err := s.client.PaymentIntents.Get(paymentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", paymentID, err))
		return nil, WrapStripeError(err)
	}
	return pi, nil
}

// ConfirmPaymentIntent retrieves the intent and submits confirmation with the
// given payment method. Confirmation runs against the intent's current state
// at Stripe; the caller learns the terminal status through a later retrieve.
func (s *StripeService) ConfirmPaymentIntent(ctx context.Context, paymentID, paymentMethodID string) (*stripe.PaymentIntent, error) {
	if _, err := s.GetPaymentIntent(ctx, paymentID); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentConfirmParams{
		Params:        stripe.Params{Context: ctx},
		PaymentMethod: stripe.String(paymentMethodID),
	}

	s.log.LogStripe("CONFIRM", fmt.Sprintf("Confirming payment intent %s with payment method %s", paymentID, paymentMethodID))

	pi, err := s.client.PaymentIntents.Confirm(paymentID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to confirm payment intent %s: %v", paymentID, err))
		return nil, WrapStripeError(err)
	}

	return pi, nil
}
