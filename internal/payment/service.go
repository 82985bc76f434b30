package payment

import (
	"context"
	"fmt"
	"time"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

type DBLayer interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentsByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
}

type StripeAPI interface {
	CreatePaymentIntent(ctx context.Context, req *models.PaymentRequest) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, paymentID string) (*stripe.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, paymentID, paymentMethodID string) (*stripe.PaymentIntent, error)
}

type KafkaPublisher interface {
	PublishPaymentEvent(event models.PaymentEvent) error
}

type WebhookDeduper interface {
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
}

type PaymentService struct {
	DB      DBLayer
	Stripe  StripeAPI
	Kafka   KafkaPublisher // optional, nil when the event stream is disabled
	Deduper WebhookDeduper // optional, nil when redis is disabled

	webhookSecret string
	logger        *logger.Logger
}

func NewPaymentService(db DBLayer, stripeAPI StripeAPI, kafka KafkaPublisher, deduper WebhookDeduper, webhookSecret string, log *logger.Logger) *PaymentService {
	return &PaymentService{
		DB:            db,
		Stripe:        stripeAPI,
		Kafka:         kafka,
		Deduper:       deduper,
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

// CreatePayment requests a payment intent from Stripe and persists the local
// record with status created. If the Stripe call fails nothing is persisted;
// a Payment never exists without a processor-assigned id.
func (s *PaymentService) CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.Payment, error) {
	s.logger.Info("PAYMENT", fmt.Sprintf("Creating payment intent with payment method id %s for amount: %d %s",
		req.PaymentMethodID, req.Amount, req.Currency))

	intent, err := s.Stripe.CreatePaymentIntent(ctx, req)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:        uuid.NewString(),
		PaymentID: intent.ID,
		Status:    models.StatusCreated,
		Amount:    intent.Amount,
		Currency:  string(intent.Currency),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now(),
	}

	if err := s.DB.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to save payment %s: %w", intent.ID, err)
	}

	s.logger.Info("PAYMENT", fmt.Sprintf("Payment saved: %s with amount %d %s",
		payment.PaymentID, payment.Amount, payment.Currency))

	return payment, nil
}

// ConfirmPayment submits confirmation for the intent. It does not touch the
// local record: confirmation at Stripe is not necessarily terminal, and the
// authoritative status is always pulled later through UpdatePaymentStatus,
// the webhook, or the sweeper.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID, paymentMethodID string) error {
	s.logger.Info("PAYMENT", fmt.Sprintf("Confirming payment %s with payment method %s", paymentID, paymentMethodID))

	if _, err := s.Stripe.ConfirmPaymentIntent(ctx, paymentID, paymentMethodID); err != nil {
		return err
	}
	return nil
}

// UpdatePaymentStatus is the single convergence point for the confirmation
// follow-up, the webhook and the sweeper. It pulls the authoritative intent
// state from Stripe, classifies it, and writes the result back. It never
// creates a record: an unknown payment id is a correlation bug and surfaces
// as ErrPaymentNotFound.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	s.logger.Info("PAYMENT", fmt.Sprintf("Updating payment status for %s", paymentID))

	intent, err := s.Stripe.GetPaymentIntent(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	payment, err := s.DB.GetPaymentByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	previous := payment.Status
	payment.Status = classifyIntentStatus(intent.Status)

	if err := s.DB.UpdatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment %s: %w", paymentID, err)
	}

	if previous == models.StatusCreated && payment.Status != models.StatusCreated {
		s.publishStatusEvent(payment)
	}

	return payment, nil
}

// GetPaymentStatus reads the local record. It never calls Stripe.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.DB.GetPaymentByPaymentID(ctx, paymentID)
}

// classifyIntentStatus collapses the Stripe intent lifecycle into the local
// two-valued terminal model: only "succeeded" counts as succeeded, every
// other raw status (including intermediate ones such as "processing") is
// recorded as failed.
func classifyIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	if status == stripe.PaymentIntentStatusSucceeded {
		return models.StatusSucceeded
	}
	return models.StatusFailed
}

func (s *PaymentService) publishStatusEvent(payment *models.Payment) {
	if s.Kafka == nil {
		return
	}

	eventType := models.EventPaymentFailed
	if payment.Status == models.StatusSucceeded {
		eventType = models.EventPaymentSucceeded
	}

	event := models.PaymentEvent{
		Type:      eventType,
		PaymentID: payment.PaymentID,
		Payment:   payment,
		Timestamp: time.Now(),
	}

	if err := s.Kafka.PublishPaymentEvent(event); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event for payment %s: %v", eventType, payment.PaymentID, err))
		return
	}
	s.logger.LogKafka("PUBLISH", eventType, fmt.Sprintf("payment %s", payment.PaymentID))
}
