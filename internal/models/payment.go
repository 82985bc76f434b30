package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusCreated   PaymentStatus = "created"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
)

// ErrPaymentNotFound is returned when no local payment matches a Stripe
// payment intent id. It signals a correlation problem and is never masked.
var ErrPaymentNotFound = errors.New("payment not found")

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID        string        `bun:"id,pk" json:"id"`
	PaymentID string        `bun:"payment_id,notnull,unique" json:"payment_id"`
	Status    PaymentStatus `bun:"status,notnull" json:"status"`
	Amount    int64         `bun:"amount,notnull" json:"amount"`
	Currency  string        `bun:"currency,notnull" json:"currency"`
	Name      string        `bun:"name,notnull" json:"name"`
	Email     string        `bun:"email,notnull" json:"email"`
	CreatedAt time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	// ErrorMessage is only populated on failed request paths to report back
	// to the caller. It is never persisted.
	ErrorMessage string `bun:"-" json:"error_message,omitempty"`
}

type PaymentRequest struct {
	PaymentMethodID        string `json:"payment_method_id" validate:"required"`
	Amount                 int64  `json:"amount" validate:"required,min=50"`
	Currency               string `json:"currency" validate:"required,len=3"`
	Name                   string `json:"name" validate:"required"`
	Email                  string `json:"email" validate:"required,email"`
	SimulateWebhookFailure bool   `json:"simulate_webhook_failure"`
}

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

type PaymentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	Payment   *Payment  `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}
