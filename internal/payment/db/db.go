package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-payments/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- PAYMENTS ----------------

// CreatePayment → insert new payment record
func (d *DB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := d.Bun.NewInsert().Model(payment).Exec(ctx)
	return err
}

// GetPaymentByPaymentID → fetch one payment by its Stripe payment intent id
func (d *DB) GetPaymentByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("payment_id = ?", paymentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdatePayment → write back the classified status
func (d *DB) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(payment).
		Column("status", "updated_at").
		Where("payment_id = ?", payment.PaymentID).
		Exec(ctx)
	return err
}

// GetPaymentsByStatus → fetch all payments currently in the given status
func (d *DB) GetPaymentsByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	var payments []models.Payment
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("status = ?", status).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payments, nil
}
