package payment

import (
	"context"
	"fmt"
	"time"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
)

// Sweeper periodically reconciles payments that are still in status created,
// typically because their webhook was lost or confirmation never became
// terminal.
type Sweeper struct {
	Service  *PaymentService
	Interval time.Duration
	logger   *logger.Logger
}

func NewSweeper(service *PaymentService, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		Service:  service,
		Interval: interval,
		logger:   log,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	sw.logger.Info("SWEEPER", fmt.Sprintf("Pending payment sweeper running every %s", sw.Interval))

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("SWEEPER", "Sweeper stopped")
			return
		case <-ticker.C:
			sw.Sweep(ctx)
		}
	}
}

// Sweep reconciles every locally pending payment once. A failure on one
// payment does not stop the rest; the payment stays created and is picked up
// again on the next tick.
func (sw *Sweeper) Sweep(ctx context.Context) {
	pending, err := sw.Service.DB.GetPaymentsByStatus(ctx, models.StatusCreated)
	if err != nil {
		sw.logger.Error("SWEEPER", fmt.Sprintf("Failed to list pending payments: %v", err))
		return
	}

	if len(pending) == 0 {
		return
	}

	sw.logger.Info("SWEEPER", fmt.Sprintf("Reconciling %d pending payments", len(pending)))

	for _, p := range pending {
		if _, err := sw.Service.UpdatePaymentStatus(ctx, p.PaymentID); err != nil {
			sw.logger.Error("SWEEPER", fmt.Sprintf("Error reconciling payment %s: %v", p.PaymentID, err))
		}
	}
}
