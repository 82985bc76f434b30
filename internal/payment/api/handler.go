package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/payment"
	"ms-payments/internal/payment/receipt"
	"ms-payments/internal/payment/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// PaymentAPI is the slice of the payment service consumed by the HTTP layer.
type PaymentAPI interface {
	CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID, paymentMethodID string) error
	GetPaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error)
	HandleStripeWebhook(r *http.Request) error
}

type Handler struct {
	Service   PaymentAPI
	QR        *receipt.QRGenerator
	MinAmount int64
	Logger    *logger.Logger

	validate *validator.Validate
}

func NewHandler(service PaymentAPI, qr *receipt.QRGenerator, minAmount int64, log *logger.Logger) *Handler {
	return &Handler{
		Service:   service,
		QR:        qr,
		MinAmount: minAmount,
		Logger:    log,
		validate:  validator.New(),
	}
}

func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/api/payments", h.CreatePaymentAndConfirm)
	r.Get("/api/payments/status/{paymentId}", h.GetPaymentStatus)
	r.Get("/api/payments/status/{paymentId}/receipt", h.GetPaymentReceiptQR)
	r.Post("/api/webhook", h.HandleWebhook)
	r.Get("/health", h.Health)

	return r
}

// CreatePaymentAndConfirm creates a payment intent, persists the local record
// and immediately attempts confirmation. The terminal status is learned
// asynchronously through the webhook or the sweeper.
func (h *Handler) CreatePaymentAndConfirm(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFailedPayment(w, http.StatusBadRequest, nil, &req, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.writeFailedPayment(w, http.StatusBadRequest, nil, &req, err.Error())
		return
	}

	if req.Amount < h.MinAmount {
		h.writeFailedPayment(w, http.StatusBadRequest, nil, &req,
			fmt.Sprintf("Amount should be at least %d cents", h.MinAmount))
		return
	}

	p, err := h.Service.CreatePayment(r.Context(), &req)
	if err != nil {
		status, msg := classifyServiceError(err)
		h.Logger.Error("API", fmt.Sprintf("Payment creation failed: %v", err))
		h.writeFailedPayment(w, status, nil, &req, msg)
		return
	}

	if err := h.Service.ConfirmPayment(r.Context(), p.PaymentID, req.PaymentMethodID); err != nil {
		status, msg := classifyServiceError(err)
		h.Logger.Error("API", fmt.Sprintf("Payment confirmation failed for %s: %v", p.PaymentID, err))
		h.writeFailedPayment(w, status, p, &req, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, p)
}

// GetPaymentStatus returns the locally persisted record. An unknown id gets
// a deliberately generic message so no internal detail leaks.
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.Service.GetPaymentStatus(r.Context(), paymentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrPaymentNotFound) {
			status = http.StatusNotFound
		}
		h.Logger.Error("API", fmt.Sprintf("Status lookup failed for %s: %v", paymentID, err))
		h.writeJSON(w, status, &models.Payment{
			Status:       models.StatusFailed,
			ErrorMessage: "An unexpected error occurred.",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// GetPaymentReceiptQR serves a PNG QR code pointing at the payment's status
// URL. Only succeeded payments have a receipt.
func (h *Handler) GetPaymentReceiptQR(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.Service.GetPaymentStatus(r.Context(), paymentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrPaymentNotFound) {
			status = http.StatusNotFound
		}
		h.writeJSON(w, status, &models.Payment{
			Status:       models.StatusFailed,
			ErrorMessage: "An unexpected error occurred.",
		})
		return
	}

	if p.Status != models.StatusSucceeded {
		h.writeJSON(w, http.StatusConflict, &models.Payment{
			Status:       models.StatusFailed,
			ErrorMessage: "Receipt is only available for succeeded payments.",
		})
		return
	}

	png, err := h.QR.GenerateReceiptQR(p)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Receipt QR generation failed for %s: %v", paymentID, err))
		h.writeJSON(w, http.StatusInternalServerError, &models.Payment{
			Status:       models.StatusFailed,
			ErrorMessage: "An unexpected error occurred.",
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// HandleWebhook maps webhook ingestion outcomes onto transport responses.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleStripeWebhook(r); err != nil {
		var whErr *payment.WebhookError
		if errors.As(err, &whErr) {
			w.WriteHeader(whErr.StatusCode)
			w.Write([]byte(whErr.PublicError))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Unexpected webhook error: %v", err))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Error updating payment status"))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// classifyServiceError maps a service failure onto a transport status. A
// ProcessorError means Stripe rejected the operation (bad request territory);
// anything else is unexpected.
func classifyServiceError(err error) (int, string) {
	var procErr *services.ProcessorError
	if errors.As(err, &procErr) {
		return http.StatusBadRequest, procErr.Message
	}
	return http.StatusInternalServerError, err.Error()
}

// writeFailedPayment echoes the request back as a failed payment body with
// the error message attached, mirroring what the caller tried to do.
func (h *Handler) writeFailedPayment(w http.ResponseWriter, statusCode int, p *models.Payment, req *models.PaymentRequest, message string) {
	out := &models.Payment{
		Status:       models.StatusFailed,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Name:         req.Name,
		Email:        req.Email,
		ErrorMessage: message,
	}
	if p != nil {
		out.ID = p.ID
		out.PaymentID = p.PaymentID
	}
	h.writeJSON(w, statusCode, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
