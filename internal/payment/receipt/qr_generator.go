package receipt

import (
	"fmt"
	"strings"

	"ms-payments/internal/models"

	"github.com/skip2/go-qrcode"
)

type QRGenerator struct {
	baseURL string
}

func NewQRGenerator(baseURL string) *QRGenerator {
	return &QRGenerator{baseURL: strings.TrimRight(baseURL, "/")}
}

// GenerateReceiptQR encodes the canonical status URL of a payment as a PNG
// QR code so the payer can re-check the outcome from a printed receipt.
func (q *QRGenerator) GenerateReceiptQR(payment *models.Payment) ([]byte, error) {
	url := fmt.Sprintf("%s/api/payments/status/%s", q.baseURL, payment.PaymentID)
	return qrcode.Encode(url, qrcode.Medium, 256)
}
