package infinitypaywebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/dropship-settlements/internal/reconciliation"
	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-InfinityPay-Signature"

// Payload is the InfinityPay payment callback body. Amounts are in cents.
type Payload struct {
	InvoiceSlug    string          `json:"invoice_slug"`
	Amount         int64           `json:"amount"`
	PaidAmount     *int64          `json:"paid_amount"`
	Installments   int             `json:"installments"`
	CaptureMethod  string          `json:"capture_method"`
	TransactionNSU string          `json:"transaction_nsu"`
	OrderNSU       string          `json:"order_nsu"`
	ReceiptURL     string          `json:"receipt_url"`
	Items          json.RawMessage `json:"items,omitempty"`
}

// ParsePayload decodes body and checks the fields reconciliation keys on.
func ParsePayload(body []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook body")
	}
	payload.InvoiceSlug = strings.TrimSpace(payload.InvoiceSlug)
	payload.OrderNSU = strings.TrimSpace(payload.OrderNSU)

	missing := []string{}
	if payload.InvoiceSlug == "" {
		missing = append(missing, "invoice_slug")
	}
	if payload.OrderNSU == "" {
		missing = append(missing, "order_nsu")
	}
	if payload.PaidAmount == nil {
		missing = append(missing, "paid_amount")
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}
	if payload.Amount < 0 || *payload.PaidAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook amounts must be non-negative")
	}
	return &payload, nil
}

// Confirmation maps the callback onto the reconciler input.
func (p Payload) Confirmation(raw json.RawMessage) reconciliation.Confirmation {
	return reconciliation.Confirmation{
		InvoiceSlug:     p.InvoiceSlug,
		Reference:       p.OrderNSU,
		AmountCents:     p.Amount,
		PaidAmountCents: p.paid(),
		Receipt: shipments.Receipt{
			Installments:  p.Installments,
			CaptureMethod: p.CaptureMethod,
			TransactionID: p.TransactionNSU,
			ReceiptURL:    p.ReceiptURL,
			OrderNSU:      p.OrderNSU,
		},
		Payload: raw,
	}
}

func (p Payload) paid() int64 {
	if p.PaidAmount == nil {
		return 0
	}
	return *p.PaidAmount
}

// VerifySignature checks signature against body. An empty secret disables
// the check.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	if !hmac.Equal(provided, Sign(secret, body)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
