package infinitypaywebhook

import (
	"encoding/hex"
	"testing"

	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "complete", body: `{"invoice_slug":"abc","order_nsu":"lnk_1","amount":100,"paid_amount":100}`},
		{name: "items ignored", body: `{"invoice_slug":"abc","order_nsu":"lnk_1","paid_amount":100,"items":[{"quantity":1}]}`},
		{name: "zero paid parses", body: `{"invoice_slug":"abc","order_nsu":"lnk_1","amount":100,"paid_amount":0}`},
		{name: "missing paid amount", body: `{"invoice_slug":"abc","order_nsu":"lnk_1","amount":100}`, wantErr: true},
		{name: "missing slug", body: `{"order_nsu":"lnk_1"}`, wantErr: true},
		{name: "blank reference", body: `{"invoice_slug":"abc","order_nsu":"  "}`, wantErr: true},
		{name: "negative amount", body: `{"invoice_slug":"abc","order_nsu":"lnk_1","amount":-1,"paid_amount":0}`, wantErr: true},
		{name: "not json", body: `<xml/>`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tc.body))
			if tc.wantErr {
				if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPayloadConfirmation(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"invoice_slug":"abc","order_nsu":"lnk_1","amount":7990,"paid_amount":7000,"installments":3,"receipt_url":"https://r"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := payload.Confirmation(nil)
	if c.Reference != "lnk_1" || c.PaidAmountCents != 7000 || c.AmountCents != 7990 {
		t.Fatalf("unexpected confirmation %+v", c)
	}
	if c.Receipt.Installments != 3 || c.Receipt.ReceiptURL != "https://r" || c.Receipt.OrderNSU != "lnk_1" {
		t.Fatalf("unexpected receipt %+v", c.Receipt)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"invoice_slug":"abc"}`)
	good := hex.EncodeToString(Sign("secret", body))

	if err := VerifySignature("", body, ""); err != nil {
		t.Fatalf("empty secret should skip verification: %v", err)
	}
	if err := VerifySignature("secret", body, good); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature("secret", []byte(`{"invoice_slug":"abd"}`), good); err == nil {
		t.Fatal("tampered body accepted")
	}
	if err := VerifySignature("secret", body, "zz"); err == nil {
		t.Fatal("non-hex signature accepted")
	}
}
