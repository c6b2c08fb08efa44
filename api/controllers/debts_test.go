package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

type stubDebtService struct {
	recordFn func(ctx context.Context, input debts.RecordDebtInput) (*models.DebtRecord, error)
	getFn    func(ctx context.Context, sellerID, debtID uuid.UUID) (*models.DebtRecord, error)
	listFn   func(ctx context.Context, params debts.ListParams) (*debts.ListResult, error)
}

func (s *stubDebtService) RecordDebt(ctx context.Context, input debts.RecordDebtInput) (*models.DebtRecord, error) {
	return s.recordFn(ctx, input)
}

func (s *stubDebtService) Get(ctx context.Context, sellerID, debtID uuid.UUID) (*models.DebtRecord, error) {
	return s.getFn(ctx, sellerID, debtID)
}

func (s *stubDebtService) ListBySeller(ctx context.Context, params debts.ListParams) (*debts.ListResult, error) {
	return s.listFn(ctx, params)
}

const recordDebtBody = `{
	"supplier_id": "%s",
	"order_ref": "ORD-1001",
	"recipient": {"recipient_name":"Ana","line1":"Rua A, 1","city":"Sao Paulo","state":"SP","postal_code":"01000-000"},
	"lines": [{"sku":"SKU-CAMISA-P","product_name":"Camiseta","quantity":2,"unit_price":"24.95"}]
}`

func TestRecordDebtConvertsPrices(t *testing.T) {
	sellerID := uuid.New()
	supplierID := uuid.New()
	svc := &stubDebtService{recordFn: func(_ context.Context, input debts.RecordDebtInput) (*models.DebtRecord, error) {
		if input.SellerID != sellerID || input.SupplierID != supplierID {
			t.Fatalf("unexpected ids %+v", input)
		}
		if len(input.Lines) != 1 || input.Lines[0].UnitPrice.String() != "24.95" {
			t.Fatalf("unexpected lines %+v", input.Lines)
		}
		return &models.DebtRecord{
			ID:         uuid.New(),
			SellerID:   input.SellerID,
			SupplierID: input.SupplierID,
			OrderRef:   input.OrderRef,
			LineItems: types.LineItems{{
				SKU: "SKU-CAMISA-P", ProductName: "Camiseta", Quantity: 2, UnitPriceCents: 2495,
			}},
			TotalAmountCents: 4990,
			Status:           enums.DebtStatusPending,
		}, nil
	}}

	req := withSeller(newRequest(http.MethodPost, "/api/v1/debts", fmt.Sprintf(recordDebtBody, supplierID), nil), sellerID.String())
	rec := httptest.NewRecorder()
	RecordDebt(svc, testLogger())(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeData[debtResponse](t, rec)
	if data.TotalAmountCents != 4990 || data.TotalAmount != "49.90" {
		t.Fatalf("unexpected totals %+v", data)
	}
	if data.Status != enums.DebtStatusPending {
		t.Fatalf("unexpected status %s", data.Status)
	}
}

func TestRecordDebtRejectsMissingRecipient(t *testing.T) {
	svc := &stubDebtService{recordFn: func(context.Context, debts.RecordDebtInput) (*models.DebtRecord, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	body := `{"supplier_id":"` + uuid.NewString() + `","order_ref":"ORD-1","recipient":{},"lines":[{"sku":"A","product_name":"B","quantity":1,"unit_price":"1.00"}]}`
	req := withSeller(newRequest(http.MethodPost, "/api/v1/debts", body, nil), uuid.NewString())
	rec := httptest.NewRecorder()
	RecordDebt(svc, nil)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestListDebtsParsesFilters(t *testing.T) {
	sellerID := uuid.New()
	svc := &stubDebtService{listFn: func(_ context.Context, params debts.ListParams) (*debts.ListResult, error) {
		if params.SellerID != sellerID {
			t.Fatalf("unexpected seller %s", params.SellerID)
		}
		if params.Status != enums.DebtStatusAwaitingPayment {
			t.Fatalf("unexpected status %s", params.Status)
		}
		if params.Limit != 5 {
			t.Fatalf("unexpected limit %d", params.Limit)
		}
		return &debts.ListResult{Items: []models.DebtRecord{{ID: uuid.New(), SellerID: sellerID, Status: params.Status}}, Cursor: "next"}, nil
	}}

	req := withSeller(newRequest(http.MethodGet, "/api/v1/debts?status=awaiting_payment&limit=5", "", nil), sellerID.String())
	rec := httptest.NewRecorder()
	ListDebts(svc, nil)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	page := decodeData[pageResponse[debtResponse]](t, rec)
	if len(page.Items) != 1 || page.Cursor != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListDebtsRejectsUnknownStatus(t *testing.T) {
	req := withSeller(newRequest(http.MethodGet, "/api/v1/debts?status=paid", "", nil), uuid.NewString())
	rec := httptest.NewRecorder()
	ListDebts(&stubDebtService{}, nil)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetDebtNotFound(t *testing.T) {
	svc := &stubDebtService{getFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.DebtRecord, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "debt not found")
	}}
	id := uuid.NewString()
	req := withSeller(newRequest(http.MethodGet, "/api/v1/debts/"+id, "", map[string]string{"debtId": id}), uuid.NewString())
	rec := httptest.NewRecorder()
	GetDebt(svc, nil)(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
