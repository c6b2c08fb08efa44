package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	"github.com/angelmondragon/dropship-settlements/api/validators"
	"github.com/angelmondragon/dropship-settlements/internal/inventory"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
)

// InventoryLedger is the kardex surface.
type InventoryLedger interface {
	SumMovements(ctx context.Context, sku string) (int64, error)
	ListMovements(ctx context.Context, sku string, limit int) ([]models.StockMovement, error)
	Restock(ctx context.Context, input inventory.RestockInput) (*models.StockMovement, error)
}

type restockRequest struct {
	SupplierID string `json:"supplier_id" validate:"required,uuid"`
	ProductRef string `json:"product_ref"`
	Quantity   int64  `json:"quantity" validate:"gt=0"`
	Reference  string `json:"reference" validate:"required"`
}

type stockResponse struct {
	SKU     string `json:"sku"`
	OnHand  int64  `json:"on_hand"`
	Derived bool   `json:"derived"`
}

func ListStockMovements(ledger InventoryLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger unavailable"))
			return
		}
		sku, err := skuParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := ledger.ListMovements(r.Context(), sku, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(rows, "", toMovementResponse))
	}
}

// GetStock returns on-hand stock as the sum of the SKU's movements.
func GetStock(ledger InventoryLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger unavailable"))
			return
		}
		sku, err := skuParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		total, err := ledger.SumMovements(r.Context(), sku)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stockResponse{SKU: sku, OnHand: total, Derived: true})
	}
}

func RestockSKU(ledger InventoryLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger unavailable"))
			return
		}
		sku, err := skuParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movement, err := ledger.Restock(r.Context(), inventory.RestockInput{
			SKU:        sku,
			SupplierID: uuid.MustParse(req.SupplierID),
			ProductRef: req.ProductRef,
			Quantity:   req.Quantity,
			Reference:  validators.SanitizeString(req.Reference, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toMovementResponse(movement))
	}
}

func skuParam(r *http.Request) (string, error) {
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sku required").WithDetails(map[string]any{"field": "sku"})
	}
	return sku, nil
}
