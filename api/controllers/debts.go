package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-settlements/api/middleware"
	"github.com/angelmondragon/dropship-settlements/api/responses"
	"github.com/angelmondragon/dropship-settlements/api/validators"
	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

type recordDebtLine struct {
	SKU         string          `json:"sku" validate:"required,sku"`
	ProductRef  string          `json:"product_ref"`
	ProductName string          `json:"product_name" validate:"required"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
	ImageURL    string          `json:"image_url"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type recordDebtRequest struct {
	SupplierID string           `json:"supplier_id" validate:"required,uuid"`
	OrderRef   string           `json:"order_ref" validate:"required"`
	ShopRef    string           `json:"shop_ref"`
	Recipient  types.Address    `json:"recipient"`
	Lines      []recordDebtLine `json:"lines" validate:"required,min=1,dive"`
}

// RecordDebt prices an order's supplier lines into a pending debt.
func RecordDebt(svc debts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "debt service unavailable"))
			return
		}
		sellerID, err := sellerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordDebtRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := debts.RecordDebtInput{
			SellerID:   sellerID,
			SupplierID: uuid.MustParse(req.SupplierID),
			OrderRef:   validators.SanitizeString(req.OrderRef, 128),
			ShopRef:    validators.SanitizeString(req.ShopRef, 128),
			Recipient:  req.Recipient,
			Lines:      make([]debts.LineInput, 0, len(req.Lines)),
		}
		for _, line := range req.Lines {
			input.Lines = append(input.Lines, debts.LineInput{
				SKU:         line.SKU,
				ProductRef:  line.ProductRef,
				ProductName: validators.SanitizeString(line.ProductName, 255),
				Color:       line.Color,
				Size:        line.Size,
				ImageURL:    line.ImageURL,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
			})
		}

		debt, err := svc.RecordDebt(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toDebtResponse(debt))
	}
}

// ListDebts returns the seller's debts, optionally filtered by status.
func ListDebts(svc debts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "debt service unavailable"))
			return
		}
		sellerID, err := sellerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := debts.ListParams{SellerID: sellerID, Params: page}
		if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
			parsed, err := enums.ParseDebtStatus(status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = parsed
		}

		result, err := svc.ListBySeller(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(result.Items, result.Cursor, toDebtResponse))
	}
}

func GetDebt(svc debts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "debt service unavailable"))
			return
		}
		sellerID, err := sellerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		debtID, err := validators.ParseUUIDParam(r, "debtId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		debt, err := svc.Get(r.Context(), sellerID, debtID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDebtResponse(debt))
	}
}

func sellerFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.SellerIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id")
	}
	return id, nil
}
