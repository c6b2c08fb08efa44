package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	"github.com/angelmondragon/dropship-settlements/api/validators"
	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
)

// ShipmentService exposes the supplier-facing shipment reads and transitions.
type ShipmentService interface {
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*shipments.ListResult, error)
	MarkShipped(ctx context.Context, supplierID, shipmentID uuid.UUID) (*models.ShipmentArtifact, error)
}

// PayoutAccountStore persists supplier InfinityPay handles.
type PayoutAccountStore interface {
	UpsertPayoutAccount(ctx context.Context, supplierID uuid.UUID, handle string) (*models.SupplierPayoutAccount, error)
}

type payoutAccountRequest struct {
	InfinityPayHandle string `json:"infinitypay_handle" validate:"required,max=64"`
}

type payoutAccountResponse struct {
	SupplierID        uuid.UUID `json:"supplier_id"`
	InfinityPayHandle string    `json:"infinitypay_handle"`
}

func ListSupplierShipments(svc ShipmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipment service unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListBySupplier(r.Context(), supplierID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(result.Items, result.Cursor, toShipmentResponse))
	}
}

// MarkShipmentShipped records that the supplier handed the parcels to a carrier.
func MarkShipmentShipped(svc ShipmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipment service unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(r, "shipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		artifact, err := svc.MarkShipped(r.Context(), supplierID, shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toShipmentResponse(artifact))
	}
}

func UpsertPayoutAccount(store PayoutAccountStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "supplier store unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req payoutAccountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := store.UpsertPayoutAccount(r.Context(), supplierID, validators.SanitizeString(req.InfinityPayHandle, 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert payout account"))
			return
		}
		responses.WriteSuccess(w, payoutAccountResponse{SupplierID: account.SupplierID, InfinityPayHandle: account.InfinityPayHandle})
	}
}
