package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	"github.com/angelmondragon/dropship-settlements/api/validators"
	"github.com/angelmondragon/dropship-settlements/internal/settlements"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

// SettlementLinkService is the aggregation surface used by the link endpoints.
type SettlementLinkService interface {
	CreateSettlementLink(ctx context.Context, sellerID uuid.UUID, debtIDs []uuid.UUID) (*settlements.LinkResult, error)
	Get(ctx context.Context, sellerID, linkID uuid.UUID) (*models.SettlementLink, error)
}

type createLinkRequest struct {
	DebtIDs []string `json:"debt_ids" validate:"required,min=1,dive,uuid"`
}

type createLinkResponse struct {
	Link               linkResponse `json:"link"`
	AwaitingPaymentIDs []uuid.UUID  `json:"awaiting_payment_ids"`
	FailedIDs          []uuid.UUID  `json:"failed_ids,omitempty"`
}

// CreateSettlementLink aggregates the seller's debts into one checkout link.
func CreateSettlementLink(svc SettlementLinkService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		sellerID, err := sellerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createLinkRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		debtIDs := make([]uuid.UUID, 0, len(req.DebtIDs))
		for _, raw := range req.DebtIDs {
			debtIDs = append(debtIDs, uuid.MustParse(raw))
		}

		result, err := svc.CreateSettlementLink(r.Context(), sellerID, debtIDs)
		if err != nil {
			annotatePartial(err, result)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createLinkResponse{
			Link:               toLinkResponse(result.Link),
			AwaitingPaymentIDs: result.AwaitingPaymentIDs,
			FailedIDs:          result.FailedIDs,
		})
	}
}

// annotatePartial exposes the surviving checkout on a partial aggregation so
// callers can still collect payment for the debts that made it in.
func annotatePartial(err error, result *settlements.LinkResult) {
	if result == nil || result.Link == nil || !pkgerrors.IsCode(err, pkgerrors.CodePartialAggregation) {
		return
	}
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok {
		return
	}
	details["link_status"] = result.Link.Status
	if result.Link.Status == enums.SettlementLinkStatusPending {
		details["checkout_url"] = result.Link.CheckoutURL
	}
}

func GetSettlementLink(svc SettlementLinkService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		sellerID, err := sellerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		linkID, err := validators.ParseUUIDParam(r, "linkId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.Get(r.Context(), sellerID, linkID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toLinkResponse(link))
	}
}
