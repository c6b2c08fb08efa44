package debts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/money"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

// Service records and reads supplier debts.
type Service interface {
	RecordDebt(ctx context.Context, input RecordDebtInput) (*models.DebtRecord, error)
	Get(ctx context.Context, sellerID, debtID uuid.UUID) (*models.DebtRecord, error)
	ListBySeller(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the debt service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "debt repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// RecordDebt prices the lines into a pending debt. Recording the same order
// twice returns the first record; a different total for the same order is a
// conflict.
func (s *service) RecordDebt(ctx context.Context, input RecordDebtInput) (*models.DebtRecord, error) {
	debt, err := buildDebt(input)
	if err != nil {
		return nil, err
	}

	stored, created, err := s.repo.CreateIfAbsent(ctx, debt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record debt")
	}
	if !created && stored.TotalAmountCents != debt.TotalAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already recorded with a different total").
			WithDetails(map[string]any{"debt_id": stored.ID, "order_ref": stored.OrderRef})
	}
	if created && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"debt_id":      stored.ID.String(),
			"supplier_id":  stored.SupplierID.String(),
			"amount_cents": stored.TotalAmountCents,
		})
		s.logg.Info(logCtx, "debt recorded")
	}
	return stored, nil
}

func buildDebt(input RecordDebtInput) (*models.DebtRecord, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	if strings.TrimSpace(input.OrderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item required")
	}
	if err := input.Recipient.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recipient")
	}

	items := make(types.LineItems, 0, len(input.Lines))
	for i, line := range input.Lines {
		cents, err := money.ToCents(line.UnitPrice)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d: invalid unit price", i))
		}
		items = append(items, types.LineItem{
			SKU:            strings.TrimSpace(line.SKU),
			ProductRef:     line.ProductRef,
			ProductName:    line.ProductName,
			Color:          line.Color,
			Size:           line.Size,
			ImageURL:       line.ImageURL,
			Quantity:       line.Quantity,
			UnitPriceCents: cents,
		})
	}

	debt := &models.DebtRecord{
		SellerID:         input.SellerID,
		SupplierID:       input.SupplierID,
		OrderRef:         strings.TrimSpace(input.OrderRef),
		ShopRef:          input.ShopRef,
		LineItems:        items,
		Recipient:        input.Recipient,
		TotalAmountCents: items.TotalCents(),
		Status:           enums.DebtStatusPending,
	}
	if err := debt.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid debt")
	}
	return debt, nil
}

func (s *service) Get(ctx context.Context, sellerID, debtID uuid.UUID) (*models.DebtRecord, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	debt, err := s.repo.FindByID(ctx, debtID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load debt")
	}
	if debt == nil || debt.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "debt not found")
	}
	return debt, nil
}

func (s *service) ListBySeller(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	query := listParams{SellerID: params.SellerID, Status: params.Status, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list debts")
	}
	return &ListResult{Items: rows, Cursor: pagination.EncodeCursor(next)}, nil
}
