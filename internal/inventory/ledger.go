package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
)

// movementNamespace seeds the derived movement ids.
var movementNamespace = uuid.MustParse("5b0e2c57-5a1f-4c8e-9f4b-3d2a6c1e7a90")

// MovementID derives the stable key for (causeRef, sku).
func MovementID(causeRef, sku string) uuid.UUID {
	return uuid.NewSHA1(movementNamespace, []byte("movement|"+causeRef+"|"+sku))
}

// AppendInput describes one signed stock change.
type AppendInput struct {
	SKU           string
	SupplierID    uuid.UUID
	ProductRef    string
	QuantityDelta int64
	Operation     enums.StockOperation
	CauseRef      string
	OccurredAt    time.Time
}

// RestockInput adds supplier stock under a caller-chosen reference.
type RestockInput struct {
	SKU        string
	SupplierID uuid.UUID
	ProductRef string
	Quantity   int64
	Reference  string
}

// Ledger is the append-only stock log. On-hand stock is always derived.
type Ledger struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
}

// NewLedger wires a Ledger. m may be nil.
func NewLedger(repo Repository, logg *logger.Logger, m *metrics.SettlementMetrics) (*Ledger, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "movement repository required")
	}
	return &Ledger{repo: repo, logg: logg, metrics: m}, nil
}

// Append records the movement once per (causeRef, sku). A repeated append
// returns the stored row and leaves the ledger unchanged.
func (l *Ledger) Append(ctx context.Context, input AppendInput) (*models.StockMovement, error) {
	sku := strings.TrimSpace(input.SKU)
	causeRef := strings.TrimSpace(input.CauseRef)
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	movement := &models.StockMovement{
		ID:            MovementID(causeRef, sku),
		SKU:           sku,
		SupplierID:    input.SupplierID,
		ProductRef:    input.ProductRef,
		QuantityDelta: input.QuantityDelta,
		Operation:     input.Operation,
		CauseRef:      causeRef,
		OccurredAt:    occurredAt,
	}
	if err := movement.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stock movement")
	}

	inserted, err := l.repo.InsertIfAbsent(ctx, movement)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movement")
	}
	if !inserted {
		stored, err := l.repo.FindByID(ctx, movement.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read back stock movement")
		}
		if stored == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock movement conflict without stored row")
		}
		return stored, nil
	}

	l.metrics.IncMovement(string(movement.Operation))
	if l.logg != nil {
		logCtx := l.logg.WithFields(ctx, map[string]any{
			"sku":       movement.SKU,
			"delta":     movement.QuantityDelta,
			"cause_ref": movement.CauseRef,
		})
		l.logg.Info(logCtx, "stock movement appended")
	}
	return movement, nil
}

// SumMovements returns the on-hand quantity for sku.
func (l *Ledger) SumMovements(ctx context.Context, sku string) (int64, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	total, err := l.repo.SumBySKU(ctx, sku)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum stock movements")
	}
	return total, nil
}

// ListMovements returns the newest movements for sku.
func (l *Ledger) ListMovements(ctx context.Context, sku string, limit int) ([]models.StockMovement, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	rows, err := l.repo.ListBySKU(ctx, sku, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return rows, nil
}

// Restock appends an add movement keyed by the restock reference.
func (l *Ledger) Restock(ctx context.Context, input RestockInput) (*models.StockMovement, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}
	if strings.TrimSpace(input.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock reference required")
	}
	return l.Append(ctx, AppendInput{
		SKU:           input.SKU,
		SupplierID:    input.SupplierID,
		ProductRef:    input.ProductRef,
		QuantityDelta: input.Quantity,
		Operation:     enums.StockOperationAdd,
		CauseRef:      "restock:" + strings.TrimSpace(input.Reference),
	})
}
