package deadletters

import (
	"context"
	"encoding/json"
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

const maxErrorMessageLen = 1024

// Entry describes a confirmation that cannot be applied automatically.
type Entry struct {
	Reason      enums.DeadLetterReason
	InvoiceSlug string
	Reference   string
	LinkID      *uuid.UUID
	Payload     json.RawMessage
	Err         error
}

// ListParams filters the operator queue.
type ListParams struct {
	UnresolvedOnly bool
	pagination.Params
}

// ListResult wraps a page of dead letters.
type ListResult struct {
	Items  []models.SettlementDeadLetter `json:"items"`
	Cursor string                        `json:"cursor"`
}

// Service is the operator queue for unmatched or unpayable confirmations.
type Service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
}

// NewService builds the dead-letter service. m may be nil.
func NewService(repo Repository, logg *logger.Logger, m *metrics.SettlementMetrics) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dead letter repository required")
	}
	return &Service{repo: repo, logg: logg, metrics: m}, nil
}

// Record parks entry once per (invoice slug, reason).
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if !entry.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid dead letter reason")
	}
	if strings.TrimSpace(entry.InvoiceSlug) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice slug required")
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	letter := &models.SettlementDeadLetter{
		Reason:           entry.Reason,
		InvoiceSlug:      entry.InvoiceSlug,
		Reference:        entry.Reference,
		SettlementLinkID: entry.LinkID,
		Payload:          payload,
		ErrorMessage:     truncate(errorText(entry.Err)),
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, letter)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record dead letter")
	}
	if !inserted {
		return nil
	}
	s.metrics.IncDeadLetter(string(entry.Reason))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"invoice_slug": entry.InvoiceSlug,
			"reason":       entry.Reason,
			"reference":    entry.Reference,
		})
		s.logg.Warn(logCtx, "settlement confirmation dead-lettered")
	}
	return nil
}

func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, params.UnresolvedOnly, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	return &ListResult{Items: rows, Cursor: pagination.EncodeCursor(next)}, nil
}

// Resolve closes a dead letter with an operator note.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, note string) (*models.SettlementDeadLetter, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution note required")
	}
	resolved, err := s.repo.Resolve(ctx, id, note, time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve dead letter")
	}
	letter, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter")
	}
	if letter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	}
	if !resolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "dead letter already resolved")
	}
	return letter, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(message string) string {
	if len(message) <= maxErrorMessageLen {
		return message
	}
	return message[:maxErrorMessageLen]
}
