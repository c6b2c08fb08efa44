package infinitypaywebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/dropship-settlements/internal/deadletters"
	"github.com/angelmondragon/dropship-settlements/internal/reconciliation"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
)

type confirmationHandler interface {
	HandleConfirmation(ctx context.Context, c reconciliation.Confirmation) (*reconciliation.SettlementOutcome, error)
}

type deadLetterRecorder interface {
	Record(ctx context.Context, entry deadletters.Entry) error
}

type ServiceParams struct {
	Inbox         InboxRepository
	Reconciler    confirmationHandler
	DeadLetters   deadLetterRecorder
	Guard         *IdempotencyGuard
	SigningSecret string
	Logger        *logger.Logger
	Metrics       *metrics.SettlementMetrics
	Clock         func() time.Time
}

// Service accepts InfinityPay callbacks into the inbox and drives them
// through reconciliation.
type Service struct {
	inbox       InboxRepository
	reconciler  confirmationHandler
	deadLetters deadLetterRecorder
	guard       *IdempotencyGuard
	secret      string
	logg        *logger.Logger
	metrics     *metrics.SettlementMetrics
	now         func() time.Time
}

// Result is the webhook acknowledgement body.
type Result struct {
	InvoiceSlug string                            `json:"invoice_slug"`
	Status      enums.ConfirmationStatus          `json:"status"`
	Duplicate   bool                              `json:"duplicate"`
	Outcome     *reconciliation.SettlementOutcome `json:"outcome,omitempty"`
}

// ReplayStats summarises one replay pass.
type ReplayStats struct {
	Scanned      int
	Processed    int
	DeadLettered int
	Failed       int
}

// NewService builds the InfinityPay webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Inbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inbox repo required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.DeadLetters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dead letter recorder required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		inbox:       params.Inbox,
		reconciler:  params.Reconciler,
		deadLetters: params.DeadLetters,
		guard:       params.Guard,
		secret:      params.SigningSecret,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// HandleWebhook verifies and records body, then processes it. Once the inbox
// row exists the call succeeds; transient processing failures are left for
// the replay job.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	if err := VerifySignature(s.secret, body, signature); err != nil {
		return nil, err
	}
	payload, err := ParsePayload(body)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "invoice_slug", payload.InvoiceSlug)
	}

	row, inserted, err := s.inbox.InsertIfAbsent(ctx, &models.PaymentConfirmation{
		InvoiceSlug:     payload.InvoiceSlug,
		Reference:       payload.OrderNSU,
		AmountCents:     payload.Amount,
		PaidAmountCents: payload.paid(),
		Payload:         json.RawMessage(body),
		Status:          enums.ConfirmationStatusReceived,
		ReceivedAt:      s.now(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record confirmation")
	}
	result := &Result{InvoiceSlug: row.InvoiceSlug, Status: row.Status, Duplicate: !inserted}
	if row.Status != enums.ConfirmationStatusReceived {
		result.Outcome = decodeOutcome(row.Outcome)
		return result, nil
	}

	if s.guard != nil {
		inFlight, err := s.guard.CheckAndMark(ctx, row.InvoiceSlug)
		if err != nil && s.logg != nil {
			s.logg.Warn(ctx, "webhook guard unavailable: "+err.Error())
		}
		if err == nil && inFlight {
			result.Duplicate = true
			return result, nil
		}
	}

	outcome, status, procErr := s.process(ctx, row)
	result.Status = status
	result.Outcome = outcome
	if procErr != nil && s.guard != nil && status == enums.ConfirmationStatusReceived {
		if err := s.guard.Delete(ctx, row.InvoiceSlug); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "failed to clear webhook guard: "+err.Error())
		}
	}
	return result, nil
}

// ProcessConfirmation re-drives a stored inbox row.
func (s *Service) ProcessConfirmation(ctx context.Context, row *models.PaymentConfirmation) (*reconciliation.SettlementOutcome, error) {
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation required")
	}
	outcome, status, err := s.process(ctx, row)
	if status == enums.ConfirmationStatusReceived {
		return outcome, err
	}
	return outcome, nil
}

// ReplayStale re-drives rows still received before cutoff. Rows that have
// used up maxAttempts are dead-lettered instead.
func (s *Service) ReplayStale(ctx context.Context, cutoff time.Time, limit, maxAttempts int) (ReplayStats, error) {
	var stats ReplayStats
	rows, err := s.inbox.ListStale(ctx, cutoff, limit)
	if err != nil {
		return stats, err
	}
	for i := range rows {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		row := &rows[i]
		stats.Scanned++
		if maxAttempts > 0 && row.AttemptCount >= maxAttempts {
			if err := s.exhaust(ctx, row); err != nil {
				return stats, err
			}
			stats.DeadLettered++
			continue
		}
		_, status, err := s.process(ctx, row)
		switch {
		case status == enums.ConfirmationStatusProcessed:
			stats.Processed++
		case status == enums.ConfirmationStatusDeadLettered:
			stats.DeadLettered++
		case err != nil:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Service) process(ctx context.Context, row *models.PaymentConfirmation) (*reconciliation.SettlementOutcome, enums.ConfirmationStatus, error) {
	payload, err := ParsePayload(row.Payload)
	if err != nil {
		return nil, s.deadLetter(ctx, row, nil, err), err
	}

	outcome, err := s.reconciler.HandleConfirmation(ctx, payload.Confirmation(row.Payload))
	if err == nil {
		encoded, _ := json.Marshal(outcome)
		if _, markErr := s.inbox.MarkProcessed(ctx, row.ID, encoded, s.now()); markErr != nil {
			s.logError(ctx, "failed to mark confirmation processed", markErr)
		}
		return outcome, enums.ConfirmationStatusProcessed, nil
	}

	if isFinal(err) {
		return outcome, s.deadLetter(ctx, row, outcome, err), err
	}

	if _, markErr := s.inbox.RecordFailure(ctx, row.ID, err.Error()); markErr != nil {
		s.logError(ctx, "failed to record confirmation attempt", markErr)
	}
	s.logError(ctx, "confirmation processing failed, will replay", err)
	return outcome, enums.ConfirmationStatusReceived, err
}

// deadLetter closes the inbox row. The reconciler has already written the
// settlement dead letter for final errors.
func (s *Service) deadLetter(ctx context.Context, row *models.PaymentConfirmation, outcome *reconciliation.SettlementOutcome, cause error) enums.ConfirmationStatus {
	var encoded json.RawMessage
	if outcome != nil {
		encoded, _ = json.Marshal(outcome)
	}
	if _, err := s.inbox.MarkDeadLettered(ctx, row.ID, cause.Error(), encoded, s.now()); err != nil {
		s.logError(ctx, "failed to mark confirmation dead-lettered", err)
		return enums.ConfirmationStatusReceived
	}
	return enums.ConfirmationStatusDeadLettered
}

func (s *Service) exhaust(ctx context.Context, row *models.PaymentConfirmation) error {
	cause := pkgerrors.New(pkgerrors.CodeDependency, "confirmation replay attempts exhausted").
		WithDetails(map[string]any{"attempts": row.AttemptCount})
	lastError := ""
	if row.LastError != nil {
		lastError = *row.LastError
	}
	if err := s.deadLetters.Record(ctx, deadletters.Entry{
		Reason:      enums.DeadLetterMaxAttempts,
		InvoiceSlug: row.InvoiceSlug,
		Reference:   row.Reference,
		Payload:     row.Payload,
		Err:         pkgerrors.Wrap(pkgerrors.CodeDependency, cause, lastError),
	}); err != nil {
		return err
	}
	s.metrics.IncConfirmation(string(enums.DeadLetterMaxAttempts))
	if _, err := s.inbox.MarkDeadLettered(ctx, row.ID, cause.Error(), nil, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close exhausted confirmation")
	}
	return nil
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func isFinal(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeMalformedReference,
		pkgerrors.CodeUnknownSettlement,
		pkgerrors.CodeAmountMismatch,
		pkgerrors.CodeStateConflict:
		return true
	}
	return false
}

func decodeOutcome(raw json.RawMessage) *reconciliation.SettlementOutcome {
	if len(raw) == 0 {
		return nil
	}
	var outcome reconciliation.SettlementOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil
	}
	return &outcome
}
