package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/payloads"
)

const (
	defaultLinkTTL         = 72 * time.Hour
	defaultLinkExpiryBatch = 100
	linkExpiryJobName      = "link-expiry"
)

// LinkExpiryJobParams configure the unpaid link sweep.
type LinkExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Links     expirableLinks
	Debts     debtReleaser
	Outbox    outboxEmitter
	TTL       time.Duration
	BatchSize int
}

type expirableLinks interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.SettlementLink, error)
	ListExpiredHoldingDebts(ctx context.Context, limit int) ([]models.SettlementLink, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type debtReleaser interface {
	Release(ctx context.Context, id, linkID uuid.UUID) (bool, error)
}

// NewLinkExpiryJob builds the job that expires unpaid links and returns
// their debts to pending.
func NewLinkExpiryJob(params LinkExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Links == nil {
		return nil, fmt.Errorf("link repository required")
	}
	if params.Debts == nil {
		return nil, fmt.Errorf("debt repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultLinkExpiryBatch
	}
	return &linkExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		links:  params.Links,
		debts:  params.Debts,
		outbox: params.Outbox,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type linkExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	links  expirableLinks
	debts  debtReleaser
	outbox outboxEmitter
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *linkExpiryJob) Name() string { return linkExpiryJobName }

func (j *linkExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.ttl)

	stale, err := j.links.ListPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query expirable links: %w", err)
	}
	var errs error
	expired := 0
	for i := range stale {
		link := stale[i]
		ok, err := j.links.MarkExpired(ctx, link.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire link %s: %w", link.ID, err))
			continue
		}
		if !ok {
			// paid or failed since the query
			continue
		}
		link.Status = enums.SettlementLinkStatusExpired
		link.ExpiredAt = &now
		if err := j.release(ctx, link); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		expired++
	}

	stuck, err := j.links.ListExpiredHoldingDebts(ctx, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("query expired links holding debts: %w", err))
	}
	for i := range stuck {
		if err := j.release(ctx, stuck[i]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"expired":   expired,
		"recovered": len(stuck),
	})
	j.logg.Info(logCtx, "link expiry sweep complete")
	return errs
}

// release returns the link's debts to pending and announces the expiry.
func (j *linkExpiryJob) release(ctx context.Context, link models.SettlementLink) error {
	released := []uuid.UUID{}
	for _, debtID := range link.DebtRecordIDs {
		ok, err := j.debts.Release(ctx, debtID, link.ID)
		if err != nil {
			return fmt.Errorf("release debt %s of link %s: %w", debtID, link.ID, err)
		}
		if ok {
			released = append(released, debtID)
		}
	}
	expiredAt := j.now().UTC()
	if link.ExpiredAt != nil {
		expiredAt = *link.ExpiredAt
	}
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementLinkExpired,
			AggregateType: enums.AggregateSettlementLink,
			AggregateID:   link.ID,
			Actor:         outbox.SystemActor(linkExpiryJobName),
			Data: payloads.SettlementLinkExpiredEvent{
				LinkID:          link.ID,
				SellerID:        link.SellerID,
				ReleasedDebtIDs: released,
				ExpiredAt:       expiredAt,
			},
		})
	})
}
