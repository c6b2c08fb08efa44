// Package app assembles the settlement services shared by the api and
// cron-worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/internal/deadletters"
	"github.com/angelmondragon/dropship-settlements/internal/inventory"
	"github.com/angelmondragon/dropship-settlements/internal/reconciliation"
	"github.com/angelmondragon/dropship-settlements/internal/settlements"
	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	"github.com/angelmondragon/dropship-settlements/internal/suppliers"
	infinitypaywebhook "github.com/angelmondragon/dropship-settlements/internal/webhooks/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/redis"
)

const webhookGuardScope = "infinitypay"

// CheckoutGateway mints hosted checkout links.
type CheckoutGateway interface {
	CreateCheckoutLink(ctx context.Context, req infinitypay.CheckoutRequest) (*infinitypay.CheckoutLink, error)
}

// Params wires a Stack. Gateway and Redis are optional: without a gateway no
// link service is built, without Redis the webhook runs unguarded.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   redis.IdempotencyStore
	Gateway CheckoutGateway
	Metrics *metrics.SettlementMetrics
}

// Stack exposes every repository and service of the settlement pipeline.
type Stack struct {
	DebtRepo       debts.Repository
	LinkRepo       settlements.Repository
	Suppliers      suppliers.Repository
	DeadLetterRepo deadletters.Repository
	OutboxRepo     *outbox.Repository

	Debts       debts.Service
	Links       *settlements.Service
	Ledger      *inventory.Ledger
	Shipments   *shipments.Recorder
	DeadLetters *deadletters.Service
	Outbox      *outbox.Service
	Reconciler  *reconciliation.Reconciler
	Webhooks    *infinitypaywebhook.Service
}

func Build(p Params) (*Stack, error) {
	if p.Config == nil {
		return nil, errors.New("config required")
	}
	if p.DB == nil {
		return nil, errors.New("db client required")
	}
	conn := p.DB.DB()

	s := &Stack{
		DebtRepo:       debts.NewRepository(conn),
		LinkRepo:       settlements.NewRepository(conn),
		Suppliers:      suppliers.NewRepository(conn),
		DeadLetterRepo: deadletters.NewRepository(conn),
		OutboxRepo:     outbox.NewRepository(conn),
	}
	s.Outbox = outbox.NewService(s.OutboxRepo, p.Logger)

	var err error
	if s.Debts, err = debts.NewService(s.DebtRepo, p.Logger); err != nil {
		return nil, fmt.Errorf("debt service: %w", err)
	}
	if s.Ledger, err = inventory.NewLedger(inventory.NewRepository(conn), p.Logger, p.Metrics); err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}
	if s.DeadLetters, err = deadletters.NewService(s.DeadLetterRepo, p.Logger, p.Metrics); err != nil {
		return nil, fmt.Errorf("dead letter service: %w", err)
	}
	s.Shipments, err = shipments.NewRecorder(shipments.RecorderParams{
		Repo:     shipments.NewRepository(conn),
		Ledger:   s.Ledger,
		Outbox:   s.Outbox,
		TxRunner: p.DB,
		Logger:   p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("shipment recorder: %w", err)
	}
	s.Reconciler, err = reconciliation.NewReconciler(reconciliation.ReconcilerParams{
		Links:       s.LinkRepo,
		Debts:       s.DebtRepo,
		Shipments:   s.Shipments,
		DeadLetters: s.DeadLetters,
		Outbox:      s.Outbox,
		TxRunner:    p.DB,
		Logger:      p.Logger,
		Metrics:     p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}

	var guard *infinitypaywebhook.IdempotencyGuard
	if p.Redis != nil {
		guard, err = infinitypaywebhook.NewIdempotencyGuard(p.Redis, p.Config.Settlement.GuardTTL, webhookGuardScope)
		if err != nil {
			return nil, fmt.Errorf("webhook guard: %w", err)
		}
	}
	s.Webhooks, err = infinitypaywebhook.NewService(infinitypaywebhook.ServiceParams{
		Inbox:         infinitypaywebhook.NewInboxRepository(conn),
		Reconciler:    s.Reconciler,
		DeadLetters:   s.DeadLetters,
		Guard:         guard,
		SigningSecret: p.Config.InfinityPay.WebhookSecret,
		Logger:        p.Logger,
		Metrics:       p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	if p.Gateway != nil {
		s.Links, err = settlements.NewService(settlements.ServiceParams{
			Debts:     s.DebtRepo,
			Links:     s.LinkRepo,
			Suppliers: s.Suppliers,
			Gateway:   p.Gateway,
			Outbox:    s.Outbox,
			TxRunner:  p.DB,
			Logger:    p.Logger,
			Metrics:   p.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("settlement service: %w", err)
		}
	}
	return s, nil
}
