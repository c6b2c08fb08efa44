package infinitypaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dropship-settlements/pkg/redis"
)

// IdempotencyGuard short-circuits concurrent deliveries of one invoice.
// The inbox row and the reconciler's conditional writes remain the source
// of truth.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard marks invoice slugs in store for ttl.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether invoiceSlug is already in flight, marking it
// otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, invoiceSlug string) (bool, error) {
	if invoiceSlug == "" {
		return false, errors.New("invoice slug is required")
	}
	key := g.store.IdempotencyKey(g.scope, invoiceSlug)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

func (g *IdempotencyGuard) Delete(ctx context.Context, invoiceSlug string) error {
	if invoiceSlug == "" {
		return errors.New("invoice slug is required")
	}
	key := g.store.IdempotencyKey(g.scope, invoiceSlug)
	return g.store.Del(ctx, key)
}
