package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64)}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("webhook", time.Minute, 2, 0)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/infinitypay", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimitBlocksIPOverLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("webhook", time.Minute, 1, 0)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/infinitypay", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(last.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
	if store.counts["rl:ip:webhook:9.9.9.9"] != 2 {
		t.Fatalf("expected forwarded ip counted, got %v", store.counts)
	}
}

func TestRateLimitCountsPerSeller(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("links", time.Minute, 0, 1)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	sellerA := uuid.NewString()
	sellerB := uuid.NewString()
	codes := make([]int, 0, 3)
	for _, seller := range []string{sellerA, sellerB, sellerA} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/links", nil)
		req = req.WithContext(WithSellerID(req.Context(), seller))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated {
		t.Fatalf("expected distinct sellers allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected repeat seller throttled, got %v", codes)
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("off", 0, 1, 1), newFakeRateStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}
