package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	pkgredis "github.com/angelmondragon/dropship-settlements/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// a reservation outlives any sane handler; a crashed request frees it
	inFlightTTL = 2 * time.Minute
)

type idempotencyRule struct {
	method   string
	segments []string
	ttl      time.Duration
}

func rule(method, template string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: method, segments: splitPath(template), ttl: ttl}
}

var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/v1/debts", defaultIdempotencyTTL),
	rule(http.MethodPut, "/api/v1/suppliers/{supplierId}/payout-account", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/v1/suppliers/{supplierId}/shipments/{shipmentId}/ship", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/v1/dead-letters/{deadLetterId}/resolve", defaultIdempotencyTTL),
	// money-moving and stock-moving writes keep their keys for a week
	rule(http.MethodPost, "/api/v1/settlements/links", criticalIdempotencyTTL),
	rule(http.MethodPost, "/api/v1/inventory/{sku}/restock", criticalIdempotencyTTL),
}

// idempotencyRecord is either a reservation (Pending) or a finished response.
type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes the listed write routes safe to retry. The first request
// for a key reserves it, later ones replay the stored response, and a
// different body under the same key is rejected. 5xx responses release the
// key so the caller can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, hash)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				if err := replay(ctx, store, key, hash, w); err != nil {
					fail(err)
				}
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			record, _ := json.Marshal(idempotencyRecord{
				RequestHash: hash,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			})
			if err := store.Set(context.WithoutCancel(ctx), key, string(record), ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	marker, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hash})
	return store.SetNX(ctx, key, string(marker), inFlightTTL)
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, w http.ResponseWriter) error {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// reservation expired between SetNX and Get
		return pkgerrors.New(pkgerrors.CodeConflict, "idempotent request is being retried, try again")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if record.RequestHash != hash {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	if record.Pending {
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress")
	}
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
	return nil
}

// idempotencyScope keeps keys from colliding across sellers and endpoints.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{SellerIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the chi pattern; mounted subrouters report a wildcard
// until routing finishes, so those fall back to the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return strings.TrimSuffix(pattern, "/")
		}
	}
	return strings.TrimSuffix(r.URL.Path, "/")
}

func routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	segments := splitPath(path)
	for _, rl := range idempotencyRules {
		if rl.method == method && matchSegments(rl.segments, segments) {
			return rl.ttl, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// matchSegments treats {param} template segments as wildcards.
func matchSegments(template, path []string) bool {
	if len(template) != len(path) {
		return false
	}
	for i, seg := range template {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
