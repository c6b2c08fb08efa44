package controllers

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	"github.com/angelmondragon/dropship-settlements/pkg/config"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const (
	readinessTimeout = 2 * time.Second
	envHeader        = "X-Dropship-Env"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency under one shared deadline. Any failure
// yields 503 naming the failed checks; the underlying errors are only logged.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := slices.Sorted(maps.Keys(deps))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(names))
		var (
			failed []string
			errs   error
		)
		for _, name := range names {
			dep := deps[name]
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				failed = append(failed, name)
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			checks[name] = "ok"
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "dependencies not ready").
				WithDetails(map[string]any{"failed": failed, "checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
