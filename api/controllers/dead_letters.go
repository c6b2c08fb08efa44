package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	"github.com/angelmondragon/dropship-settlements/api/validators"
	"github.com/angelmondragon/dropship-settlements/internal/deadletters"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

// DeadLetterService is the operator queue surface.
type DeadLetterService interface {
	List(ctx context.Context, params deadletters.ListParams) (*deadletters.ListResult, error)
	Resolve(ctx context.Context, id uuid.UUID, note string) (*models.SettlementDeadLetter, error)
}

type resolveDeadLetterRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

// ListDeadLetters returns dead letters, unresolved only unless ?unresolved=false.
func ListDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := deadletters.ListParams{UnresolvedOnly: true, Params: page}
		if raw := strings.TrimSpace(r.URL.Query().Get("unresolved")); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unresolved value"))
				return
			}
			params.UnresolvedOnly = value
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(result.Items, result.Cursor, toDeadLetterResponse))
	}
}

func ResolveDeadLetter(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "deadLetterId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveDeadLetterRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		letter, err := svc.Resolve(r.Context(), id, req.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDeadLetterResponse(letter))
	}
}
