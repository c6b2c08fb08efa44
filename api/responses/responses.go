package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

// callerFacing lists the codes whose own message is safe to return; the rest
// fall back to the public message of their metadata.
var callerFacing = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:         true,
	pkgerrors.CodeForbidden:          true,
	pkgerrors.CodeUnauthorized:       true,
	pkgerrors.CodeNotFound:           true,
	pkgerrors.CodeConflict:           true,
	pkgerrors.CodeStateConflict:      true,
	pkgerrors.CodeIdempotency:        true,
	pkgerrors.CodeRateLimit:          true,
	pkgerrors.CodeInvalidBatch:       true,
	pkgerrors.CodePartialAggregation: true,
	pkgerrors.CodeMalformedReference: true,
	pkgerrors.CodeUnknownSettlement:  true,
	pkgerrors.CodeAmountMismatch:     true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Untyped errors become
// INTERNAL_ERROR and never leak their text.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		RequestID: logger.RequestID(ctx),
	}
	if m := typed.Message(); m != "" && callerFacing[typed.Code()] {
		apiErr.Message = m
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		fields := pkgerrors.Diagnose(err).LogFields()
		if dm, ok := typed.Details().(map[string]any); ok {
			if step, ok := dm["step"]; ok {
				fields["step"] = step
			}
		}
		fields["status"] = meta.HTTPStatus
		logCtx := logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			// caller mistakes; "error" is already in fields
			logg.Warn(logCtx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are gone; nothing useful to do with an encode failure
	_ = json.NewEncoder(w).Encode(payload)
}
