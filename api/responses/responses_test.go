package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

func TestSuccessEnvelopes(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"link_id": "l1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"link_id":"l1"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteErrorStatusPerCode(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeValidation:         http.StatusBadRequest,
		pkgerrors.CodeInvalidBatch:       http.StatusUnprocessableEntity,
		pkgerrors.CodePartialAggregation: http.StatusConflict,
		pkgerrors.CodeUnknownSettlement:  http.StatusNotFound,
		pkgerrors.CodeAmountMismatch:     http.StatusUnprocessableEntity,
		pkgerrors.CodeRateLimit:          http.StatusTooManyRequests,
		pkgerrors.CodeDependency:         http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		rec := httptest.NewRecorder()
		WriteError(context.Background(), nil, rec, pkgerrors.New(code, "detail"))
		assert.Equal(t, status, rec.Code, code)
		assert.Equal(t, string(code), decodeError(t, rec).Code)
	}
}

func TestWriteErrorKeepsCallerFacingMessageAndDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"sku": "is required"})
	WriteError(context.Background(), quietLogger(), rec, err)

	body := decodeError(t, rec)
	assert.Equal(t, "bad input", body.Message)
	assert.Equal(t, map[string]any{"sku": "is required"}, body.Details)
}

func TestWriteErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	assert.Equal(t, "internal server error", body.Message)
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	logg := quietLogger()
	ctx := logg.WithRequestID(context.Background(), "req-42")
	rec := httptest.NewRecorder()
	WriteError(ctx, logg, rec, pkgerrors.New(pkgerrors.CodeNotFound, "debt not found").WithDetails("ignored"))

	body := decodeError(t, rec)
	assert.Equal(t, "req-42", body.RequestID)
	assert.Nil(t, body.Details, "not found must not expose details")
}
