package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
)

// ParseUUIDParam reads a uuid chi path parameter.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter required").WithDetails(map[string]any{"field": name})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid path parameter").WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// ParsePagination reads limit and cursor query parameters.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if _, err := pagination.ParseCursor(cursor); err != nil {
		return pagination.Params{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetails(map[string]any{"field": "cursor"})
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

// ParseQueryInt reads an integer query parameter bounded by [lo, hi]. An
// absent parameter yields fallback.
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if n < lo || n > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": lo, "max": hi})
	}
	return n, nil
}

// SanitizeString trims whitespace and caps the result at maxRunes
// characters. maxRunes <= 0 disables the cap.
func SanitizeString(input string, maxRunes int) string {
	s := strings.TrimSpace(input)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
