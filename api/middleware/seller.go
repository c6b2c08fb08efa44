package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

// SellerIDHeader carries the acting seller, set by the gateway in front of the API.
const SellerIDHeader = "X-Seller-Id"

// SellerContext requires a seller id header and stores it on the request context.
func SellerContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(SellerIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller context missing"))
				return
			}
			sellerID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
				return
			}

			ctx := WithSellerID(r.Context(), sellerID.String())
			if logg != nil {
				ctx = logg.WithSellerID(ctx, sellerID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
