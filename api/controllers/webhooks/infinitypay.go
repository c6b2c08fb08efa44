package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/dropship-settlements/api/responses"
	infinitypaywebhook "github.com/angelmondragon/dropship-settlements/internal/webhooks/infinitypay"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const maxWebhookBody = 1 << 20

type InfinityPayWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*infinitypaywebhook.Result, error)
}

// InfinityPayWebhook accepts payment confirmations. Once the confirmation is
// in the inbox the gateway gets a 200, whatever happened downstream.
func InfinityPayWebhook(svc InfinityPayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if len(payload) > maxWebhookBody {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
			return
		}

		result, err := svc.HandleWebhook(ctx, payload, r.Header.Get(infinitypaywebhook.SignatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"invoice_slug": result.InvoiceSlug,
				"status":       result.Status,
				"duplicate":    result.Duplicate,
			})
			logg.Info(logCtx, "infinitypay confirmation accepted")
		}
		responses.WriteSuccess(w, result)
	}
}
