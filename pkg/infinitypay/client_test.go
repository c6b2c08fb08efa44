package infinitypay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
)

const checkoutURL = "https://api.infinitepay.test/invoices/public/checkout/links"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.InfinityPayConfig{
		BaseURL:    "https://api.infinitepay.test/",
		WebhookURL: "https://dropship.test/api/v1/webhooks/infinitypay",
		MaxRetries: 3,
	}, nil, WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	require.NoError(t, err)
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func sampleRequest() CheckoutRequest {
	return CheckoutRequest{
		Handle:   "fornecedor-x",
		OrderNSU: "lnk_0190f3c2-7a1b-7c3d-9e4f-0123456789ab",
		Items: []Item{
			{Quantity: 1, Price: 4990, Description: "Camiseta (SKU-1)"},
			{Quantity: 2, Price: 1500, Description: "Meia (SKU-2)"},
		},
	}
}

func TestCreateCheckoutLinkSendsExpectedBody(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, checkoutURL, func(req *http.Request) (*http.Response, error) {
		var body checkoutBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		assert.Equal(t, "fornecedor-x", body.Handle)
		assert.Equal(t, "https://dropship.test/api/v1/webhooks/infinitypay", body.WebhookURL)
		assert.Equal(t, int64(4990), body.Items[0].Price)
		assert.Len(t, body.Items, 2)
		return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"url": "https://checkout.infinitepay.io/abc"})
	})

	link, err := client.CreateCheckoutLink(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.infinitepay.io/abc", link.URL)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestCreateCheckoutLinkRetriesServerErrors(t *testing.T) {
	client := newTestClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, checkoutURL, func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpmock.NewStringResponse(http.StatusBadGateway, "upstream"), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"url": "https://checkout.infinitepay.io/ok"})
	})

	link, err := client.CreateCheckoutLink(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.infinitepay.io/ok", link.URL)
	assert.Equal(t, 3, calls)
}

func TestCreateCheckoutLinkDoesNotRetryClientErrors(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, checkoutURL,
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"error":"invalid handle"}`))

	_, err := client.CreateCheckoutLink(context.Background(), sampleRequest())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestCreateCheckoutLinkGivesUpAfterMaxRetries(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, checkoutURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	_, err := client.CreateCheckoutLink(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, 4, httpmock.GetTotalCallCount())
}

func TestCreateCheckoutLinkRejectsMissingURL(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, checkoutURL, httpmock.NewStringResponder(http.StatusOK, `{}`))

	_, err := client.CreateCheckoutLink(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestCreateCheckoutLinkValidatesRequest(t *testing.T) {
	client := newTestClient(t)
	req := sampleRequest()
	req.Handle = ""
	_, err := client.CreateCheckoutLink(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestNewClientRequiresWebhookURL(t *testing.T) {
	_, err := NewClient(context.Background(), config.InfinityPayConfig{BaseURL: "https://x"}, nil)
	assert.ErrorIs(t, err, errWebhookURLRequired)
}
