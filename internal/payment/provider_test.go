package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/apperr"
	"github.com/Skotchmaster/storefront/internal/models"
)

func testOrder(total string) *models.Order {
	id := uuid.New()
	return &models.Order{
		ID:          id,
		UserID:      uuid.New(),
		TotalAmount: decimal.RequireFromString(total),
		Items:       []models.OrderItem{{OrderID: id, ProductID: uuid.New(), Quantity: 1}},
	}
}

func fakePayPal(t *testing.T, state string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cid", user)
		assert.Equal(t, "sec", pass)
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		tx := body["transactions"].([]any)[0].(map[string]any)
		amount := tx["amount"].(map[string]any)
		assert.Equal(t, "USD", amount["currency"])
		assert.Equal(t, "10.00", amount["total"])
		_, _ = w.Write([]byte(`{"id":"PAY-1","state":"created","links":[{"rel":"self","href":"x"},{"rel":"approval_url","href":"https://paypal.test/approve?token=EC-77"}]}`))
	})
	mux.HandleFunc("/v1/payments/payment/PAY-1/execute", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PAYER", body["payer_id"])
		_, _ = w.Write([]byte(`{"id":"PAY-1","state":"` + state + `","transactions":[{"related_resources":[{"sale":{"id":"SALE-9"}}]}]}`))
	})
	return httptest.NewServer(mux)
}

func TestPayPal_InitiateAndVerify(t *testing.T) {
	t.Parallel()
	srv := fakePayPal(t, "approved")
	defer srv.Close()

	p := NewPayPal(PayPalConfig{BaseURL: srv.URL, ClientID: "cid", Secret: "sec", PublicURL: "https://shop.test/"},
		newAPIClient(srv.Client(), nil), NewStaticRate(135))
	order := testOrder("1350")

	init, err := p.Initiate(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "https://paypal.test/approve?token=EC-77", init.RedirectURL)
	assert.Equal(t, "PAY-1", init.ProviderRef)
	assert.Equal(t, "10.00", init.Details["amount_usd"])
	assert.Equal(t, "EC-77", init.Details[DetailApprovalToken])

	v, err := p.Verify(context.Background(), Callback{OrderID: order.ID.String(), PaymentID: "PAY-1", PayerID: "PAYER"})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.Equal(t, "SALE-9", v.TransactionID)
}

func TestPayPal_VerifyNotApproved(t *testing.T) {
	t.Parallel()
	srv := fakePayPal(t, "failed")
	defer srv.Close()

	p := NewPayPal(PayPalConfig{BaseURL: srv.URL, ClientID: "cid", Secret: "sec"}, newAPIClient(srv.Client(), nil), NewStaticRate(135))
	v, err := p.Verify(context.Background(), Callback{PaymentID: "PAY-1", PayerID: "PAYER"})
	require.NoError(t, err)
	assert.False(t, v.Success)

	_, err = p.Verify(context.Background(), Callback{PaymentID: "PAY-1"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPayPal_ProviderErrorIsGeneric(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"name":"INTERNAL_SERVICE_ERROR","debug_id":"secret-detail"}`))
	}))
	defer srv.Close()

	p := NewPayPal(PayPalConfig{BaseURL: srv.URL}, newAPIClient(srv.Client(), nil), NewStaticRate(135))

	_, err := p.Initiate(context.Background(), testOrder("100"))
	assert.ErrorIs(t, err, apperr.ErrPaymentInitialization)
	assert.ErrorIs(t, err, apperr.ErrPaymentProvider)
	assert.NotContains(t, err.Error(), "secret-detail")

	_, err = p.Verify(context.Background(), Callback{PaymentID: "PAY-1", PayerID: "x"})
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)
}

func TestKhalti_InitiateAndLookup(t *testing.T) {
	t.Parallel()
	var status atomic.Value
	status.Store("Completed")
	mux := http.NewServeMux()
	mux.HandleFunc("/epayment/initiate/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Key live_secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 125050, body["amount"])
		ret, err := url.Parse(body["return_url"].(string))
		require.NoError(t, err)
		assert.Equal(t, "/payments/complete-khalti-payment", ret.Path)
		assert.NotEmpty(t, ret.Query().Get("orderId"))
		_, _ = w.Write([]byte(`{"pidx":"PX1","payment_url":"https://khalti.test/pay/PX1"}`))
	})
	mux.HandleFunc("/epayment/lookup/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PX1", body["pidx"])
		_, _ = w.Write([]byte(`{"pidx":"PX1","status":"` + status.Load().(string) + `","transaction_id":"TX-7","total_amount":125050}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	k := NewKhalti(KhaltiConfig{BaseURL: srv.URL, SecretKey: "live_secret", PublicURL: "https://shop.test"}, newAPIClient(srv.Client(), nil))

	init, err := k.Initiate(context.Background(), testOrder("1250.50"))
	require.NoError(t, err)
	assert.Equal(t, "PX1", init.ProviderRef)
	assert.Equal(t, "https://khalti.test/pay/PX1", init.RedirectURL)

	v, err := k.Verify(context.Background(), Callback{Pidx: "PX1"})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.Equal(t, "TX-7", v.TransactionID)

	status.Store("Pending")
	v, err = k.Verify(context.Background(), Callback{Pidx: "PX1"})
	require.NoError(t, err)
	assert.False(t, v.Success)
}

func TestStripe_IntentLifecycle(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "99900", r.PostForm.Get("amount"))
		assert.Equal(t, "npr", r.PostForm.Get("currency"))
		_, _ = w.Write([]byte(`{"id":"pi_1","client_secret":"pi_1_secret","status":"requires_payment_method"}`))
	})
	mux.HandleFunc("/v1/payment_intents/pi_1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"id":"pi_1","status":"succeeded","latest_charge":"ch_1","amount":99900}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStripe(StripeConfig{BaseURL: srv.URL, SecretKey: "sk_test"}, newAPIClient(srv.Client(), nil))

	init, err := s.Initiate(context.Background(), testOrder("999"))
	require.NoError(t, err)
	assert.Equal(t, "pi_1", init.ProviderRef)
	assert.Equal(t, "pi_1_secret", init.ClientSecret)

	v, err := s.Verify(context.Background(), Callback{IntentID: "pi_1"})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.Equal(t, "ch_1", v.TransactionID)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Cash{})

	p, err := r.Get(models.PaymentCash)
	require.NoError(t, err)
	v, err := p.Verify(context.Background(), Callback{})
	require.NoError(t, err)
	assert.False(t, v.Success)

	_, err = r.Get(models.PaymentPayPal)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
