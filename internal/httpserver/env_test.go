package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payment"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/search"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/validate"
)

var secret = []byte("http-secret")

const frontend = "https://shop.example"

type stubProvider struct {
	method  models.PaymentMethod
	success bool
}

func (p *stubProvider) Method() models.PaymentMethod { return p.method }

func (p *stubProvider) Initiate(_ context.Context, o *models.Order) (*payment.Initiation, error) {
	ref := fmt.Sprintf("%s-%s", p.method, o.ID)
	if p.method == models.PaymentStripe {
		return &payment.Initiation{ProviderRef: ref, ClientSecret: ref + "_secret"}, nil
	}
	if p.method == models.PaymentPayPal {
		return &payment.Initiation{
			ProviderRef: ref,
			RedirectURL: "https://provider.example/" + ref + "?token=EC-" + o.ID.String(),
			Details:     map[string]any{payment.DetailApprovalToken: "EC-" + o.ID.String()},
		}, nil
	}
	return &payment.Initiation{ProviderRef: ref, RedirectURL: "https://provider.example/" + ref}, nil
}

func (p *stubProvider) Verify(_ context.Context, cb payment.Callback) (*payment.Verification, error) {
	return &payment.Verification{Success: p.success, TransactionID: "txn-" + cb.OrderID}, nil
}

type stubSearch struct {
	got search.Query
}

func (s *stubSearch) SearchOrders(_ context.Context, q search.Query) (int64, []search.OrderDoc, error) {
	s.got = q
	return 1, []search.OrderDoc{{ID: "o-1", Status: "Pending"}}, nil
}

type testEnv struct {
	e      *echo.Echo
	repo   *repo.GormRepo
	orders *service.OrderService
	search *stubSearch
	ready  error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	r := repo.New(gdb)
	registry := payment.NewRegistry(
		payment.Cash{},
		&stubProvider{method: models.PaymentPayPal, success: true},
		&stubProvider{method: models.PaymentKhalti, success: true},
		&stubProvider{method: models.PaymentStripe, success: true},
	)
	orders := service.NewOrderService(r, registry, nil, nil, nil)
	v := validate.MustNew()

	env := &testEnv{e: echo.New(), repo: r, orders: orders, search: &stubSearch{}}
	Register(env.e, &Deps{
		CartHandler:    &CartHTTP{Svc: &service.CartService{Repo: r}, Orders: orders, Validator: v},
		OrderHandler:   &OrderHTTP{Svc: orders, Validator: v, Search: env.search},
		PaymentHandler: &PaymentHTTP{Svc: orders, Validator: v, FrontendURL: frontend},
		JWTSecret:      secret,
		Ready: map[string]ReadyCheck{
			"db":   r.Ping,
			"stub": func(context.Context) error { return env.ready },
		},
	})
	return env
}

func (env *testEnv) seed(t *testing.T, name, price, color, size string, qty int64) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		TotalQuantity: qty,
		Variants:      []models.Variant{{Color: color, Size: size, Quantity: qty}},
	}
	require.NoError(t, env.repo.DB.Create(p).Error)
	return p
}

func (env *testEnv) stock(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	p, err := env.repo.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Variants[0].Quantity
}

func login(t *testing.T, userID uuid.UUID, role string) *http.Cookie {
	t.Helper()
	tok, err := tokens.SignAccess(secret, userID.String(), role, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: tokens.AccessCookie, Value: tok, Path: "/"}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
