package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payment"
	"github.com/Skotchmaster/storefront/internal/repo"
)

func newTestRepo(t *testing.T) *repo.GormRepo {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return repo.New(gdb)
}

func seedProduct(t *testing.T, r *repo.GormRepo, name, price string, color, size string, qty int64) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Images:        []string{name + ".png"},
		TotalQuantity: qty,
		Variants:      []models.Variant{{Color: color, Size: size, Quantity: qty}},
	}
	require.NoError(t, r.DB.Create(p).Error)
	return p
}

func stockOf(t *testing.T, r *repo.GormRepo, productID uuid.UUID) *models.Product {
	t.Helper()
	p, err := r.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p
}

type published struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: key, event: event})
	return nil
}

func (p *recordingPublisher) notifications(template string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if nt, ok := m.event.(events.Notification); ok && nt.Template == template {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) orderEvents(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if ev, ok := m.event.(events.OrderEvent); ok && ev.Type == typ {
			n++
		}
	}
	return n
}

type recordingIndex struct {
	mu      sync.Mutex
	indexed map[uuid.UUID]models.OrderStatus
}

func (x *recordingIndex) IndexOrder(_ context.Context, o *models.Order) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.indexed == nil {
		x.indexed = make(map[uuid.UUID]models.OrderStatus)
	}
	x.indexed[o.ID] = o.Status
	return nil
}

// fakeProvider stands in for a redirect or intent provider.
type fakeProvider struct {
	method    models.PaymentMethod
	initErr   error
	verifyErr error
	success   bool

	mu      sync.Mutex
	verifys int
}

func (f *fakeProvider) Method() models.PaymentMethod { return f.method }

func (f *fakeProvider) Initiate(_ context.Context, o *models.Order) (*payment.Initiation, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	ref := fmt.Sprintf("%s-%s", f.method, o.ID)
	in := &payment.Initiation{
		ProviderRef: ref,
		Details:     map[string]any{"fake_ref": ref},
	}
	switch f.method {
	case models.PaymentStripe:
		in.ClientSecret = ref + "_secret"
	case models.PaymentPayPal:
		in.RedirectURL = "https://pay.example/checkout/" + ref + "?token=" + approvalToken(o.ID)
		in.Details[payment.DetailApprovalToken] = approvalToken(o.ID)
	default:
		in.RedirectURL = "https://pay.example/checkout/" + ref
	}
	return in, nil
}

func (f *fakeProvider) Verify(_ context.Context, cb payment.Callback) (*payment.Verification, error) {
	f.mu.Lock()
	f.verifys++
	f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &payment.Verification{
		Success:       f.success,
		TransactionID: "txn-" + cb.OrderID,
		Details:       map[string]any{"fake_verified": f.success},
	}, nil
}

func approvalToken(orderID uuid.UUID) string {
	return "EC-" + orderID.String()
}

func (f *fakeProvider) verifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifys
}

type fixture struct {
	repo   *repo.GormRepo
	orders *OrderService
	carts  *CartService
	pub    *recordingPublisher
	index  *recordingIndex
	paypal *fakeProvider
	khalti *fakeProvider
	stripe *fakeProvider
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := newTestRepo(t)
	f := &fixture{
		repo:   r,
		pub:    &recordingPublisher{},
		index:  &recordingIndex{},
		paypal: &fakeProvider{method: models.PaymentPayPal, success: true},
		khalti: &fakeProvider{method: models.PaymentKhalti, success: true},
		stripe: &fakeProvider{method: models.PaymentStripe, success: true},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	registry := payment.NewRegistry(payment.Cash{}, f.paypal, f.khalti, f.stripe)
	f.orders = NewOrderService(r, registry, nil, f.pub, f.index)
	f.orders.Now = func() time.Time { return f.clock }
	f.carts = &CartService{Repo: r}
	return f
}
