package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/storefront/internal/models"
)

type Config struct {
	URL      string
	User     string
	Password string
	Index    string
}

func NewClient(cfg Config, transport http.RoundTripper) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return client, nil
}

// OrderDoc is the admin dashboard's view of an order.
type OrderDoc struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Status            string    `json:"status"`
	PaymentStatus     string    `json:"payment_status"`
	PaymentMethod     string    `json:"payment_method"`
	ReservationStatus string    `json:"reservation_status"`
	TotalAmount       float64   `json:"total_amount"`
	Currency          string    `json:"currency"`
	Address           string    `json:"address"`
	ProductNames      []string  `json:"product_names"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func NewOrderDoc(o *models.Order) OrderDoc {
	names := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		names = append(names, it.ProductName)
	}
	total, _ := o.TotalAmount.Float64()
	return OrderDoc{
		ID:                o.ID.String(),
		UserID:            o.UserID.String(),
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentMethod:     string(o.PaymentMethod),
		ReservationStatus: string(o.ReservationStatus),
		TotalAmount:       total,
		Currency:          o.Currency,
		Address:           o.Address,
		ProductNames:      names,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

type OrderIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewOrderIndex(es *elasticsearch.Client, index string) *OrderIndex {
	return &OrderIndex{es: es, index: index}
}

func responseError(op string, status string, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 512))
	return fmt.Errorf("elasticsearch %s: %s: %s", op, status, raw)
}

func (x *OrderIndex) IndexOrder(ctx context.Context, o *models.Order) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(NewOrderDoc(o)); err != nil {
		return fmt.Errorf("encode order doc: %w", err)
	}

	res, err := x.es.Index(
		x.index,
		&buf,
		x.es.Index.WithContext(ctx),
		x.es.Index.WithDocumentID(o.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index", res.Status(), res.Body)
	}
	return nil
}

type Query struct {
	Text          string
	Status        string
	PaymentStatus string
	From          int
	Size          int
}

func (q Query) body() map[string]any {
	var must []any
	if q.Text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":     q.Text,
				"fields":    []string{"product_names^2", "address", "id", "user_id"},
				"fuzziness": "AUTO",
			},
		})
	}
	var filter []any
	if q.Status != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"status": q.Status}})
	}
	if q.PaymentStatus != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"payment_status": q.PaymentStatus}})
	}

	boolQ := map[string]any{}
	if len(must) > 0 {
		boolQ["must"] = must
	}
	if len(filter) > 0 {
		boolQ["filter"] = filter
	}
	if len(boolQ) == 0 {
		boolQ["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}

	return map[string]any{
		"query": map[string]any{"bool": boolQ},
		"sort":  []any{map[string]any{"created_at": map[string]any{"order": "desc"}}},
		"from":  q.From,
		"size":  q.Size,
	}
}

func (x *OrderIndex) SearchOrders(ctx context.Context, q Query) (int64, []OrderDoc, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q.body()); err != nil {
		return 0, nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := x.es.Search(
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(&buf),
		x.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, responseError("search", res.Status(), res.Body)
	}

	type hit struct {
		Source OrderDoc `json:"_source"`
	}
	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []hit                 `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("decode search: %w", err)
	}

	docs := make([]OrderDoc, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		docs[i] = hit.Source
	}
	return r.Hits.Total.Value, docs, nil
}

func (x *OrderIndex) Ping(ctx context.Context) error {
	res, err := x.es.Info(x.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("info", res.Status(), res.Body)
	}
	return nil
}
