package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/idempotency"
	"github.com/Skotchmaster/storefront/internal/payment"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/search"
	"github.com/Skotchmaster/storefront/internal/service"
)

// app holds the wired services shared by every subcommand.
type app struct {
	db     *gorm.DB
	repo   *repo.GormRepo
	carts  *service.CartService
	orders *service.OrderService
	search *search.OrderIndex
	ready  map[string]httpserver.ReadyCheck

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &app{
		db:    gdb,
		repo:  repo.New(gdb),
		ready: make(map[string]httpserver.ReadyCheck),
	}
	a.closers = append(a.closers, func() error { return db.Close(gdb) })
	a.ready["database"] = a.repo.Ping

	var rates payment.RateSource = payment.NewStaticRate(cfg.Payment.NPRPerUSD)
	if cfg.Payment.FXRateURL != "" {
		rates = payment.NewHTTPRateSource(cfg.Payment.FXRateURL, cfg.Payment.FXRateTTL, rates,
			&http.Client{Timeout: cfg.Payment.HTTPTimeout})
	}
	registry := payment.NewDefaultRegistry(cfg.Payment, payment.Options{PublicURL: cfg.PublicURL}, rates)

	var guard idempotency.Guard
	if cfg.RedisAddr != "" {
		client := idempotency.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		guard = idempotency.NewRedisGuard(client)
		a.ready["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		a.closers = append(a.closers, client.Close)
	} else {
		logger.Warn("redis_not_configured", "reason", "idempotency guard is local to this replica")
		guard = idempotency.NewMemoryGuard()
	}

	var pub events.Publisher = events.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers)
		pub = producer
		a.closers = append(a.closers, producer.Close)
	} else {
		logger.Warn("kafka_not_configured", "reason", "order and notification events are dropped")
	}

	var indexer service.OrderIndexer
	if cfg.ESURL != "" {
		es, err := search.NewClient(search.Config{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		}, nil)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.search = search.NewOrderIndex(es, cfg.ESIndex)
		a.ready["elasticsearch"] = a.search.Ping
		indexer = a.search
	}

	a.carts = &service.CartService{Repo: a.repo, Inventory: &service.InventoryService{Repo: a.repo}}
	a.orders = service.NewOrderService(a.repo, registry, guard, pub, indexer)
	a.orders.ReservationTTL = cfg.ReservationTTL
	a.orders.IdempotencyTTL = cfg.IdempotencyTTL
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
