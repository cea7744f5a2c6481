package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/Skotchmaster/storefront/internal/authclient"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/storefront/internal/middleware/logging"
	"github.com/Skotchmaster/storefront/internal/observability"
	"github.com/Skotchmaster/storefront/internal/validate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the reservation sweeper",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	cfg.MustServe()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	shutdownOTel, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.ServiceName,
		Version:      version,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     true,
		SampleRate:   config.EnvFloatDefault("OTEL_SAMPLE_RATE", 1),
	})
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := newApp(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown_close_failed", "error", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = cfg.CheckoutTimeout + 5*time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(observability.Middleware(cfg.ServiceName))
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, "Idempotency-Key", csrf.HeaderName},
		ExposeHeaders:    []string{csrf.HeaderName},
		AllowCredentials: true,
	}))
	e.Use(middleware.ContextTimeout(cfg.CheckoutTimeout))
	if cfg.CSRFEnabled {
		e.Use(csrf.Middleware(csrf.Config{
			TrustedOrigins: []string{cfg.FrontendURL},
			Secure:         strings.HasPrefix(cfg.PublicURL, "https://"),
		}))
	}

	v := validate.MustNew()

	var searcher httpserver.OrderSearcher
	if a.search != nil {
		searcher = a.search
	}
	httpserver.Register(e, &httpserver.Deps{
		CartHandler:    &httpserver.CartHTTP{Svc: a.carts, Orders: a.orders, Validator: v},
		OrderHandler:   &httpserver.OrderHTTP{Svc: a.orders, Validator: v, Search: searcher},
		PaymentHandler: &httpserver.PaymentHTTP{Svc: a.orders, Validator: v, FrontendURL: cfg.FrontendURL},
		JWTSecret:      cfg.JWTAccessSecret,
		AuthClient:     authclient.NewClient(cfg.AuthHTTPURL),
		Ready:          a.ready,
	})

	if cfg.SweepEnabled {
		go a.orders.RunSweeper(ctx, cfg.SweepInterval)
	} else {
		logger.Info("sweeper_disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "port", cfg.ServerPort, "version", version)
		if err := e.Start(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("echo start: %w", err)
	}
	logger.Info("server_stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Error("otel_shutdown_failed", "error", err)
	}

	logger.Info("server_stopped")
	return nil
}
