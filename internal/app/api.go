// Package app assembles the payment API and worker processes from
// their configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OscarCaraballo97/inferno-payment/pkg/health"
	"github.com/OscarCaraballo97/inferno-payment/pkg/httpclient"
	"github.com/OscarCaraballo97/inferno-payment/pkg/logger"
	"github.com/OscarCaraballo97/inferno-payment/pkg/tracing"

	"github.com/OscarCaraballo97/inferno-payment/internal/cards"
	"github.com/OscarCaraballo97/inferno-payment/internal/config"
	handlerhttp "github.com/OscarCaraballo97/inferno-payment/internal/handler/http"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
)

// Version is stamped at build time.
var Version = "dev"

// API is the assembled payment API process.
type API struct {
	cfg    *config.API
	logger *slog.Logger
	server *http.Server

	store    *store
	producer *queue.Producer

	shutdownTracing func(context.Context) error
}

// NewAPI loads configuration and wires the API process together.
func NewAPI(ctx context.Context) (*API, error) {
	cfg, err := config.LoadAPI()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	l := logger.New("payment-api", cfg.LogLevel)

	shutdownTracing, err := tracing.InitTracer(ctx, cfg.Tracing("payment-api", Version))
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	healthHandler := health.NewHandler()

	st, err := newStore(ctx, &cfg.Common, healthHandler, l)
	if err != nil {
		return nil, err
	}

	producer := queue.NewProducer(queue.DefaultProducerConfig(cfg.KafkaBrokers), l)
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	var cardValidator cards.Validator
	if cfg.UserServiceAPI != "" {
		usersHTTP := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("users-api"),
			l,
		)
		cardValidator = cards.NewClient(cfg.UserServiceAPI, usersHTTP, l)
	} else {
		cardValidator = cards.NewSkipValidator(l)
	}

	payments := handlerhttp.NewPaymentHandler(st.repo, producer, cardValidator, l)
	router := handlerhttp.NewRouter(payments, healthHandler, l)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &API{
		cfg:             cfg,
		logger:          l,
		server:          server,
		store:           st,
		producer:        producer,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Run serves the API until the context is cancelled or a termination
// signal arrives, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("payment api listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down payment api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("closing producer failed", slog.String("error", err.Error()))
	}
	a.store.close()
	if err := a.shutdownTracing(shutdownCtx); err != nil {
		a.logger.Error("flushing traces failed", slog.String("error", err.Error()))
	}
	return nil
}
