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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OscarCaraballo97/inferno-payment/pkg/health"
	"github.com/OscarCaraballo97/inferno-payment/pkg/httpclient"
	"github.com/OscarCaraballo97/inferno-payment/pkg/logger"
	"github.com/OscarCaraballo97/inferno-payment/pkg/tracing"

	"github.com/OscarCaraballo97/inferno-payment/internal/config"
	"github.com/OscarCaraballo97/inferno-payment/internal/corebank"
	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/internal/funds"
	"github.com/OscarCaraballo97/inferno-payment/internal/queue"
	"github.com/OscarCaraballo97/inferno-payment/internal/saga"
)

// Worker is the assembled stage worker process. It consumes exactly
// one stage queue and drives sagas through that stage.
type Worker struct {
	cfg    *config.Worker
	logger *slog.Logger

	store    *store
	producer *queue.Producer
	dlq      *queue.DLQProducer
	consumer *queue.Consumer
	health   *http.Server

	shutdownTracing func(context.Context) error
}

// NewWorker loads configuration and wires a stage worker together.
func NewWorker(ctx context.Context) (*Worker, error) {
	cfg, err := config.LoadWorker()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	stage := domain.Step(cfg.Stage)
	serviceName := fmt.Sprintf("payment-worker-%s", stage)
	l := logger.New(serviceName, cfg.LogLevel).With(slog.String("stage", string(stage)))

	shutdownTracing, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName, Version))
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

	checker := newFundsChecker(cfg)

	var settler corebank.Settler
	if cfg.CoreBankingBase != "" {
		bankHTTP := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("core-banking"),
			l,
		)
		settler = corebank.NewClient(cfg.CoreBankingBase, bankHTTP, l)
	} else {
		settler = corebank.NewSimulatedSettler(l)
	}

	dispatcher, err := saga.NewDispatcher(
		stage,
		cfg.StageDelay,
		saga.NewInitiateHandler(st.repo, producer, l),
		saga.NewVerifyBalanceHandler(st.repo, producer, checker, l),
		saga.NewSettleHandler(st.repo, settler, l),
		l,
	)
	if err != nil {
		return nil, err
	}

	var idem queue.IdempotencyStore
	if st.redis != nil {
		idem = queue.NewRedisIdempotencyStore(st.redis, cfg.IdempotencyTTL)
	} else {
		idem = queue.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}

	dlq := queue.NewDLQProducer(cfg.KafkaBrokers, l)
	consumer := queue.NewConsumer(queue.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.ConsumerGroup,
		Stage:   stage,
	}, queue.IdempotentHandler(idem, dispatcher.Handle, l), dlq, l)

	mux := chi.NewRouter()
	mux.Get("/health/live", healthHandler.LivenessHandler())
	mux.Get("/health/ready", healthHandler.ReadinessHandler())
	mux.Handle("/metrics", promhttp.Handler())

	return &Worker{
		cfg:      cfg,
		logger:   l,
		store:    st,
		producer: producer,
		dlq:      dlq,
		consumer: consumer,
		health: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.HealthPort),
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		},
		shutdownTracing: shutdownTracing,
	}, nil
}

func newFundsChecker(cfg *config.Worker) funds.Checker {
	switch cfg.FundsMode {
	case config.FundsModeAlwaysPass:
		return funds.StaticChecker{Sufficient: true}
	case config.FundsModeAlwaysReject:
		return funds.StaticChecker{Sufficient: false}
	default:
		return funds.RandomChecker{FailureRatio: cfg.FundsFailureRatio}
	}
}

// Run consumes the stage queue until the context is cancelled or a
// termination signal arrives.
func (w *Worker) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		w.logger.Info("worker health endpoint listening", slog.String("addr", w.health.Addr))
		if err := w.health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("health server failed", slog.String("error", err.Error()))
		}
	}()

	w.logger.Info("stage worker started", slog.String("group", w.cfg.ConsumerGroup))
	err := w.consumer.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("consumer stopped", slog.String("error", err.Error()))
	}

	w.logger.Info("shutting down stage worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if herr := w.health.Shutdown(shutdownCtx); herr != nil {
		w.logger.Error("health server shutdown failed", slog.String("error", herr.Error()))
	}
	if cerr := w.consumer.Close(); cerr != nil {
		w.logger.Error("closing consumer failed", slog.String("error", cerr.Error()))
	}
	if perr := w.producer.Close(); perr != nil {
		w.logger.Error("closing producer failed", slog.String("error", perr.Error()))
	}
	if derr := w.dlq.Close(); derr != nil {
		w.logger.Error("closing dlq producer failed", slog.String("error", derr.Error()))
	}
	w.store.close()
	if terr := w.shutdownTracing(shutdownCtx); terr != nil {
		w.logger.Error("flushing traces failed", slog.String("error", terr.Error()))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
