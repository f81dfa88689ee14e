package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bmvisioli/routeflow/errorhandler"
	"github.com/bmvisioli/routeflow/exchange"
	"github.com/bmvisioli/routeflow/metrics"
	"github.com/bmvisioli/routeflow/processor"
	"github.com/bmvisioli/routeflow/transports/rabbitmq"
)

// TemporaryError is a failure the demo route's policy knows how to resolve
type TemporaryError struct {
	Reason string
}

func (e *TemporaryError) Error() string {
	return "temporary failure: " + e.Reason
}

// ErrQuotaExceeded has no policy registered, so it dead-letters after redelivery
var ErrQuotaExceeded = errors.New("quota exceeded")

func main() {
	metricsAddr := flag.String("metrics-addr", ":9464", "Address for the Prometheus metrics endpoint")
	amqpURL := flag.String("amqp-url", "", "AMQP connection string for the dead letter queue (optional)")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *isDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(registry)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.Info("metrics endpoint listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	// The demo stage fails roughly half the time, alternating between a
	// failure the policy resolves and one that dead-letters.
	stage := processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
		switch rand.Intn(4) {
		case 0:
			return &TemporaryError{Reason: "downstream hiccup"}
		case 1:
			return fmt.Errorf("order rejected: %w", ErrQuotaExceeded)
		default:
			ex.In().SetHeader("processed", true)
			return nil
		}
	})

	policies := errorhandler.NewDefaultExceptionPolicyStrategy()
	policies.Register(&TemporaryError{}, &errorhandler.ExceptionPolicy{
		Handler: processor.ToAsyncProcessor(processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
			logger.Info("fault stage compensating temporary failure", "exchangeId", ex.ID())
			ex.In().SetHeader("compensated", true)
			return nil
		})),
		Handled: errorhandler.HandledTrue,
	})

	handler, err := errorhandler.NewDefaultErrorHandler(processor.ToAsyncProcessor(stage), policies,
		errorhandler.WithLogger(logger),
		errorhandler.WithMetricsCollector(collector),
	)
	if err != nil {
		logger.Error("failed to build error handler", "error", err)
		os.Exit(1)
	}

	deadLetter, cleanup, err := buildDeadLetterProcessor(*amqpURL, logger)
	if err != nil {
		logger.Error("failed to build dead letter processor", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	channel, err := errorhandler.NewDeadLetterChannel(
		handler,
		processor.ToAsyncProcessor(deadLetter),
		errorhandler.WithRedeliveryPolicy(&errorhandler.RedeliveryPolicy{
			MaximumRedeliveries: 2,
			InitialDelay:        200 * time.Millisecond,
			Multiplier:          2.0,
			MaximumDelay:        2 * time.Second,
		}),
		errorhandler.WithDeadLetterLogger(logger),
		errorhandler.WithDeadLetterMetrics(collector),
	)
	if err != nil {
		logger.Error("failed to build dead letter channel", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("route demo started", "metricsAddr", *metricsAddr)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("route demo stopped")
			return
		case <-ticker.C:
			ex := exchange.New(
				exchange.WithRouteID("demo"),
				exchange.WithBody(fmt.Sprintf("order-%d", time.Now().UnixNano())),
			)
			if err := processor.ProcessSync(ctx, channel, ex); err != nil {
				logger.Warn("exchange failed", "exchangeId", ex.ID(), "error", err)
				continue
			}
			logger.Info("exchange completed",
				"exchangeId", ex.ID(),
				"handled", exchange.IsFailureHandled(ex),
			)
		}
	}
}

// buildDeadLetterProcessor returns an AMQP-backed dead letter endpoint when a
// connection string is given, and a logging stand-in otherwise.
func buildDeadLetterProcessor(amqpURL string, logger *slog.Logger) (processor.Processor, func(), error) {
	if amqpURL == "" {
		stub := processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
			logger.Warn("dead lettering exchange (no broker configured)",
				"exchangeId", ex.ID(),
				"error", exchange.CapturedException(ex),
			)
			return nil
		})
		return stub, func() {}, nil
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	endpoint, err := rabbitmq.NewDeadLetterEndpoint(ch, "demo.deadletter", rabbitmq.WithEndpointLogger(logger))
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	cleanup := func() {
		ch.Close()
		conn.Close()
	}
	return endpoint, cleanup, nil
}
