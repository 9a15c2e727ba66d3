// Program trigger-demo wires up a dispatcher with logging, tracing, and
// metrics, registers a few handlers, and triggers sample events. It shows
// the normal dispatch path, the aggregate error path, and token-based
// unregistration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/triggerkit/trigger/pkg/common/logger"
	otelcfg "github.com/triggerkit/trigger/pkg/common/otel"
	"github.com/triggerkit/trigger/pkg/eventbus"
	"github.com/triggerkit/trigger/pkg/eventbus/otelmetrics"
	"github.com/triggerkit/trigger/pkg/events"
)

const serviceType = "trigger-demo"

// Demo event types.
const (
	EventTypeOrderPlaced events.EventType = "OrderPlaced"
	EventTypeHeartbeat   events.EventType = "Heartbeat"
)

// OrderPlaced is the payload for EventTypeOrderPlaced.
type OrderPlaced struct {
	events.BaseEvent

	OrderID string
	Total   float64
}

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otelcfg.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otelcfg.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("TRIGGER-DEMO-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	opts := []eventbus.Option{eventbus.WithLogger(log)}

	// Telemetry is optional for the demo; enable it when an OTLP endpoint
	// is configured.
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		prob := 1.0
		if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("parsing OTEL_SAMPLING_RATIO: %w", err)
			}
			prob = parsed
		}

		tp, telemetryTeardown, err := otelcfg.InitTelemetry(log, otelcfg.Config{
			ServiceName:      serviceType,
			ExporterEndpoint: endpoint,
			Probability:      prob,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer telemetryTeardown(context.Background())

		metrics, err := otelmetrics.New(otel.GetMeterProvider())
		if err != nil {
			return fmt.Errorf("creating dispatcher metrics: %w", err)
		}

		opts = append(opts,
			eventbus.WithTracer(tp.Tracer(serviceType)),
			eventbus.WithMetrics(metrics),
		)
	}

	dispatcher := eventbus.New(eventbus.NewRegistry(), opts...)

	// A typed singleton subscriber: the payload type is bound at
	// registration, so a mismatched trigger surfaces as that slot's failure.
	auditReg := eventbus.On(dispatcher, EventTypeOrderPlaced,
		func(ctx context.Context, evt *OrderPlaced) error {
			log.Info(ctx, "audit: order placed",
				"order_id", evt.OrderID, "total", evt.Total, "source", fmt.Sprintf("%v", evt.Source()))
			return nil
		})
	defer auditReg.Unregister()

	// A transient subscriber: a fresh handler per trigger call.
	constructed := 0
	dispatcher.SubscribeTransient(EventTypeOrderPlaced, func() events.Handler {
		constructed++
		n := constructed
		return events.HandlerFunc(func(ctx context.Context, evt events.Event) error {
			log.Info(ctx, "fulfillment: processing order", "handler_instance", n)
			return nil
		})
	})

	// A misbehaving subscriber, to show failure isolation and the
	// aggregate error.
	failing := dispatcher.SubscribeFunc(EventTypeOrderPlaced,
		func(ctx context.Context, evt events.Event) error {
			return errors.New("payment provider unavailable")
		})

	order := &OrderPlaced{OrderID: "ord-1234", Total: 99.95}
	if err := dispatcher.TriggerFrom(ctx, serviceType, EventTypeOrderPlaced, order); err != nil {
		var dispatchErr *events.DispatchError
		if errors.As(err, &dispatchErr) {
			log.Warn(ctx, "dispatch completed with failures",
				"event_type", dispatchErr.EventType, "failures", len(dispatchErr.Failures))
		}
	}

	// Remove the failing subscriber via its token; the next trigger is clean.
	failing.Unregister()
	if err := dispatcher.Trigger(ctx, EventTypeOrderPlaced, &OrderPlaced{OrderID: "ord-1235", Total: 14.50}); err != nil {
		return fmt.Errorf("unexpected dispatch failure: %w", err)
	}

	// Marker events carry no payload.
	dispatcher.SubscribeFunc(EventTypeHeartbeat, func(ctx context.Context, _ events.Event) error {
		log.Debug(ctx, "heartbeat")
		return nil
	})

	log.Info(ctx, "demo running, sending heartbeats", "interval", "5s")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := dispatcher.Announce(ctx, EventTypeHeartbeat); err != nil {
				log.Error(ctx, "heartbeat dispatch failed", "error", err)
			}
		case sig := <-sigCh:
			log.Info(ctx, "shutdown signal received", "signal", sig.String())
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
