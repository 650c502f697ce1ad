// Package telemetry exports the engine's MetricsSnapshot through
// OpenTelemetry's metric API, backed by the Prometheus exporter. Adapted
// from the teacher's pkg/telemetry.MetricsHolder — same observable-gauge
// -over-a-mutex-protected-snapshot pattern, same
// meter.XObservableGauge(name, metric.WithXCallback(...)) registration
// style — regrouped around hedgegrid's drawdown/circuit-breaker/grid
// counters instead of the teacher's PnL/quality-score set.
package telemetry

import (
	"context"
	"sync"

	"github.com/hedgegrid/core/internal/model"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Exporter owns the observable gauges backing one instrument's
// MetricsSnapshot. The OTel collection callback reads the cached
// snapshot under lock, so Update never blocks on exporter collection.
type Exporter struct {
	mu         sync.RWMutex
	snapshot   model.MetricsSnapshot
	instrument string
}

// NewExporter constructs an Exporter and registers its gauges against the
// global OTel meter provider. Call InitGlobal once at process startup to
// install the Prometheus exporter before constructing any Exporter.
func NewExporter(instrument string) (*Exporter, error) {
	e := &Exporter{instrument: instrument}
	meter := otel.GetMeterProvider().Meter("hedgegrid_core")
	attr := metric.WithAttributes(attribute.String("instrument", instrument))

	registrations := []func() error{
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_regime",
				metric.WithDescription("Current regime classification (0=undefined,1=up,2=down,3=side)"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(int64(e.Snapshot().Regime), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_drawdown_triggered",
				metric.WithDescription("1 if the drawdown breaker has latched"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(boolToInt(e.Snapshot().DrawdownTriggered), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_circuit_breaker_active",
				metric.WithDescription("1 if the rejection-rate circuit breaker is open"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(boolToInt(e.Snapshot().CircuitBreakerActive), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_pause_trading",
				metric.WithDescription("1 if order production is paused"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(boolToInt(e.Snapshot().PauseTrading), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_critical_error",
				metric.WithDescription("1 if a critical error has latched"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(boolToInt(e.Snapshot().CriticalError), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Float64ObservableGauge("hedgegrid_peak_balance",
				metric.WithDescription("Highest account balance observed"),
				metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
					obs.Observe(toFloat(e.Snapshot().PeakBalance), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Float64ObservableGauge("hedgegrid_realized_pnl",
				metric.WithDescription("Cumulative realized PnL"),
				metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
					obs.Observe(toFloat(e.Snapshot().RealizedPnL), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_open_orders",
				metric.WithDescription("Currently open orders"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(int64(e.Snapshot().OpenOrders), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_pending_retries",
				metric.WithDescription("Client-order ids with in-flight post-only retries"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(int64(e.Snapshot().PendingRetries), attr)
					return nil
				}))
			return err
		},
		func() error {
			_, err := meter.Int64ObservableGauge("hedgegrid_error_window_size",
				metric.WithDescription("Rejections/denials within the circuit-breaker window"),
				metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
					obs.Observe(int64(e.Snapshot().ErrorWindowSize), attr)
					return nil
				}))
			return err
		},
	}

	for _, register := range registrations {
		if err := register(); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Update replaces the exporter's cached snapshot; the next collection
// pass observes these values.
func (e *Exporter) Update(s model.MetricsSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = s
}

// Snapshot returns the exporter's currently cached values.
func (e *Exporter) Snapshot() model.MetricsSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// InitGlobal installs a Prometheus exporter as the process-wide OTel
// meter provider, mirroring telemetry.InitMetrics in the teacher.
func InitGlobal() error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return nil
}
