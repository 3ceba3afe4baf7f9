package otel

import (
	"context"
	"errors"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsSource is the read side of the engine the exporter needs.
type MetricsSource interface {
	MetricsSnapshot() goGuard.MetricsSnapshot
	AuditDropped() uint64
	ScanCount() uint64
}

// Exporter keeps the observable instruments registered on a meter.
type Exporter struct {
	registration metric.Registration
}

type observedCounter struct {
	id         goGuard.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      goGuard.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	bounds  []metric.ObserveOption
}

// NewExporter registers engine metrics on meter.
func NewExporter(meter metric.Meter, engine *goGuard.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers metrics read from source on meter.
func NewExporterFromSource(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, errors.New("otel exporter: nil meter")
	}
	if source == nil {
		return nil, errors.New("otel exporter: nil metrics source")
	}

	var (
		counters   []observedCounter
		histograms []observedHistogram
		observable []metric.Observable
	)

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, err
		}
		counters = append(counters, observedCounter{id: def.ID, instrument: c})
		observable = append(observable, c)
	}

	bounds := bucketOptions()
	for _, def := range internaldefs.HistogramDefs {
		b, err := meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative bucket counts."))
		if err != nil {
			return nil, err
		}
		n, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Total observations."))
		if err != nil {
			return nil, err
		}
		histograms = append(histograms, observedHistogram{id: def.ID, buckets: b, count: n, bounds: bounds})
		observable = append(observable, b, n)
	}

	dropped, err := meter.Int64ObservableCounter("goguard_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the queue was full."))
	if err != nil {
		return nil, err
	}
	scans, err := meter.Int64ObservableCounter("goguard_ids_scans_total",
		metric.WithDescription("Requests inspected by intrusion detection."))
	if err != nil {
		return nil, err
	}
	observable = append(observable, dropped, scans)

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := source.MetricsSnapshot()
		for _, c := range counters {
			if v, ok := snap.Counters[c.id]; ok {
				o.ObserveInt64(c.instrument, int64(v))
			}
		}
		for _, h := range histograms {
			raw, ok := snap.Histograms[h.id]
			if !ok || len(raw) == 0 {
				continue
			}
			cumulative := internaldefs.CumulativeBuckets(raw)
			for i, v := range cumulative {
				if i >= len(h.bounds) {
					break
				}
				o.ObserveInt64(h.buckets, int64(v), h.bounds[i])
			}
			o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		o.ObserveInt64(dropped, int64(source.AuditDropped()))
		o.ObserveInt64(scans, int64(source.ScanCount()))
		return nil
	}, observable...)
	if err != nil {
		return nil, err
	}
	return &Exporter{registration: reg}, nil
}

// Close unregisters the callback. Instruments stay on the meter but report
// nothing afterwards.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// bucketOptions holds one "le" attribute per engine bucket, +Inf last.
func bucketOptions() []metric.ObserveOption {
	out := make([]metric.ObserveOption, 0, len(internaldefs.HistogramBounds)+1)
	for _, le := range internaldefs.HistogramBounds {
		out = append(out, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(le, 'g', -1, 64))))
	}
	return append(out, metric.WithAttributes(attribute.String("le", "+Inf")))
}
