// Package metrics exposes pipeline activity as Prometheus collectors.
//
// Collectors are created per channel and registered on the Registerer the
// caller supplies, so several channels can live in one process.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/domain"
)

const namespace = "telship"

// Options configures the collectors.
type Options struct {
	// ConstLabels are attached to every series, e.g. a channel name.
	ConstLabels prometheus.Labels

	// RetryDirBytes, if set, backs the retry directory size gauge.
	RetryDirBytes func() int64
}

// Metrics implements app.Observer by updating Prometheus collectors.
type Metrics struct {
	recordsAdded   prometheus.Counter
	batchesFlushed prometheus.Counter
	batchRecords   prometheus.Histogram
	sent           *prometheus.CounterVec
	sendDuration   prometheus.Histogram
	persisted      prometheus.Counter
	replayed       prometheus.Counter
	dropped        *prometheus.CounterVec
	retryDirBytes  prometheus.GaugeFunc

	collectors []prometheus.Collector
}

var _ app.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer, opts Options) (*Metrics, error) {
	labels := opts.ConstLabels

	m := &Metrics{
		recordsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_added_total",
			Help:        "Total number of records accepted by the buffer",
			ConstLabels: labels,
		}),
		batchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "batches_flushed_total",
			Help:        "Total number of batches handed from the buffer to the transmitter",
			ConstLabels: labels,
		}),
		batchRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_records",
			Help:        "Number of records per flushed batch",
			Buckets:     prometheus.ExponentialBuckets(1, 4, 6),
			ConstLabels: labels,
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transmissions_sent_total",
			Help:        "Total number of network delivery attempts by outcome",
			ConstLabels: labels,
		}, []string{"status"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "send_duration_seconds",
			Help:        "Duration of network delivery attempts",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transmissions_persisted_total",
			Help:        "Total number of transmissions written to the retry directory",
			ConstLabels: labels,
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transmissions_replayed_total",
			Help:        "Total number of transmissions read back from the retry directory",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "dropped_total",
			Help:        "Total number of batches or transmissions lost, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
	m.collectors = []prometheus.Collector{
		m.recordsAdded, m.batchesFlushed, m.batchRecords, m.sent,
		m.sendDuration, m.persisted, m.replayed, m.dropped,
	}

	if opts.RetryDirBytes != nil {
		size := opts.RetryDirBytes
		m.retryDirBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "retry_dir_bytes",
			Help:        "Bytes currently held in the retry directory",
			ConstLabels: labels,
		}, func() float64 { return float64(size()) })
		m.collectors = append(m.collectors, m.retryDirBytes)
	}

	if reg == nil {
		return m, nil
	}
	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, prev := range m.collectors[:i] {
				reg.Unregister(prev)
			}
			return nil, err
		}
	}
	return m, nil
}

// Unregister removes every collector from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors {
		reg.Unregister(c)
	}
}

// RecordAdded implements app.Observer.
func (m *Metrics) RecordAdded() {
	m.recordsAdded.Inc()
}

// BatchFlushed implements app.Observer.
func (m *Metrics) BatchFlushed(records int) {
	m.batchesFlushed.Inc()
	m.batchRecords.Observe(float64(records))
}

// Sent implements app.Observer.
func (m *Metrics) Sent(_ *domain.Transmission, res domain.SendResult) {
	m.sent.WithLabelValues(res.Status.String()).Inc()
	if res.Duration > 0 {
		m.sendDuration.Observe(res.Duration.Seconds())
	}
}

// Persisted implements app.Observer.
func (m *Metrics) Persisted(*domain.Transmission) {
	m.persisted.Inc()
}

// Replayed implements app.Observer.
func (m *Metrics) Replayed(*domain.Transmission) {
	m.replayed.Inc()
}

// Dropped implements app.Observer.
func (m *Metrics) Dropped(_ *domain.Transmission, reason string, _ error) {
	m.dropped.WithLabelValues(reason).Inc()
}

// IsAlreadyRegistered reports whether err came from registering a collector twice.
func IsAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
