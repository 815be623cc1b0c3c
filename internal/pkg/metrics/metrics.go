// Package metrics exposes trusted table activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcomes used as the result label.
const (
	ResultMatch   = "match"
	ResultNoMatch = "nomatch"
	ResultError   = "error"
)

// Reload outcomes used as the status label.
const (
	ReloadOK     = "ok"
	ReloadFailed = "failed"
)

// Collector groups the trustpeer collectors on a private registry.
type Collector struct {
	registry       *prometheus.Registry
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	entries        prometheus.Gauge
	reloads        *prometheus.CounterVec
	lastReload     prometheus.Gauge
}

// New registers the collectors plus Go runtime and process metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustpeer_lookups_total",
				Help: "Trusted peer lookups by result",
			},
			[]string{"result"},
		),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustpeer_lookup_duration_seconds",
			Help:    "Time spent in trusted peer lookups",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trustpeer_table_entries",
			Help: "Entries in the published trusted table generation",
		}),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustpeer_reloads_total",
				Help: "Trusted table reloads by status",
			},
			[]string{"status"},
		),
		lastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trustpeer_last_reload_timestamp_seconds",
			Help: "Unix time of the last successful reload",
		}),
	}

	c.registry.MustRegister(prometheus.NewGoCollector())
	c.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	c.registry.MustRegister(c.lookups, c.lookupDuration, c.entries, c.reloads, c.lastReload)

	// Pre-create label values so series exist before the first event
	for _, r := range []string{ResultMatch, ResultNoMatch, ResultError} {
		c.lookups.WithLabelValues(r)
	}
	for _, s := range []string{ReloadOK, ReloadFailed} {
		c.reloads.WithLabelValues(s)
	}
	return c
}

// Registry returns the registry to serve.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveLookup records one lookup that started at start. A nil collector
// ignores observations.
func (c *Collector) ObserveLookup(start time.Time, matched bool, err error) {
	if c == nil {
		return
	}
	c.lookupDuration.Observe(time.Since(start).Seconds())
	c.lookups.WithLabelValues(LookupResult(matched, err)).Inc()
}

// ObserveReload records a reload attempt and, on success, the new size.
func (c *Collector) ObserveReload(entries int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.reloads.WithLabelValues(ReloadFailed).Inc()
		return
	}
	c.reloads.WithLabelValues(ReloadOK).Inc()
	c.entries.Set(float64(entries))
	c.lastReload.SetToCurrentTime()
}

// LookupResult maps a lookup outcome to its label value. A forward failure
// after a match counts as an error.
func LookupResult(matched bool, err error) string {
	switch {
	case err != nil:
		return ResultError
	case matched:
		return ResultMatch
	default:
		return ResultNoMatch
	}
}
