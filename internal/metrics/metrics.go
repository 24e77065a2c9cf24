package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tikfetch"

// Observer records fetch, cache and lifecycle metrics. A nil *Observer
// is valid and silently discards every observation.
type Observer struct {
	fetches          *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	downloadDuration prometheus.Histogram
	sweepEvictions   prometheus.Counter
	sweepFailures    prometheus.Counter
	cleanupDeletions prometheus.Counter
}

// New constructs an Observer and registers its collectors with the
// registerer provided. Collectors which are already registered are reused.
func New(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	observer := &Observer{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Fetch attempts partitioned by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "File store lookups partitioned by hit/miss.",
		}, []string{"result"}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time spent by the extraction engine producing media files.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}),
		sweepEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_evictions_total",
			Help:      "Stored files evicted by the background sweeper.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Sweep cycles which encountered an error.",
		}),
		cleanupDeletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deletions_total",
			Help:      "Stored files removed by post-delivery cleanup.",
		}),
	}

	var err error
	if observer.fetches, err = register(reg, observer.fetches); err != nil {
		return nil, err
	}
	if observer.cacheLookups, err = register(reg, observer.cacheLookups); err != nil {
		return nil, err
	}
	if observer.downloadDuration, err = register(reg, observer.downloadDuration); err != nil {
		return nil, err
	}
	if observer.sweepEvictions, err = register(reg, observer.sweepEvictions); err != nil {
		return nil, err
	}
	if observer.sweepFailures, err = register(reg, observer.sweepFailures); err != nil {
		return nil, err
	}
	if observer.cleanupDeletions, err = register(reg, observer.cleanupDeletions); err != nil {
		return nil, err
	}

	return observer, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return collector, fmt.Errorf("register collector: %w", err)
	}

	return collector, nil
}

// RecordFetch counts a completed fetch. outcome is "success" or the
// failure reason.
func (o *Observer) RecordFetch(outcome string) {
	if o == nil {
		return
	}
	o.fetches.WithLabelValues(outcome).Inc()
}

func (o *Observer) RecordCacheLookup(hit bool) {
	if o == nil {
		return
	}
	if hit {
		o.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		o.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (o *Observer) RecordDownload(duration time.Duration) {
	if o == nil {
		return
	}
	o.downloadDuration.Observe(duration.Seconds())
}

func (o *Observer) RecordSweep(evicted int, failed bool) {
	if o == nil {
		return
	}
	o.sweepEvictions.Add(float64(evicted))
	if failed {
		o.sweepFailures.Inc()
	}
}

func (o *Observer) RecordCleanup() {
	if o == nil {
		return
	}
	o.cleanupDeletions.Inc()
}
