// Package metrics collects run counters on a private prometheus registry
// and can dump them in the text exposition format for node_exporter's
// textfile collector.
package metrics

import (
	"fmt"
	"sync"

	"github.com/ironsheep/photomosaic/internal/assign"
	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mosaic"

// Recorder is safe for concurrent use. A nil *Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheResident  prometheus.Gauge

	assignRuns        prometheus.Counter
	assignDequeues    prometheus.Counter
	assignEvaluations prometheus.Counter
	assignRequeues    prometheus.Counter
	assignDropped     prometheus.Counter
	assignSOS         prometheus.Histogram

	items *prometheus.CounterVec

	mu   sync.Mutex
	last imaging.CacheStats
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Image cache lookups served from memory.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Image cache lookups that had to decode.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Images evicted from the cache.",
		}),
		cacheResident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "resident_images",
			Help: "Images currently held by the cache.",
		}),
		assignRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assign", Name: "runs_total",
			Help: "Completed assignment runs.",
		}),
		assignDequeues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assign", Name: "dequeues_total",
			Help: "Sources taken off the work queue.",
		}),
		assignEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assign", Name: "evaluations_total",
			Help: "Residual computations.",
		}),
		assignRequeues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assign", Name: "requeues_total",
			Help: "Sources displaced and requeued.",
		}),
		assignDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "assign", Name: "dropped_total",
			Help: "Sources that found no cell.",
		}),
		assignSOS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "assign", Name: "sum_of_squares",
			Help:    "Root of the summed squared residuals per assignment.",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_total",
			Help: "Pipeline work items by stage and outcome.",
		}, []string{"stage", "outcome"}),
	}

	r.registry.MustRegister(
		r.cacheHits, r.cacheMisses, r.cacheEvictions, r.cacheResident,
		r.assignRuns, r.assignDequeues, r.assignEvaluations, r.assignRequeues, r.assignDropped, r.assignSOS,
		r.items,
	)
	return r
}

// Registry exposes the underlying registry. WriteTextfile gathers from it.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveCache adds the cache activity since the previous call. Stats that
// went backwards (the cache was cleared) are taken as a fresh start.
func (r *Recorder) ObserveCache(s imaging.CacheStats) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Hits < r.last.Hits || s.Misses < r.last.Misses || s.Evictions < r.last.Evictions {
		r.last = imaging.CacheStats{}
	}
	r.cacheHits.Add(float64(s.Hits - r.last.Hits))
	r.cacheMisses.Add(float64(s.Misses - r.last.Misses))
	r.cacheEvictions.Add(float64(s.Evictions - r.last.Evictions))
	r.cacheResident.Set(float64(s.Resident))
	r.last = s
}

// ObserveAssignment records one finished run.
func (r *Recorder) ObserveAssignment(a *assign.Assignment) {
	if r == nil || a == nil {
		return
	}
	r.assignRuns.Inc()
	r.assignDequeues.Add(float64(a.Stats.Dequeues))
	r.assignEvaluations.Add(float64(a.Stats.Evaluations))
	r.assignRequeues.Add(float64(a.Stats.Requeues))
	r.assignDropped.Add(float64(a.Stats.Dropped))
	r.assignSOS.Observe(a.SumOfSquares())
}

// ObserveItem counts one pipeline item.
func (r *Recorder) ObserveItem(stage string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	r.items.WithLabelValues(stage, outcome).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.Registry()); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
