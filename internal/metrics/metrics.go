// Package metrics exposes the progress of a search run as Prometheus metrics.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AaronLay10/lazysearch/internal/search"
	"github.com/AaronLay10/lazysearch/internal/version"
)

const namespace = "lazysearch"

// Collector holds the metrics of one run. Each collector registers into its
// own registry so that several runs can live in one process.
type Collector struct {
	reg *prometheus.Registry

	expansions     prometheus.Counter
	solutions      prometheus.Counter
	pruned         prometheus.Counter
	deferred       prometheus.Counter
	failed         prometheus.Counter
	parentSwitches prometheus.Counter
	reevaluations  prometheus.Counter
	lateChecks     prometheus.Counter
	terminations   *prometheus.CounterVec
	frontier       prometheus.Gauge
	bestScore      prometheus.Gauge
	stepSeconds    prometheus.Histogram

	mu   sync.Mutex
	best float64
}

// New creates a collector whose metrics carry run_id and strategy labels.
func New(runID, strategy string) *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"run_id": runID, "strategy": strategy}

	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	c := &Collector{
		reg:            reg,
		expansions:     counter("expansions_total", "Nodes expanded."),
		solutions:      counter("solutions_total", "Solutions reported."),
		pruned:         counter("pruned_total", "Nodes pruned by a bound."),
		deferred:       counter("deferred_total", "Nodes deferred after an evaluation timeout."),
		failed:         counter("failed_total", "Nodes whose evaluation failed."),
		parentSwitches: counter("parent_switches_total", "Nodes moved under a cheaper parent."),
		reevaluations:  counter("reevaluations_total", "Nodes re-evaluated on selection."),
		lateChecks:     counter("late_termination_checks_total", "Termination checks observed later than tolerated."),
		terminations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "terminations_total",
			Help:        "Terminations by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
		frontier: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "frontier_size",
			Help:        "Open nodes after the last expansion.",
			ConstLabels: labels,
		}),
		bestScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "best_score",
			Help:        "Lowest score among reported solutions.",
			ConstLabels: labels,
		}),
		stepSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "step_duration_seconds",
			Help:        "Wall time of a single search step.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		best: math.Inf(1),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"version": version.Version},
	}, func() float64 { return 1 })

	c.bestScore.Set(math.NaN())
	return c
}

// Registry returns the registry to serve.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Observe updates the metrics from a search event. It has the shape of a
// search.Listener.
func (c *Collector) Observe(e search.Event) {
	switch ev := e.(type) {
	case search.NodeExpansionEvent:
		c.expansions.Inc()
		c.frontier.Set(float64(ev.FrontierSize))
	case search.NodePrunedEvent:
		c.pruned.Inc()
	case search.NodeDeferredEvent:
		c.deferred.Inc()
	case search.NodeFailedEvent:
		c.failed.Inc()
	case search.ParentSwitchEvent:
		c.parentSwitches.Inc()
	case search.NodeReevaluatedEvent:
		c.reevaluations.Inc()
	case search.LateTerminationCheckEvent:
		c.lateChecks.Inc()
	case search.TerminatedEvent:
		c.terminations.WithLabelValues(string(ev.Reason)).Inc()
	default:
		// Solution events are generic over the problem types.
		if e.Name() == search.EventSolutionFound {
			c.solutions.Inc()
			if score, ok := e.Fields()["score"].(float64); ok {
				c.observeScore(score)
			}
		}
	}
}

func (c *Collector) observeScore(score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if score < c.best {
		c.best = score
		c.bestScore.Set(score)
	}
}

// ObserveStep records the duration of one step.
func (c *Collector) ObserveStep(d time.Duration) {
	c.stepSeconds.Observe(d.Seconds())
}

// Best returns the lowest observed solution score.
func (c *Collector) Best() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.best, !math.IsInf(c.best, 1)
}
