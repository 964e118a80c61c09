// Package metrics exposes Prometheus instrumentation for the batch driver
// pool, grounded on the Prometheus client usage in vjache-cie and
// ghjramos-aistore. The core never starts an HTTP server itself; callers
// register Collectors with whatever registry their own process exposes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the core emits. Constructed once per
// process and passed explicitly to batch.Pool and relax.Driver; there are
// no package-level singletons.
type Collectors struct {
	StructuresClaimed   prometheus.Counter
	StructuresOptimised prometheus.Counter
	StructuresFailed    prometheus.Counter
	Retries             prometheus.Counter
	WalltimeKills       prometheus.Counter
	WorkersHoldingLock  prometheus.Gauge
}

// New constructs a fresh, unregistered set of Collectors.
func New() *Collectors {
	return &Collectors{
		StructuresClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaxdrv", Name: "structures_claimed_total",
			Help: "Number of structures successfully claimed by a worker.",
		}),
		StructuresOptimised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaxdrv", Name: "structures_optimised_total",
			Help: "Number of structures that reached a successful relaxation.",
		}),
		StructuresFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaxdrv", Name: "structures_failed_total",
			Help: "Number of structures moved to bad_castep.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaxdrv", Name: "remedy_retries_total",
			Help: "Number of times an error-classifier remedy was applied and retried.",
		}),
		WalltimeKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaxdrv", Name: "walltime_kills_total",
			Help: "Number of child processes terminated due to the walltime deadline.",
		}),
		WorkersHoldingLock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaxdrv", Name: "workers_holding_lock",
			Help: "Number of workers currently holding a seed lock file.",
		}),
	}
}

// MustRegister registers every collector with reg.
func (c *Collectors) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		c.StructuresClaimed,
		c.StructuresOptimised,
		c.StructuresFailed,
		c.Retries,
		c.WalltimeKills,
		c.WorkersHoldingLock,
	)
}
