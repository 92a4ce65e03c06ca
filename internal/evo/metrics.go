package evo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the collectors a PopulationMonitor updates while it runs.
type Metrics struct {
	Evaluated   prometheus.Counter
	Discarded   *prometheus.CounterVec
	Tuned       prometheus.Counter
	BestFitness prometheus.Gauge
	MeanKinship prometheus.Gauge
	Generation  prometheus.Gauge
}

// NewMetrics registers the evo collectors on reg. A nil reg gets a private
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Evaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigevo",
			Subsystem: "evo",
			Name:      "genomes_evaluated_total",
			Help:      "Genomes scored by the scape.",
		}),
		Discarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigevo",
			Subsystem: "evo",
			Name:      "genomes_discarded_total",
			Help:      "Genomes dropped before or during evaluation, by reason.",
		}, []string{"reason"}),
		Tuned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigevo",
			Subsystem: "evo",
			Name:      "champions_tuned_total",
			Help:      "Generation champions replaced by a tuned descendant.",
		}),
		BestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigevo",
			Subsystem: "evo",
			Name:      "best_fitness",
			Help:      "Best fitness of the latest generation.",
		}),
		MeanKinship: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigevo",
			Subsystem: "evo",
			Name:      "mean_kinship",
			Help:      "Mean pairwise kinship of the latest generation.",
		}),
		Generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigevo",
			Subsystem: "evo",
			Name:      "generation",
			Help:      "Index of the latest completed generation.",
		}),
	}
}
