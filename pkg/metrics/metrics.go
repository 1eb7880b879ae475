// Package metrics exposes Prometheus instrumentation for the scoring loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vigil"

type Metrics struct {
	registry *prometheus.Registry

	ScoringTicks      prometheus.Counter
	ScoringTickErrors prometheus.Counter
	TickDuration      prometheus.Histogram
	FatigueScore      prometheus.Gauge
	MLConfidence      prometheus.Gauge
	MLWeight          prometheus.Gauge
	TrainingSamples   prometheus.Gauge
	ModelRetrains     prometheus.Counter
	EventsCollected   prometheus.Counter
	ScoresFlushed     prometheus.Counter
	PredictionMethod  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ScoringTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scoring_ticks_total",
			Help: "Number of scoring ticks executed.",
		}),
		ScoringTickErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scoring_tick_errors_total",
			Help: "Number of ticks that fell back to the rule-based score.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scoring_tick_duration_seconds",
			Help:    "Wall time of one scoring tick.",
			Buckets: prometheus.DefBuckets,
		}),
		FatigueScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fatigue_score",
			Help: "Latest hybrid fatigue score.",
		}),
		MLConfidence: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ml_confidence",
			Help: "Confidence of the latest ensemble prediction.",
		}),
		MLWeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ml_weight",
			Help: "Personalization weight applied to the ensemble estimate.",
		}),
		TrainingSamples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "training_samples_total",
			Help: "Cumulative samples seen by the ensemble.",
		}),
		ModelRetrains: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_retrains_total",
			Help: "Number of full retrains performed.",
		}),
		EventsCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "activity_events_total",
			Help: "Activity events accepted by the collect endpoint.",
		}),
		ScoresFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scores_flushed_total",
			Help: "Score records flushed to persistent storage.",
		}),
		PredictionMethod: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "prediction_method_total",
			Help: "Scoring ticks by prediction method.",
		}, []string{"method"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
