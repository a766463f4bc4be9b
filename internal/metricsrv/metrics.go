// Package metricsrv registers the engine's Prometheus metrics and exposes
// the scrape handler, following the teacher's
// internal/interfaces/http.MetricsRegistry shape (one struct of
// pre-registered vectors plus small Record* helpers).
package metricsrv

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry holds every Prometheus metric the engine exposes.
type Registry struct {
	gatherer prometheus.Gatherer

	TickDuration *prometheus.HistogramVec
	Generations  *prometheus.CounterVec
	Promotions   *prometheus.CounterVec
	ArchiveSize  prometheus.Gauge
	ChampionScore *prometheus.GaugeVec
	RegimeSwitches *prometheus.CounterVec
	ActiveRegime prometheus.Gauge
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
}

// NewRegistry builds and registers every metric against reg, which must be
// a concrete *prometheus.Registry such as prometheus.NewRegistry() (an
// isolated registry for tests or several engines in one process); the
// package-level prometheus.DefaultRegisterer, an interface value, is not
// accepted.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{
		gatherer: reg,
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "amm_discovery_tick_duration_seconds",
				Help:    "Duration of one engine tick, by regime",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"regime"},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_discovery_generations_total",
				Help: "Total number of generations evolved, by regime",
			},
			[]string{"regime"},
		),
		Promotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_discovery_archive_promotions_total",
				Help: "Total number of candidates promoted to the persistent archive, by regime",
			},
			[]string{"regime"},
		),
		ArchiveSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "amm_discovery_archive_size",
				Help: "Current row count in the persistent archive",
			},
		),
		ChampionScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "amm_discovery_champion_score",
				Help: "Current champion score per regime (lower is better)",
			},
			[]string{"regime"},
		),
		RegimeSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_discovery_regime_switches_total",
				Help: "Total number of regime-cycle advances, by from/to regime",
			},
			[]string{"from_regime", "to_regime"},
		),
		ActiveRegime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "amm_discovery_active_regime",
				Help: "Index of the regime the most recent tick evolved (0=low-vol, 1=high-vol, 2=jump-diffusion, 3=regime-shift)",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_discovery_regime_cache_hits_total",
				Help: "Regime-map estimate cache hits",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_discovery_regime_cache_misses_total",
				Help: "Regime-map estimate cache misses",
			},
			[]string{"cache"},
		),
	}

	reg.MustRegister(
		r.TickDuration, r.Generations, r.Promotions, r.ArchiveSize,
		r.ChampionScore, r.RegimeSwitches, r.ActiveRegime, r.CacheHits, r.CacheMisses,
	)
	return r
}

// TickTimer times a single engine tick for a regime.
type TickTimer struct {
	registry *Registry
	regime   string
	start    time.Time
}

// StartTick begins timing a tick.
func (r *Registry) StartTick(regime string) *TickTimer {
	return &TickTimer{registry: r, regime: regime, start: time.Now()}
}

// Stop records the elapsed duration and increments the generation counter.
func (t *TickTimer) Stop() {
	duration := time.Since(t.start)
	t.registry.TickDuration.WithLabelValues(t.regime).Observe(duration.Seconds())
	t.registry.Generations.WithLabelValues(t.regime).Inc()
	log.Debug().Str("regime", t.regime).Dur("duration", duration).Msg("tick completed")
}

// RecordPromotions increments the promotion counter by n for regime.
func (r *Registry) RecordPromotions(regime string, n int) {
	if n <= 0 {
		return
	}
	r.Promotions.WithLabelValues(regime).Add(float64(n))
}

// SetArchiveSize updates the archive row-count gauge.
func (r *Registry) SetArchiveSize(n int64) {
	r.ArchiveSize.Set(float64(n))
}

// SetChampionScore records the current best score for a regime.
func (r *Registry) SetChampionScore(regime string, score float64) {
	r.ChampionScore.WithLabelValues(regime).Set(score)
}

// RecordRegimeSwitch records one cycle advance from one regime to the next.
func (r *Registry) RecordRegimeSwitch(from, to string, index float64) {
	r.RegimeSwitches.WithLabelValues(from, to).Inc()
	r.ActiveRegime.Set(index)
}

// RecordCacheHit and RecordCacheMiss track the regime-map estimate cache.
func (r *Registry) RecordCacheHit(cache string)  { r.CacheHits.WithLabelValues(cache).Inc() }
func (r *Registry) RecordCacheMiss(cache string) { r.CacheMisses.WithLabelValues(cache).Inc() }

// Handler returns the Prometheus scrape handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
