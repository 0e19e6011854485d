package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BotMetrics holds the bot's collectors; fields are reached through the
// Observe* helpers.
type BotMetrics struct {
	transitions  *prometheus.CounterVec
	events       *prometheus.CounterVec
	checks       *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec
	swept        *prometheus.CounterVec
	sends        *prometheus.CounterVec
}

var (
	registryOnce sync.Once
	registry     *BotMetrics
)

// Registry returns the lazily-initialised bot metrics, registered with the
// default Prometheus registerer on first use.
func Registry() *BotMetrics {
	registryOnce.Do(func() {
		registry = &BotMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "engine",
				Name:      "transitions_total",
				Help:      "Session state transitions segmented by source and target state.",
			}, []string{"from", "to"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Inbound events segmented by kind and resulting outbound kind.",
			}, []string{"event", "outbound"}),
			checks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "checks",
				Name:      "requests_total",
				Help:      "External eligibility checks segmented by checker and outcome.",
			}, []string{"checker", "outcome"}),
			checkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "airdrop",
				Subsystem: "checks",
				Name:      "duration_seconds",
				Help:      "Latency of external eligibility checks.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"checker"}),
			swept: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "sessions",
				Name:      "swept_total",
				Help:      "Sessions removed by the background sweeper.",
			}, []string{"reason"}),
			sends: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "airdrop",
				Subsystem: "telegram",
				Name:      "sends_total",
				Help:      "Outbound Telegram messages segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			registry.transitions,
			registry.events,
			registry.checks,
			registry.checkLatency,
			registry.swept,
			registry.sends,
		)
	})
	return registry
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCheck records one external check started at started.
func ObserveCheck(checker string, started time.Time, err error) {
	m := Registry()
	m.checks.WithLabelValues(checker, outcomeLabel(err)).Inc()
	m.checkLatency.WithLabelValues(checker).Observe(time.Since(started).Seconds())
}

func ObserveTransition(from, to string) {
	Registry().transitions.WithLabelValues(from, to).Inc()
}

func ObserveEvent(event, outbound string) {
	Registry().events.WithLabelValues(event, outbound).Inc()
}

func ObserveSwept(reason string, n int) {
	if n <= 0 {
		return
	}
	Registry().swept.WithLabelValues(reason).Add(float64(n))
}

func ObserveSend(err error) {
	Registry().sends.WithLabelValues(outcomeLabel(err)).Inc()
}

// TransitionCount exposes a transition counter, mainly for tests.
func TransitionCount(from, to string) prometheus.Counter {
	return Registry().transitions.WithLabelValues(from, to)
}

// SweptCount exposes the sweeper counter, mainly for tests.
func SweptCount(reason string) prometheus.Counter {
	return Registry().swept.WithLabelValues(reason)
}
