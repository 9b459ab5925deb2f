package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formflow"

// Collector implements ports.Metrics on top of Prometheus collectors
// registered with an injected registerer.
type Collector struct {
	activeSessions  prometheus.Gauge
	pendingTimeouts prometheus.Gauge
	stateEntries    prometheus.Gauge
	timeoutsFired   prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	cacheBuilds     *prometheus.CounterVec
	buildDuration   prometheus.Histogram
	cacheEvictions  prometheus.Counter
	deliveries      *prometheus.CounterVec
	swept           prometheus.Counter

	// Transport
	connections prometheus.Gauge
	messages    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions with at least one frame on their navigation stack.",
		}),
		pendingTimeouts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timeouts_pending",
			Help:      "Screen timeouts currently armed.",
		}),
		stateEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_entries",
			Help:      "Unexpired entries in the state store at the last count.",
		}),
		timeoutsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_fired_total",
			Help:      "Screen timeouts that expired.",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Artifact cache lookups by result.",
		}, []string{"result"}),
		cacheBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_builds_total",
			Help:      "Form builds by outcome.",
		}, []string{"outcome"}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Time spent building forms.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Artifacts evicted from the cache to respect its size bound.",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Form deliveries by outcome.",
		}, []string{"outcome"}),
		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_swept_total",
			Help:      "Expired state entries removed by the sweeper.",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Open websocket connections.",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages by direction.",
		}, []string{"direction"}),
	}
}

func (c *Collector) ActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

func (c *Collector) PendingTimeouts(n int) {
	c.pendingTimeouts.Set(float64(n))
}

func (c *Collector) StateEntries(n int) {
	c.stateEntries.Set(float64(n))
}

func (c *Collector) TimeoutFired() {
	c.timeoutsFired.Inc()
}

func (c *Collector) CacheHit() {
	c.cacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collector) CacheMiss() {
	c.cacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collector) CacheBuild(took time.Duration, err error) {
	c.buildDuration.Observe(took.Seconds())
	c.cacheBuilds.WithLabelValues(outcome(err)).Inc()
}

func (c *Collector) CacheEviction() {
	c.cacheEvictions.Inc()
}

func (c *Collector) Delivery(err error) {
	c.deliveries.WithLabelValues(outcome(err)).Inc()
}

func (c *Collector) Swept(n int) {
	c.swept.Add(float64(n))
}

func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
}

func (c *Collector) MessageReceived() {
	c.messages.WithLabelValues("in").Inc()
}

func (c *Collector) MessageSent() {
	c.messages.WithLabelValues("out").Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
